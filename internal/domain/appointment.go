package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DefaultDurationMinutes = 60

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending,
		AppointmentStatusConfirmed,
		AppointmentStatusCompleted,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow:
		return true
	}
	return false
}

// Active reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s != AppointmentStatusCancelled
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                uuid.UUID         `bun:"id,pk,type:uuid"`
	PatientRef        string            `bun:"patient_ref,notnull"`
	TherapistRef      string            `bun:"therapist_ref,nullzero"`
	StartTime         time.Time         `bun:"start_time,notnull"`
	DurationMinutes   int               `bun:"duration_minutes,notnull"`
	Status            AppointmentStatus `bun:"status,notnull"`
	Reason            string            `bun:"reason"`
	Notes             string            `bun:"notes"`
	ConfirmationEmail string            `bun:"confirmation_email"`
	ConfirmationSent  bool              `bun:"confirmation_sent,notnull"`
	CreatedAt         time.Time         `bun:"created_at,notnull"`
	UpdatedAt         time.Time         `bun:"updated_at,notnull"`
}

func (a Appointment) Slot() Slot {
	return Slot{
		TherapistRef: a.TherapistRef,
		Start:        a.StartTime,
		Duration:     time.Duration(a.DurationMinutes) * time.Minute,
	}
}

func (a Appointment) EndTime() time.Time {
	return a.Slot().End()
}

// SameBooking reports whether b carries the same caller-supplied booking
// fields as a. Idempotent replays are accepted only when it holds.
func (a Appointment) SameBooking(b Appointment) bool {
	return a.PatientRef == b.PatientRef &&
		a.TherapistRef == b.TherapistRef &&
		a.StartTime.Equal(b.StartTime) &&
		a.DurationMinutes == b.DurationMinutes &&
		a.Reason == b.Reason &&
		a.Notes == b.Notes &&
		a.ConfirmationEmail == b.ConfirmationEmail
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
