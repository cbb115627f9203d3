package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"therapia/backend/internal/domain"
)

type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	ListUpcoming(ctx context.Context, now time.Time) ([]domain.Appointment, error)
	ListRange(ctx context.Context, start, end time.Time) ([]domain.Appointment, error)
	ListByTherapist(ctx context.Context, therapistRef string) ([]domain.Appointment, error)
	ListByPatient(ctx context.Context, patientRef string) ([]domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkConfirmationSent(ctx context.Context, id uuid.UUID) error

	SlotReader

	// InTherapistTransaction runs fn while holding the admission lock for
	// therapistRef. An empty therapistRef runs fn without a lock.
	InTherapistTransaction(ctx context.Context, therapistRef string, fn func(ctx context.Context, tx SlotTx) error) error
}

type SlotReader interface {
	SlotTaken(ctx context.Context, q domain.SlotQuery) (bool, error)
}

// SlotTx is the view of the store available while a therapist's admission
// lock is held. Checks and writes issued through it are atomic with respect
// to other admissions for the same therapist.
type SlotTx interface {
	SlotReader

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
