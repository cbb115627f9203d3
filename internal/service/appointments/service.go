package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"therapia/backend/internal/domain"
	"therapia/backend/internal/observability"
	"therapia/backend/internal/store"
)

const (
	maxIdempotencyKeyLen = 256
	defaultNotifyTimeout = 10 * time.Second
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Notifier delivers appointment notices. Failures are absorbed by the
// service and never fail the booking they belong to.
type Notifier interface {
	SendConfirmation(ctx context.Context, appt domain.Appointment) error
	SendCancellation(ctx context.Context, appt domain.Appointment) error
}

type Service struct {
	repo            store.AppointmentRepository
	checker         *Checker
	notifier        Notifier
	notifyTimeout   time.Duration
	defaultDuration int
	metrics         *observability.Metrics
	log             *slog.Logger
	tracer          trace.Tracer
	now             func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithConflictPolicy(policy domain.ConflictPolicy) Option {
	return func(s *Service) {
		s.checker = NewChecker(policy)
	}
}

// WithNotifyTimeout bounds every notification attempt.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func WithDefaultDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.defaultDuration = minutes
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo store.AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		checker:         NewChecker(domain.ConflictPolicyOverlap),
		notifyTimeout:   defaultNotifyTimeout,
		defaultDuration: domain.DefaultDurationMinutes,
		log:             slog.Default(),
		tracer:          otel.Tracer("therapia/backend/internal/service/appointments"),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.appointments"))
	return s
}

type CreateInput struct {
	PatientRef        string
	TherapistRef      string
	StartTime         time.Time
	DurationMinutes   int
	Reason            string
	Notes             string
	ConfirmationEmail string
	IdempotencyKey    string
}

// Create books an appointment. The availability check and the insert run
// under the therapist's admission lock, so two concurrent bookings for the
// same slot cannot both succeed. A confirmation is attempted afterwards when
// an email address is present; its outcome only affects ConfirmationSent.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Create")
	defer span.End()

	patientRef := strings.TrimSpace(in.PatientRef)
	if patientRef == "" {
		return domain.Appointment{}, validationError("patient_ref is required")
	}
	if in.StartTime.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}
	duration, err := s.duration(in.DurationMinutes)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt := domain.Appointment{
		PatientRef:        patientRef,
		TherapistRef:      strings.TrimSpace(in.TherapistRef),
		StartTime:         normalizeTime(in.StartTime),
		DurationMinutes:   duration,
		Status:            domain.AppointmentStatusPending,
		Reason:            strings.TrimSpace(in.Reason),
		Notes:             in.Notes,
		ConfirmationEmail: strings.TrimSpace(in.ConfirmationEmail),
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("therapia:create_appointment:"+patientRef+":"+key))
	}

	span.SetAttributes(
		attribute.String("appointment.therapist_ref", appt.TherapistRef),
		attribute.String("appointment.start_time", appt.StartTime.Format(time.RFC3339)),
	)

	var (
		out      domain.Appointment
		replayed bool
	)
	err = s.repo.InTherapistTransaction(ctx, appt.TherapistRef, func(ctx context.Context, tx store.SlotTx) error {
		if appt.ID != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if !existing.SameBooking(appt) {
					return store.ErrIdempotencyConflict
				}
				out, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		taken, err := s.checker.IsSlotTaken(ctx, tx, appt.Slot(), uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrConflict
		}

		created, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.metrics.SlotConflict("create")
		} else {
			span.RecordError(err)
		}
		return domain.Appointment{}, err
	}
	if replayed {
		return out, nil
	}

	s.metrics.AppointmentCreated()
	s.log.Info(
		"appointment booked",
		slog.String("appointment_id", out.ID.String()),
		slog.String("therapist_ref", out.TherapistRef),
		slog.Time("start_time", out.StartTime),
	)

	if out.ConfirmationEmail != "" && !out.ConfirmationSent {
		out = s.confirm(ctx, out)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	return s.repo.List(ctx)
}

// ListUpcoming returns pending appointments starting at or after now,
// earliest first. A zero now means the service clock.
func (s *Service) ListUpcoming(ctx context.Context, now time.Time) ([]domain.Appointment, error) {
	if now.IsZero() {
		now = s.now()
	}
	return s.repo.ListUpcoming(ctx, now.UTC())
}

// ListByRange returns every appointment whose start lies in [start, end].
func (s *Service) ListByRange(ctx context.Context, start, end time.Time) ([]domain.Appointment, error) {
	if start.IsZero() || end.IsZero() {
		return nil, validationError("window_start and window_end are required")
	}
	start = start.UTC()
	end = end.UTC()
	if end.Before(start) {
		return nil, validationError("window_end must not be before window_start")
	}
	return s.repo.ListRange(ctx, start, end)
}

func (s *Service) ListByTherapist(ctx context.Context, therapistRef string) ([]domain.Appointment, error) {
	therapistRef = strings.TrimSpace(therapistRef)
	if therapistRef == "" {
		return nil, validationError("therapist_ref is required")
	}
	return s.repo.ListByTherapist(ctx, therapistRef)
}

func (s *Service) ListByPatient(ctx context.Context, patientRef string) ([]domain.Appointment, error) {
	patientRef = strings.TrimSpace(patientRef)
	if patientRef == "" {
		return nil, validationError("patient_ref is required")
	}
	return s.repo.ListByPatient(ctx, patientRef)
}

// UpdateInput replaces every mutable field of an appointment. Zero values
// are applied as given: an empty TherapistRef unassigns the appointment, a
// zero DurationMinutes resets it to the default and an empty Status resets it
// to pending.
type UpdateInput struct {
	PatientRef      string
	TherapistRef    string
	StartTime       time.Time
	DurationMinutes int
	Status          domain.AppointmentStatus
	Reason          string
	Notes           string
}

// Update overwrites an appointment. When the change moves an active
// appointment onto a different slot, or reactivates a cancelled one, the slot
// is checked again under the therapist's admission lock.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Update")
	defer span.End()

	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	patientRef := strings.TrimSpace(in.PatientRef)
	if patientRef == "" {
		return domain.Appointment{}, validationError("patient_ref is required")
	}
	if in.StartTime.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}
	duration, err := s.duration(in.DurationMinutes)
	if err != nil {
		return domain.Appointment{}, err
	}
	status := in.Status
	if status == "" {
		status = domain.AppointmentStatusPending
	}
	if !status.Valid() {
		return domain.Appointment{}, validationError("invalid status")
	}

	therapistRef := strings.TrimSpace(in.TherapistRef)
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.status", string(status)),
	)

	var before, out domain.Appointment
	err = s.repo.InTherapistTransaction(ctx, therapistRef, func(ctx context.Context, tx store.SlotTx) error {
		existing, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		before = existing

		next := existing
		next.PatientRef = patientRef
		next.TherapistRef = therapistRef
		next.StartTime = normalizeTime(in.StartTime)
		next.DurationMinutes = duration
		next.Status = status
		next.Reason = strings.TrimSpace(in.Reason)
		next.Notes = in.Notes
		next.UpdatedAt = s.now()

		if needsSlotCheck(existing, next) {
			taken, err := s.checker.IsSlotTaken(ctx, tx, next.Slot(), id)
			if err != nil {
				return err
			}
			if taken {
				return store.ErrConflict
			}
		}

		updated, err := tx.UpdateAppointment(ctx, next)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			s.metrics.SlotConflict("update")
		case errors.Is(err, store.ErrNotFound):
		default:
			span.RecordError(err)
		}
		return domain.Appointment{}, err
	}

	if before.Status.Active() && out.Status == domain.AppointmentStatusCancelled && out.ConfirmationEmail != "" {
		s.notifyCancellation(ctx, out)
	}
	return out, nil
}

// Delete removes an appointment permanently. It reports false when no
// appointment had the given id.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, validationError("appointment_id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return true, nil
}

// CheckAvailability reports whether a booking for therapistRef at start
// would be admitted right now. A zero durationMinutes uses the default
// session length. The answer is advisory; Create re-checks under lock.
func (s *Service) CheckAvailability(ctx context.Context, therapistRef string, start time.Time, durationMinutes int) (bool, error) {
	if start.IsZero() {
		return false, validationError("start_time is required")
	}
	duration, err := s.duration(durationMinutes)
	if err != nil {
		return false, err
	}
	slot := domain.Slot{
		TherapistRef: strings.TrimSpace(therapistRef),
		Start:        normalizeTime(start),
		Duration:     time.Duration(duration) * time.Minute,
	}
	taken, err := s.checker.IsSlotTaken(ctx, s.repo, slot, uuid.Nil)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *Service) duration(minutes int) (int, error) {
	switch {
	case minutes == 0:
		return s.defaultDuration, nil
	case minutes < 0:
		return 0, validationError("duration_minutes must be positive")
	}
	return minutes, nil
}

func needsSlotCheck(before, after domain.Appointment) bool {
	if !after.Status.Active() || after.TherapistRef == "" {
		return false
	}
	if !before.Status.Active() {
		return true
	}
	return before.TherapistRef != after.TherapistRef ||
		!before.StartTime.Equal(after.StartTime) ||
		before.DurationMinutes != after.DurationMinutes
}

// normalizeTime stores instants in UTC at the precision Postgres keeps.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
