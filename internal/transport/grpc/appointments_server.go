package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"therapia/backend/internal/domain"
	"therapia/backend/internal/service/appointments"
	"therapia/backend/internal/store"
)

type AppointmentsServer struct {
	svc appointmentsService
	log *slog.Logger
}

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAll(ctx context.Context) ([]domain.Appointment, error)
	ListUpcoming(ctx context.Context, now time.Time) ([]domain.Appointment, error)
	ListByRange(ctx context.Context, start, end time.Time) ([]domain.Appointment, error)
	ListByTherapist(ctx context.Context, therapistRef string) ([]domain.Appointment, error)
	ListByPatient(ctx context.Context, patientRef string) ([]domain.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, in appointments.UpdateInput) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	CheckAvailability(ctx context.Context, therapistRef string, start time.Time, durationMinutes int) (bool, error)
}

func NewAppointmentsServer(svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	r := newRequest(req)

	in, err := decodeCreate(r)
	if err != nil {
		return nil, s.fail(log, "appointment create failed", err)
	}
	in.IdempotencyKey = idempotencyKey(ctx)

	appt, err := s.svc.Create(ctx, in)
	if err != nil {
		return nil, s.fail(log, "appointment create failed", err,
			slog.String("patient_ref", in.PatientRef),
			slog.String("therapist_ref", in.TherapistRef),
			slog.Time("start_time", in.StartTime),
		)
	}

	log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("therapist_ref", appt.TherapistRef),
		slog.Time("start_time", appt.StartTime),
		slog.Bool("confirmation_sent", appt.ConfirmationSent),
	)
	return appointmentResponse(appt), nil
}

func decodeCreate(r request) (appointments.CreateInput, error) {
	var (
		in  appointments.CreateInput
		err error
	)
	if in.PatientRef, err = r.str("patient_ref"); err != nil {
		return in, err
	}
	if in.TherapistRef, err = r.str("therapist_ref"); err != nil {
		return in, err
	}
	if in.StartTime, err = r.timestamp("start_time"); err != nil {
		return in, err
	}
	if in.DurationMinutes, err = r.integer("duration_minutes"); err != nil {
		return in, err
	}
	if in.Reason, err = r.str("reason"); err != nil {
		return in, err
	}
	if in.Notes, err = r.str("notes"); err != nil {
		return in, err
	}
	if in.ConfirmationEmail, err = r.str("confirmation_email"); err != nil {
		return in, err
	}
	return in, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	id, err := newRequest(req).id("appointment_id")
	if err != nil {
		return nil, s.fail(log, "appointment get failed", err)
	}

	appt, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, s.fail(log, "appointment get failed", err, slog.String("appointment_id", id.String()))
	}
	return appointmentResponse(appt), nil
}

// ListAppointments returns every appointment, or those of one therapist or
// patient when therapist_ref or patient_ref is set.
func (s *AppointmentsServer) ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))
	r := newRequest(req)

	therapistRef, err := r.str("therapist_ref")
	if err != nil {
		return nil, s.fail(log, "appointments list failed", err)
	}
	patientRef, err := r.str("patient_ref")
	if err != nil {
		return nil, s.fail(log, "appointments list failed", err)
	}

	var appts []domain.Appointment
	switch {
	case strings.TrimSpace(therapistRef) != "" && strings.TrimSpace(patientRef) != "":
		return nil, s.fail(log, "appointments list failed", &fieldError{field: "therapist_ref", msg: "cannot be combined with patient_ref"})
	case strings.TrimSpace(therapistRef) != "":
		appts, err = s.svc.ListByTherapist(ctx, therapistRef)
	case strings.TrimSpace(patientRef) != "":
		appts, err = s.svc.ListByPatient(ctx, patientRef)
	default:
		appts, err = s.svc.ListAll(ctx)
	}
	if err != nil {
		return nil, s.fail(log, "appointments list failed", err)
	}

	log.Debug("appointments listed", slog.Int("count", len(appts)))
	return appointmentsResponse(appts), nil
}

func (s *AppointmentsServer) ListUpcomingAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListUpcomingAppointments"))

	now, err := newRequest(req).timestamp("now")
	if err != nil {
		return nil, s.fail(log, "upcoming appointments list failed", err)
	}

	appts, err := s.svc.ListUpcoming(ctx, now)
	if err != nil {
		return nil, s.fail(log, "upcoming appointments list failed", err)
	}

	log.Debug("upcoming appointments listed", slog.Int("count", len(appts)))
	return appointmentsResponse(appts), nil
}

func (s *AppointmentsServer) ListAppointmentsInRange(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAppointmentsInRange"))
	r := newRequest(req)

	windowStart, err := r.timestamp("window_start")
	if err != nil {
		return nil, s.fail(log, "appointments list failed", err)
	}
	windowEnd, err := r.timestamp("window_end")
	if err != nil {
		return nil, s.fail(log, "appointments list failed", err)
	}

	appts, err := s.svc.ListByRange(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, s.fail(log, "appointments list failed", err)
	}

	log.Debug(
		"appointments listed",
		slog.Int("count", len(appts)),
		slog.Time("window_start", windowStart),
		slog.Time("window_end", windowEnd),
	)
	return appointmentsResponse(appts), nil
}

func (s *AppointmentsServer) UpdateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateAppointment"))
	r := newRequest(req)

	id, err := r.id("appointment_id")
	if err != nil {
		return nil, s.fail(log, "appointment update failed", err)
	}
	in, err := decodeUpdate(r)
	if err != nil {
		return nil, s.fail(log, "appointment update failed", err, slog.String("appointment_id", id.String()))
	}

	appt, err := s.svc.Update(ctx, id, in)
	if err != nil {
		return nil, s.fail(log, "appointment update failed", err, slog.String("appointment_id", id.String()))
	}

	log.Info(
		"appointment updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
	)
	return appointmentResponse(appt), nil
}

func decodeUpdate(r request) (appointments.UpdateInput, error) {
	var (
		in  appointments.UpdateInput
		err error
	)
	if in.PatientRef, err = r.str("patient_ref"); err != nil {
		return in, err
	}
	if in.TherapistRef, err = r.str("therapist_ref"); err != nil {
		return in, err
	}
	if in.StartTime, err = r.timestamp("start_time"); err != nil {
		return in, err
	}
	if in.DurationMinutes, err = r.integer("duration_minutes"); err != nil {
		return in, err
	}
	statusValue, err := r.str("status")
	if err != nil {
		return in, err
	}
	in.Status = domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(statusValue)))
	if in.Reason, err = r.str("reason"); err != nil {
		return in, err
	}
	if in.Notes, err = r.str("notes"); err != nil {
		return in, err
	}
	return in, nil
}

func (s *AppointmentsServer) DeleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteAppointment"))

	id, err := newRequest(req).id("appointment_id")
	if err != nil {
		return nil, s.fail(log, "appointment delete failed", err)
	}

	deleted, err := s.svc.Delete(ctx, id)
	if err != nil {
		return nil, s.fail(log, "appointment delete failed", err, slog.String("appointment_id", id.String()))
	}
	if !deleted {
		log.Info("appointment not found", slog.String("appointment_id", id.String()))
	}
	return boolResponse("deleted", deleted), nil
}

func (s *AppointmentsServer) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckAvailability"))
	r := newRequest(req)

	therapistRef, err := r.str("therapist_ref")
	if err != nil {
		return nil, s.fail(log, "availability check failed", err)
	}
	start, err := r.timestamp("start_time")
	if err != nil {
		return nil, s.fail(log, "availability check failed", err)
	}
	duration, err := r.integer("duration_minutes")
	if err != nil {
		return nil, s.fail(log, "availability check failed", err)
	}

	available, err := s.svc.CheckAvailability(ctx, therapistRef, start, duration)
	if err != nil {
		return nil, s.fail(log, "availability check failed", err, slog.String("therapist_ref", therapistRef))
	}
	return boolResponse("available", available), nil
}

// fail logs err at a level matching its cause and converts it to a status.
func (s *AppointmentsServer) fail(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var (
		fErr *fieldError
		vErr *appointments.ValidationError
	)
	switch {
	case errors.As(err, &fErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, fErr.Error())
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrConflict):
		log.Info("appointment slot conflict", args...)
		return status.Error(codes.FailedPrecondition, "The therapist already has an appointment at that time. Pick a different slot.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("appointment idempotency conflict", args...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found", args...)
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, args...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		log.Info(msg, args...)
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error(msg, args...)
	return status.Error(codes.Internal, "internal error")
}

var _ AppointmentsServiceServer = (*AppointmentsServer)(nil)
