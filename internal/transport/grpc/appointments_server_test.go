package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
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

type fakeAppointmentsService struct {
	createFn            func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	getFn               func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listAllFn           func(ctx context.Context) ([]domain.Appointment, error)
	listUpcomingFn      func(ctx context.Context, now time.Time) ([]domain.Appointment, error)
	listByRangeFn       func(ctx context.Context, start, end time.Time) ([]domain.Appointment, error)
	listByTherapistFn   func(ctx context.Context, therapistRef string) ([]domain.Appointment, error)
	listByPatientFn     func(ctx context.Context, patientRef string) ([]domain.Appointment, error)
	updateFn            func(ctx context.Context, id uuid.UUID, in appointments.UpdateInput) (domain.Appointment, error)
	deleteFn            func(ctx context.Context, id uuid.UUID) (bool, error)
	checkAvailabilityFn func(ctx context.Context, therapistRef string, start time.Time, durationMinutes int) (bool, error)
}

func (f *fakeAppointmentsService) Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeAppointmentsService) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeAppointmentsService) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	if f.listAllFn == nil {
		panic("ListAll not configured")
	}
	return f.listAllFn(ctx)
}

func (f *fakeAppointmentsService) ListUpcoming(ctx context.Context, now time.Time) ([]domain.Appointment, error) {
	if f.listUpcomingFn == nil {
		panic("ListUpcoming not configured")
	}
	return f.listUpcomingFn(ctx, now)
}

func (f *fakeAppointmentsService) ListByRange(ctx context.Context, start, end time.Time) ([]domain.Appointment, error) {
	if f.listByRangeFn == nil {
		panic("ListByRange not configured")
	}
	return f.listByRangeFn(ctx, start, end)
}

func (f *fakeAppointmentsService) ListByTherapist(ctx context.Context, therapistRef string) ([]domain.Appointment, error) {
	if f.listByTherapistFn == nil {
		panic("ListByTherapist not configured")
	}
	return f.listByTherapistFn(ctx, therapistRef)
}

func (f *fakeAppointmentsService) ListByPatient(ctx context.Context, patientRef string) ([]domain.Appointment, error) {
	if f.listByPatientFn == nil {
		panic("ListByPatient not configured")
	}
	return f.listByPatientFn(ctx, patientRef)
}

func (f *fakeAppointmentsService) Update(ctx context.Context, id uuid.UUID, in appointments.UpdateInput) (domain.Appointment, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, id, in)
}

func (f *fakeAppointmentsService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeAppointmentsService) CheckAvailability(ctx context.Context, therapistRef string, start time.Time, durationMinutes int) (bool, error) {
	if f.checkAvailabilityFn == nil {
		panic("CheckAvailability not configured")
	}
	return f.checkAvailabilityFn(ctx, therapistRef, start, durationMinutes)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct error: %v", err)
	}
	return s
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}

	if got := idempotencyKey(context.Background()); got != "" {
		t.Fatalf("idempotencyKey = %q, want empty", got)
	}
}

func TestCreateAppointment_DecodesRequest(t *testing.T) {
	var got appointments.CreateInput

	srv := NewAppointmentsServer(&fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{
				ID:              uuid.MustParse("00000000-0000-0000-0000-000000000010"),
				PatientRef:      in.PatientRef,
				StartTime:       in.StartTime,
				DurationMinutes: 60,
				Status:          domain.AppointmentStatusPending,
			}, nil
		},
	}, quietLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	resp, err := srv.CreateAppointment(ctx, mustStruct(t, map[string]any{
		"patient_ref":        "P1",
		"therapist_ref":      "T1",
		"start_time":         "2025-03-10T09:00:00-05:00",
		"duration_minutes":   45,
		"reason":             "assessment",
		"confirmation_email": "a@b.com",
	}))
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}

	want := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if got.PatientRef != "P1" || got.TherapistRef != "T1" || !got.StartTime.Equal(want) {
		t.Fatalf("unexpected input: %+v", got)
	}
	if got.DurationMinutes != 45 || got.Reason != "assessment" || got.ConfirmationEmail != "a@b.com" {
		t.Fatalf("unexpected input: %+v", got)
	}
	if got.IdempotencyKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", got.IdempotencyKey, "k1")
	}

	appt := resp.GetFields()["appointment"].GetStructValue().GetFields()
	if appt["id"].GetStringValue() != "00000000-0000-0000-0000-000000000010" {
		t.Fatalf("id = %q", appt["id"].GetStringValue())
	}
	if appt["start_time"].GetStringValue() != "2025-03-10T14:00:00Z" {
		t.Fatalf("start_time = %q", appt["start_time"].GetStringValue())
	}
	if appt["end_time"].GetStringValue() != "2025-03-10T15:00:00Z" {
		t.Fatalf("end_time = %q", appt["end_time"].GetStringValue())
	}
	if _, isNull := appt["therapist_ref"].GetKind().(*structpb.Value_NullValue); !isNull {
		t.Fatalf("therapist_ref = %v, want null", appt["therapist_ref"])
	}
}

func TestCreateAppointment_RejectsMalformedFields(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			t.Fatalf("service must not be called")
			return domain.Appointment{}, nil
		},
	}, quietLogger())

	tests := []struct {
		name string
		req  map[string]any
	}{
		{"bad timestamp", map[string]any{"patient_ref": "P1", "start_time": "10/03/2025 09:00"}},
		{"fractional duration", map[string]any{"patient_ref": "P1", "start_time": "2025-03-10T09:00:00Z", "duration_minutes": 1.5}},
		{"numeric patient", map[string]any{"patient_ref": 7, "start_time": "2025-03-10T09:00:00Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.CreateAppointment(context.Background(), mustStruct(t, tt.req))
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
			}
		})
	}

	_, err := srv.CreateAppointment(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateAppointment_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"conflict", store.ErrConflict, codes.FailedPrecondition},
		{"idempotency conflict", store.ErrIdempotencyConflict, codes.FailedPrecondition},
		{"validation", &appointments.ValidationError{}, codes.InvalidArgument},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"internal", errors.New("db down"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewAppointmentsServer(&fakeAppointmentsService{
				createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
					return domain.Appointment{}, tt.err
				},
			}, quietLogger())

			_, err := srv.CreateAppointment(context.Background(), mustStruct(t, map[string]any{
				"patient_ref": "P1",
				"start_time":  "2025-03-10T09:00:00Z",
			}))
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestGetAppointment_MapsNotFound(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		getFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
	}, quietLogger())

	_, err := srv.GetAppointment(context.Background(), mustStruct(t, map[string]any{
		"appointment_id": "00000000-0000-0000-0000-000000000001",
	}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}
}

func TestDeleteAppointment_RejectsInvalidUUID(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, quietLogger())

	_, err := srv.DeleteAppointment(context.Background(), mustStruct(t, map[string]any{
		"appointment_id": "not-a-uuid",
	}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDeleteAppointment_ReportsMissing(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		deleteFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return false, nil
		},
	}, quietLogger())

	resp, err := srv.DeleteAppointment(context.Background(), mustStruct(t, map[string]any{
		"appointment_id": "00000000-0000-0000-0000-000000000001",
	}))
	if err != nil {
		t.Fatalf("DeleteAppointment error: %v", err)
	}
	deleted, ok := resp.GetFields()["deleted"].GetKind().(*structpb.Value_BoolValue)
	if !ok || deleted.BoolValue {
		t.Fatalf("deleted = %v, want false", resp.GetFields()["deleted"])
	}
}

func TestListAppointments_RoutesFilters(t *testing.T) {
	var called string
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		listAllFn: func(ctx context.Context) ([]domain.Appointment, error) {
			called = "all"
			return nil, nil
		},
		listByTherapistFn: func(ctx context.Context, therapistRef string) ([]domain.Appointment, error) {
			called = "therapist:" + therapistRef
			return nil, nil
		},
		listByPatientFn: func(ctx context.Context, patientRef string) ([]domain.Appointment, error) {
			called = "patient:" + patientRef
			return []domain.Appointment{{PatientRef: patientRef}}, nil
		},
	}, quietLogger())
	ctx := context.Background()

	if _, err := srv.ListAppointments(ctx, &structpb.Struct{}); err != nil || called != "all" {
		t.Fatalf("called=%q err=%v", called, err)
	}
	if _, err := srv.ListAppointments(ctx, mustStruct(t, map[string]any{"therapist_ref": "T1"})); err != nil || called != "therapist:T1" {
		t.Fatalf("called=%q err=%v", called, err)
	}
	resp, err := srv.ListAppointments(ctx, mustStruct(t, map[string]any{"patient_ref": "P1"}))
	if err != nil || called != "patient:P1" {
		t.Fatalf("called=%q err=%v", called, err)
	}
	if n := len(resp.GetFields()["appointments"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("appointments = %d, want 1", n)
	}

	_, err = srv.ListAppointments(ctx, mustStruct(t, map[string]any{"therapist_ref": "T1", "patient_ref": "P1"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestUpdateAppointment_DecodesStatus(t *testing.T) {
	var got appointments.UpdateInput
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		updateFn: func(ctx context.Context, id uuid.UUID, in appointments.UpdateInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{ID: id, Status: in.Status}, nil
		},
	}, quietLogger())

	_, err := srv.UpdateAppointment(context.Background(), mustStruct(t, map[string]any{
		"appointment_id": "00000000-0000-0000-0000-000000000001",
		"patient_ref":    "P1",
		"start_time":     "2025-03-10T09:00:00Z",
		"status":         " Cancelled ",
	}))
	if err != nil {
		t.Fatalf("UpdateAppointment error: %v", err)
	}
	if got.Status != domain.AppointmentStatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}
}

func TestCheckAvailability_PassesArguments(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		checkAvailabilityFn: func(ctx context.Context, therapistRef string, start time.Time, durationMinutes int) (bool, error) {
			if therapistRef != "T1" || durationMinutes != 30 {
				t.Fatalf("therapist=%q duration=%d", therapistRef, durationMinutes)
			}
			return false, nil
		},
	}, quietLogger())

	resp, err := srv.CheckAvailability(context.Background(), mustStruct(t, map[string]any{
		"therapist_ref":    "T1",
		"start_time":       "2025-03-10T09:00:00Z",
		"duration_minutes": 30,
	}))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if resp.GetFields()["available"].GetBoolValue() {
		t.Fatalf("available = true, want false")
	}
}
