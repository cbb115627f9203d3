package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"therapia/backend/internal/domain"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAppointment() domain.Appointment {
	return domain.Appointment{
		ID:                uuid.MustParse("0190f1a2-0000-7000-8000-000000000001"),
		PatientRef:        "P1",
		TherapistRef:      "T1",
		StartTime:         time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		DurationMinutes:   60,
		Status:            domain.AppointmentStatusPending,
		ConfirmationEmail: "a@b.com",
	}
}

func TestEmailGateway_ConfirmationUsesDirectoryAndClinicZone(t *testing.T) {
	loc := time.FixedZone("COT", -5*60*60)

	dir := NewStaticDirectory()
	dir.PutPatient(domain.Patient{Ref: "P1", FirstName: "Ana", LastName: "Pérez"})
	dir.PutTherapist(domain.Therapist{Ref: "T1", FullName: "Dr. Ruiz"})

	sender := &recordingSender{}
	g := NewEmailGateway(sender, WithDirectory(dir), WithLocation(loc), WithLogger(quietLogger()))

	require.NoError(t, g.SendConfirmation(context.Background(), sampleAppointment()))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "a@b.com", msg.To)
	assert.Equal(t, "Ana Pérez", msg.ToName)
	assert.Equal(t, "Appointment Confirmation - Therapy Clinic", msg.Subject)
	assert.Contains(t, msg.Body, "- Patient: Ana Pérez")
	assert.Contains(t, msg.Body, "- Therapist: Dr. Ruiz")
	assert.Contains(t, msg.Body, "- Date and time: 10/03/2025 09:00")
	assert.Contains(t, msg.Body, "- Duration: 60 minutes")
	assert.Contains(t, msg.Body, "- Reason: Not specified")
}

func TestEmailGateway_FallsBackToReferences(t *testing.T) {
	sender := &recordingSender{}
	g := NewEmailGateway(sender, WithDirectory(NewStaticDirectory()), WithLogger(quietLogger()))

	appt := sampleAppointment()
	appt.Reason = "speech therapy"
	require.NoError(t, g.SendConfirmation(context.Background(), appt))

	body := sender.sent[0].Body
	assert.Contains(t, body, "- Patient: P1")
	assert.Contains(t, body, "- Therapist: T1")
	assert.Contains(t, body, "- Date and time: 10/03/2025 14:00")
	assert.Contains(t, body, "- Reason: speech therapy")
}

func TestEmailGateway_OmitsTherapistWhenUnassigned(t *testing.T) {
	sender := &recordingSender{}
	g := NewEmailGateway(sender, WithLogger(quietLogger()))

	appt := sampleAppointment()
	appt.TherapistRef = ""
	require.NoError(t, g.SendConfirmation(context.Background(), appt))
	assert.NotContains(t, sender.sent[0].Body, "Therapist:")
}

func TestEmailGateway_Cancellation(t *testing.T) {
	sender := &recordingSender{}
	g := NewEmailGateway(sender, WithLogger(quietLogger()))

	require.NoError(t, g.SendCancellation(context.Background(), sampleAppointment()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Appointment Cancellation - Therapy Clinic", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "has been cancelled")
}

func TestEmailGateway_Errors(t *testing.T) {
	appt := sampleAppointment()
	appt.ConfirmationEmail = "  "

	g := NewEmailGateway(&recordingSender{}, WithLogger(quietLogger()))
	assert.ErrorIs(t, g.SendConfirmation(context.Background(), appt), ErrNoRecipient)
	assert.ErrorIs(t, g.SendCancellation(context.Background(), appt), ErrNoRecipient)

	boom := errors.New("relay refused")
	g = NewEmailGateway(&recordingSender{err: boom}, WithLogger(quietLogger()))
	assert.ErrorIs(t, g.SendConfirmation(context.Background(), sampleAppointment()), boom)

	g = NewEmailGateway(nil, WithLogger(quietLogger()))
	assert.Error(t, g.SendConfirmation(context.Background(), sampleAppointment()))
}
