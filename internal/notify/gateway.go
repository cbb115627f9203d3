package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"therapia/backend/internal/domain"
)

// Directory resolves appointment references to display data.
type Directory interface {
	Patient(ctx context.Context, ref string) (domain.Patient, error)
	Therapist(ctx context.Context, ref string) (domain.Therapist, error)
}

var ErrNoRecipient = errors.New("notify: appointment has no confirmation email")

const (
	clinicSignature = "Therapy Clinic"
	timeLayout      = "02/01/2006 15:04"
)

// EmailGateway renders appointment notices and hands them to an EmailSender.
type EmailGateway struct {
	sender    EmailSender
	directory Directory
	loc       *time.Location
	log       *slog.Logger
}

type Option func(*EmailGateway)

// WithDirectory resolves patient and therapist names for message content.
// Without it the raw references are used.
func WithDirectory(d Directory) Option {
	return func(g *EmailGateway) {
		g.directory = d
	}
}

// WithLocation renders appointment times in the clinic's time zone.
func WithLocation(loc *time.Location) Option {
	return func(g *EmailGateway) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(g *EmailGateway) {
		if log != nil {
			g.log = log
		}
	}
}

func NewEmailGateway(sender EmailSender, opts ...Option) *EmailGateway {
	g := &EmailGateway{
		sender: sender,
		loc:    time.UTC,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(slog.String("component", "notify.email"))
	return g
}

func (g *EmailGateway) SendConfirmation(ctx context.Context, appt domain.Appointment) error {
	to := strings.TrimSpace(appt.ConfirmationEmail)
	if to == "" {
		return ErrNoRecipient
	}
	patient := g.patientName(ctx, appt.PatientRef)

	reason := strings.TrimSpace(appt.Reason)
	if reason == "" {
		reason = "Not specified"
	}

	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("Your appointment has been booked.\n\n")
	b.WriteString("Appointment details:\n")
	fmt.Fprintf(&b, "- Patient: %s\n", patient)
	if therapist := g.therapistName(ctx, appt.TherapistRef); therapist != "" {
		fmt.Fprintf(&b, "- Therapist: %s\n", therapist)
	}
	fmt.Fprintf(&b, "- Date and time: %s\n", appt.StartTime.In(g.loc).Format(timeLayout))
	fmt.Fprintf(&b, "- Duration: %d minutes\n", appt.DurationMinutes)
	fmt.Fprintf(&b, "- Reason: %s\n\n", reason)
	b.WriteString("Please arrive 10 minutes before the scheduled time.\n\n")
	b.WriteString("If you need to cancel or reschedule, please contact us.\n\n")
	b.WriteString("Kind regards,\n" + clinicSignature + "\n")

	return g.send(ctx, appt, EmailMessage{
		To:      to,
		ToName:  patient,
		Subject: "Appointment Confirmation - " + clinicSignature,
		Body:    b.String(),
	})
}

func (g *EmailGateway) SendCancellation(ctx context.Context, appt domain.Appointment) error {
	to := strings.TrimSpace(appt.ConfirmationEmail)
	if to == "" {
		return ErrNoRecipient
	}
	patient := g.patientName(ctx, appt.PatientRef)

	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("Your appointment has been cancelled.\n\n")
	b.WriteString("Cancelled appointment:\n")
	fmt.Fprintf(&b, "- Patient: %s\n", patient)
	fmt.Fprintf(&b, "- Date and time: %s\n\n", appt.StartTime.In(g.loc).Format(timeLayout))
	b.WriteString("If you would like to book a new time, please contact us.\n\n")
	b.WriteString("Kind regards,\n" + clinicSignature + "\n")

	return g.send(ctx, appt, EmailMessage{
		To:      to,
		ToName:  patient,
		Subject: "Appointment Cancellation - " + clinicSignature,
		Body:    b.String(),
	})
}

func (g *EmailGateway) send(ctx context.Context, appt domain.Appointment, msg EmailMessage) error {
	if g.sender == nil {
		return errors.New("notify: no email sender configured")
	}
	if err := g.sender.Send(ctx, msg); err != nil {
		return err
	}
	g.log.Info(
		"appointment email sent",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("subject", msg.Subject),
	)
	return nil
}

func (g *EmailGateway) patientName(ctx context.Context, ref string) string {
	if g.directory == nil || ref == "" {
		return ref
	}
	p, err := g.directory.Patient(ctx, ref)
	if err != nil {
		g.log.Debug("patient lookup failed", slog.String("patient_ref", ref), slog.Any("err", err))
		return ref
	}
	return p.DisplayName()
}

func (g *EmailGateway) therapistName(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	if g.directory == nil {
		return ref
	}
	t, err := g.directory.Therapist(ctx, ref)
	if err != nil {
		g.log.Debug("therapist lookup failed", slog.String("therapist_ref", ref), slog.Any("err", err))
		return ref
	}
	return t.DisplayName()
}
