package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"therapia/backend/internal/domain"
)

const (
	notificationConfirmation = "confirmation"
	notificationCancellation = "cancellation"
)

const defaultFlagTimeout = 5 * time.Second

var errNoNotifier = errors.New("no notifier configured")

// NotificationError describes a failed best-effort send. It is logged and
// counted, never returned from Create or Update.
type NotificationError struct {
	Kind          string
	AppointmentID uuid.UUID
	Err           error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s notification for appointment %s: %v", e.Kind, e.AppointmentID, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// confirm sends the booking confirmation and, on success, persists
// ConfirmationSent as an independent follow-up write. The returned record
// reflects what was persisted. Both steps run detached from the caller's
// cancellation and are bounded by what is left of its deadline, so the booking
// response is never lost to a slow gateway.
func (s *Service) confirm(ctx context.Context, appt domain.Appointment) domain.Appointment {
	if err := s.notify(ctx, notificationConfirmation, appt); err != nil {
		return appt
	}

	flagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget(ctx, defaultFlagTimeout))
	defer cancel()
	if err := s.repo.MarkConfirmationSent(flagCtx, appt.ID); err != nil {
		s.log.Warn(
			"confirmation flag update failed",
			slog.String("appointment_id", appt.ID.String()),
			slog.Any("err", err),
		)
		return appt
	}
	appt.ConfirmationSent = true
	return appt
}

// budget caps limit at half of the time left before ctx's deadline.
func budget(ctx context.Context, limit time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit
	}
	if left := time.Until(deadline) / 2; left < limit {
		return left
	}
	return limit
}

func (s *Service) notifyCancellation(ctx context.Context, appt domain.Appointment) {
	_ = s.notify(ctx, notificationCancellation, appt)
}

func (s *Service) notify(ctx context.Context, kind string, appt domain.Appointment) error {
	if s.notifier == nil {
		s.log.Debug("no notifier configured", slog.String("kind", kind), slog.String("appointment_id", appt.ID.String()))
		return &NotificationError{Kind: kind, AppointmentID: appt.ID, Err: errNoNotifier}
	}

	ctx, span := s.tracer.Start(ctx, "appointments.notify."+kind)
	defer span.End()

	// The send outlives a cancelled request but never the caller's deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget(ctx, s.notifyTimeout))
	defer cancel()

	// The gateway may ignore ctx; the caller still gets control back once
	// the timeout fires.
	done := make(chan error, 1)
	go func() {
		if kind == notificationCancellation {
			done <- s.notifier.SendCancellation(ctx, appt)
			return
		}
		done <- s.notifier.SendConfirmation(ctx, appt)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.metrics.Notification(kind, err)
	if err != nil {
		nErr := &NotificationError{Kind: kind, AppointmentID: appt.ID, Err: err}
		span.RecordError(nErr)
		s.log.Warn(
			"appointment notification failed",
			slog.String("kind", kind),
			slog.String("appointment_id", appt.ID.String()),
			slog.Any("err", nErr),
		)
		return nErr
	}
	return nil
}
