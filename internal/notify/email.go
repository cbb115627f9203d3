// Package notify delivers appointment confirmation and cancellation notices.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers a single message. Implementations can be swapped
// (SendGrid, SES, SMTP) without changing the gateway.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

const defaultFromName = "Therapy Clinic"

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}
	return nil
}

// SMTPSender sends through an unauthenticated relay such as Mailpit.
type SMTPSender struct {
	addr     string
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host, port, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@therapia.local"
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%s", strings.TrimSpace(host), strings.TrimSpace(port)),
		from:     from,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.from,
		msg.To,
		msg.Subject,
		msg.Body,
	)
	if err := s.sendMail(s.addr, nil, s.from, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("notify: smtp send failed: %w", err)
	}
	return nil
}

// StubEmailSender logs instead of sending.
type StubEmailSender struct {
	log *slog.Logger
}

func NewStubEmailSender(log *slog.Logger) *StubEmailSender {
	if log == nil {
		log = slog.Default()
	}
	return &StubEmailSender{log: log}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.log.Info("stub email sender: would send email", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*SMTPSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
