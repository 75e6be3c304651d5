package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const smtpsPort = 465

var _ EmailSender = (*SMTPMailer)(nil)

// Sends a single message per call over a fresh SMTP connection
type SMTPMailer struct {
	timeout  time.Duration
	insecure bool
}

// insecure allows plaintext SMTP when the server offers no STARTTLS
func NewSMTPMailer(timeout time.Duration, insecure bool) *SMTPMailer {
	return &SMTPMailer{timeout: timeout, insecure: insecure}
}

func (m *SMTPMailer) SendEmail(
	ctx context.Context,
	server SMTPConfig,
	to string,
	subject string,
	body string,
) error {
	ctx, span := tracer.Start(ctx, "SMTPMailer.SendEmail", trace.WithAttributes(
		attribute.String("smtp.host", server.Host),
		attribute.Int("smtp.port", server.Port),
	))
	defer span.End()

	msg := mail.NewMsg()
	if err := msg.From(server.Username); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid sender")
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid recipient")
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(server.Port),
		mail.WithTimeout(m.timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(server.Username),
		mail.WithPassword(server.Password),
	}
	switch {
	case server.Port == smtpsPort:
		opts = append(opts, mail.WithSSL())
	case m.insecure:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(server.Host, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create smtp client")
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "sent email")
	return nil
}
