package handlers

import (
	"context"

	"streamq/internal/logger"
)

// LogMailer is the default Mailer: it records each send instead of talking
// to a provider. Deployments plug a real provider in behind the Mailer port.
type LogMailer struct {
	log logger.Logger
}

func NewLogMailer(log logger.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendEmail(ctx context.Context, msg EmailMessage) error {
	m.log.InfowCtx(ctx, "would send email",
		"to", msg.To, "subject", msg.Subject, "cc", msg.CC, "bcc", msg.BCC)
	return nil
}

func (m *LogMailer) SendWelcomeEmail(ctx context.Context, msg WelcomeEmail) error {
	m.log.InfowCtx(ctx, "would send welcome email",
		"name", msg.Name, "email", msg.Email)
	return nil
}

func (m *LogMailer) SendTypedEmail(ctx context.Context, msg EmailMessage) error {
	m.log.InfowCtx(ctx, "would send typed email",
		"to", msg.To, "subject", msg.Subject)
	return nil
}
