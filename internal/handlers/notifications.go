package handlers

import (
	"context"

	"streamq/internal/logger"
	"streamq/internal/queue"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/models"
)

// EmailMessage is the payload shape shared by the email operations. Body is
// plain content for send_email, pre-rendered HTML for send_typed_email.
type EmailMessage struct {
	To         []string
	Subject    string
	Salutation string
	Body       string
	CC         []string
	BCC        []string
	ReplyTo    string
}

// WelcomeEmail is the payload for the welcome_email operation.
type WelcomeEmail struct {
	Name    string
	Email   string
	CC      []string
	BCC     []string
	ReplyTo string
}

// Mailer is the outbound email port. Provider integration lives behind it;
// the queue only cares that a send either completed or errored.
type Mailer interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
	SendWelcomeEmail(ctx context.Context, msg WelcomeEmail) error
	SendTypedEmail(ctx context.Context, msg EmailMessage) error
}

// NotificationHandlers dispatches the notifications queue's operations to a
// Mailer.
type NotificationHandlers struct {
	mailer Mailer
	log    logger.Logger
}

func NewNotificationHandlers(mailer Mailer, log logger.Logger) *NotificationHandlers {
	return &NotificationHandlers{mailer: mailer, log: log}
}

// Register installs the email operations on the given queue.
func (h *NotificationHandlers) Register(registry *queue.Registry, queueName string) {
	registry.Register(queueName, "send_email", h.SendEmail)
	registry.Register(queueName, "welcome_email", h.WelcomeEmail)
	registry.Register(queueName, "send_typed_email", h.SendTypedEmail)
}

func (h *NotificationHandlers) SendEmail(ctx context.Context, env *models.Envelope) error {
	msg, err := emailFromEnvelope(env)
	if err != nil {
		return err
	}
	if err := h.mailer.SendEmail(ctx, msg); err != nil {
		return apperrors.ErrHandlerFailure.
			WithDetail("message", "failed to send email").
			WithCause(err)
	}
	h.log.InfowCtx(ctx, "email sent", "subject", msg.Subject, "recipients", len(msg.To))
	return nil
}

func (h *NotificationHandlers) WelcomeEmail(ctx context.Context, env *models.Envelope) error {
	data, err := singleDataMap(env)
	if err != nil {
		return err
	}

	msg := WelcomeEmail{
		Name:    stringField(data, "name"),
		Email:   stringField(data, "email"),
		CC:      stringSliceField(data, "cc"),
		BCC:     stringSliceField(data, "bcc"),
		ReplyTo: stringField(data, "reply_to"),
	}
	if msg.Name == "" || msg.Email == "" {
		return apperrors.ErrValidation.
			WithDetail("message", "welcome_email requires name and email")
	}

	if err := h.mailer.SendWelcomeEmail(ctx, msg); err != nil {
		return apperrors.ErrHandlerFailure.
			WithDetail("message", "failed to send welcome email").
			WithCause(err)
	}
	h.log.InfowCtx(ctx, "welcome email sent", "email", msg.Email)
	return nil
}

func (h *NotificationHandlers) SendTypedEmail(ctx context.Context, env *models.Envelope) error {
	msg, err := emailFromEnvelope(env)
	if err != nil {
		return err
	}
	if err := h.mailer.SendTypedEmail(ctx, msg); err != nil {
		return apperrors.ErrHandlerFailure.
			WithDetail("message", "failed to send typed email").
			WithCause(err)
	}
	h.log.InfowCtx(ctx, "typed email sent", "subject", msg.Subject, "recipients", len(msg.To))
	return nil
}

func emailFromEnvelope(env *models.Envelope) (EmailMessage, error) {
	data, err := singleDataMap(env)
	if err != nil {
		return EmailMessage{}, err
	}

	msg := EmailMessage{
		To:         stringSliceField(data, "to"),
		Subject:    stringField(data, "subject"),
		Salutation: stringField(data, "salutation"),
		Body:       stringField(data, "body"),
		CC:         stringSliceField(data, "cc"),
		BCC:        stringSliceField(data, "bcc"),
		ReplyTo:    stringField(data, "reply_to"),
	}
	if len(msg.To) == 0 || msg.Subject == "" {
		return EmailMessage{}, apperrors.ErrValidation.
			WithDetail("message", "email requires recipients and a subject")
	}
	return msg, nil
}

func singleDataMap(env *models.Envelope) (map[string]interface{}, error) {
	maps := env.DataMaps()
	if len(maps) != 1 {
		return nil, apperrors.ErrValidation.
			WithDetail("message", "expected a single data object")
	}
	return maps[0], nil
}

func stringField(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}

// stringSliceField accepts both a single address and a list of addresses.
func stringSliceField(data map[string]interface{}, key string) []string {
	switch v := data[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok || s == "" {
				continue
			}
			out = append(out, s)
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}
