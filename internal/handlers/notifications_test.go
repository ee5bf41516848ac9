package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamq/internal/logger"
	"streamq/internal/queue"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/models"
)

type fakeMailer struct {
	emails  []EmailMessage
	welcome []WelcomeEmail
	typed   []EmailMessage
	fail    error
}

func (m *fakeMailer) SendEmail(ctx context.Context, msg EmailMessage) error {
	if m.fail != nil {
		return m.fail
	}
	m.emails = append(m.emails, msg)
	return nil
}

func (m *fakeMailer) SendWelcomeEmail(ctx context.Context, msg WelcomeEmail) error {
	if m.fail != nil {
		return m.fail
	}
	m.welcome = append(m.welcome, msg)
	return nil
}

func (m *fakeMailer) SendTypedEmail(ctx context.Context, msg EmailMessage) error {
	if m.fail != nil {
		return m.fail
	}
	m.typed = append(m.typed, msg)
	return nil
}

func notificationEnvelope(operation string, data map[string]interface{}) *models.Envelope {
	return models.NewEnvelopeBuilder().
		WithQueueName("notifications").
		WithOperation(operation).
		WithData(data).
		Build()
}

func TestNotificationHandlers_SendEmail(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewNotificationHandlers(mailer, logger.NopLogger())

	env := notificationEnvelope("send_email", map[string]interface{}{
		"to":       []interface{}{"a@example.com", "b@example.com"},
		"subject":  "Order shipped",
		"body":     "Your order is on its way.",
		"cc":       "ops@example.com",
		"reply_to": "support@example.com",
	})

	require.NoError(t, h.SendEmail(context.Background(), env))
	require.Len(t, mailer.emails, 1)

	sent := mailer.emails[0]
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sent.To)
	assert.Equal(t, "Order shipped", sent.Subject)
	assert.Equal(t, []string{"ops@example.com"}, sent.CC)
	assert.Equal(t, "support@example.com", sent.ReplyTo)
}

func TestNotificationHandlers_SendEmail_RequiresRecipientsAndSubject(t *testing.T) {
	h := NewNotificationHandlers(&fakeMailer{}, logger.NopLogger())

	for name, data := range map[string]map[string]interface{}{
		"no recipients": {"subject": "hello"},
		"no subject":    {"to": "a@example.com"},
	} {
		t.Run(name, func(t *testing.T) {
			err := h.SendEmail(context.Background(), notificationEnvelope("send_email", data))
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestNotificationHandlers_SendEmail_WrapsMailerFailure(t *testing.T) {
	mailer := &fakeMailer{fail: errors.New("smtp unavailable")}
	h := NewNotificationHandlers(mailer, logger.NopLogger())

	env := notificationEnvelope("send_email", map[string]interface{}{
		"to":      "a@example.com",
		"subject": "hello",
	})
	err := h.SendEmail(context.Background(), env)
	require.Error(t, err)
	assert.False(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "smtp unavailable")
}

func TestNotificationHandlers_WelcomeEmail(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewNotificationHandlers(mailer, logger.NopLogger())

	env := notificationEnvelope("welcome_email", map[string]interface{}{
		"name":  "Ada",
		"email": "ada@example.com",
		"bcc":   []interface{}{"crm@example.com"},
	})

	require.NoError(t, h.WelcomeEmail(context.Background(), env))
	require.Len(t, mailer.welcome, 1)
	assert.Equal(t, "Ada", mailer.welcome[0].Name)
	assert.Equal(t, "ada@example.com", mailer.welcome[0].Email)
	assert.Equal(t, []string{"crm@example.com"}, mailer.welcome[0].BCC)
}

func TestNotificationHandlers_WelcomeEmail_RequiresNameAndEmail(t *testing.T) {
	h := NewNotificationHandlers(&fakeMailer{}, logger.NopLogger())

	env := notificationEnvelope("welcome_email", map[string]interface{}{"name": "Ada"})
	err := h.WelcomeEmail(context.Background(), env)
	assert.True(t, apperrors.IsValidation(err))
}

func TestNotificationHandlers_SendTypedEmail(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewNotificationHandlers(mailer, logger.NopLogger())

	env := notificationEnvelope("send_typed_email", map[string]interface{}{
		"to":      "a@example.com",
		"subject": "Receipt",
		"body":    "<html><body>Thanks!</body></html>",
	})

	require.NoError(t, h.SendTypedEmail(context.Background(), env))
	require.Len(t, mailer.typed, 1)
	assert.Equal(t, "<html><body>Thanks!</body></html>", mailer.typed[0].Body)
}

func TestNotificationHandlers_RejectsListData(t *testing.T) {
	h := NewNotificationHandlers(&fakeMailer{}, logger.NopLogger())

	env := models.NewEnvelopeBuilder().
		WithQueueName("notifications").
		WithOperation("send_email").
		WithData([]interface{}{
			map[string]interface{}{"to": "a@example.com", "subject": "one"},
			map[string]interface{}{"to": "b@example.com", "subject": "two"},
		}).
		Build()

	err := h.SendEmail(context.Background(), env)
	assert.True(t, apperrors.IsValidation(err))
}

func TestNotificationHandlers_Register(t *testing.T) {
	registry := queue.NewRegistry()
	NewNotificationHandlers(&fakeMailer{}, logger.NopLogger()).Register(registry, "notifications")

	for _, op := range []string{"send_email", "welcome_email", "send_typed_email"} {
		_, err := registry.Resolve("notifications", op)
		assert.NoError(t, err, op)
	}
}

func TestStringSliceField(t *testing.T) {
	cases := []struct {
		name string
		data map[string]interface{}
		want []string
	}{
		{"single string", map[string]interface{}{"to": "a@example.com"}, []string{"a@example.com"}},
		{"empty string", map[string]interface{}{"to": ""}, nil},
		{"interface list", map[string]interface{}{"to": []interface{}{"a@example.com", "", 42, "b@example.com"}}, []string{"a@example.com", "b@example.com"}},
		{"string list", map[string]interface{}{"to": []string{"a@example.com"}}, []string{"a@example.com"}},
		{"missing", map[string]interface{}{}, nil},
		{"wrong type", map[string]interface{}{"to": 7}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stringSliceField(tc.data, "to"))
		})
	}
}
