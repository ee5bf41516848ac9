package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "streamq/pkg/errors"
	"streamq/pkg/models"
)

func noopHandler(ctx context.Context, env *models.Envelope) error { return nil }

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()
	registry.Register("notifications", "send_email", noopHandler)

	handler, err := registry.Resolve("notifications", "send_email")
	require.NoError(t, err)
	assert.NotNil(t, handler)
}

func TestRegistry_Resolve_UnknownDestination(t *testing.T) {
	registry := NewRegistry()
	registry.Register("notifications", "send_email", noopHandler)

	_, err := registry.Resolve("notifications", "send_sms")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnknownDestination(err))

	_, err = registry.Resolve("unknown", "send_email")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnknownDestination(err))
}

func TestRegistry_Fallback(t *testing.T) {
	registry := NewRegistry()
	called := ""
	registry.Register("entities", "insert", func(ctx context.Context, env *models.Envelope) error {
		called = "insert"
		return nil
	})
	registry.RegisterFallback("entities", func(ctx context.Context, env *models.Envelope) error {
		called = "fallback"
		return nil
	})

	handler, err := registry.Resolve("entities", "insert")
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), nil))
	assert.Equal(t, "insert", called)

	handler, err = registry.Resolve("entities", "anything_else")
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), nil))
	assert.Equal(t, "fallback", called)
}

func TestRegistry_Queues(t *testing.T) {
	registry := NewRegistry()
	registry.Register("a", "op", noopHandler)
	registry.Register("b", "op", noopHandler)
	registry.RegisterFallback("c", noopHandler)

	queues := registry.Queues()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, queues)
}
