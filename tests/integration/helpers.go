package integration

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	"streamq/internal/logger"
	"streamq/internal/queue"
	"streamq/pkg/models"
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestStore(client *redisclient.Client) queue.Store {
	return queue.NewRedisStore(client)
}

func createTestEnvelope(queueName, operation string, data map[string]interface{}) *models.Envelope {
	return models.NewEnvelopeBuilder().
		WithQueueName(queueName).
		WithOperation(operation).
		WithData(data).
		Build()
}

// waitFor polls the condition until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return condition()
}

// streamLen reports the current number of entries in a stream.
func streamLen(ctx context.Context, client *redisclient.Client, stream string) int64 {
	n, err := client.XLen(ctx, stream).Result()
	if err != nil {
		return 0
	}
	return n
}
