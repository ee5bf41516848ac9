package integration

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamq/internal/queue"
	"streamq/pkg/models"
)

func startProcessor(t *testing.T, store queue.Store, registry *queue.Registry, queues []string, maxRetries int) {
	t.Helper()

	log := createTestLogger()
	groups := queue.NewGroupManager(store, "integration-group", log)
	poison := queue.NewPoisonRouter(store, maxRetries, log)
	processor := queue.NewProcessor(store, registry, groups, poison, queue.ProcessorConfig{
		Queues:          queues,
		GroupName:       "integration-group",
		ConsumerName:    "integration-consumer",
		ReadCount:       10,
		ReadBlock:       100 * time.Millisecond,
		ReclaimInterval: time.Second,
		ReclaimIdleTime: time.Second,
		ReconnectDelay:  100 * time.Millisecond,
		ReconnectTries:  1,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Log("processor did not stop in time")
		}
	})
}

func TestQueueFlow_EnqueueAndProcess(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	store := createTestStore(infra.RedisClient)
	producer := queue.NewProducer(store, createTestLogger())
	ctx := context.Background()

	var processed atomic.Int64
	registry := queue.NewRegistry()
	registry.Register("orders", "create", func(ctx context.Context, env *models.Envelope) error {
		processed.Add(1)
		return nil
	})
	startProcessor(t, store, registry, []string{"orders"}, 3)

	for i := 0; i < 5; i++ {
		_, err := producer.Enqueue(ctx, createTestEnvelope("orders", "create",
			map[string]interface{}{"id": i}))
		require.NoError(t, err)
	}

	ok := waitFor(t, 10*time.Second, func() bool { return processed.Load() == 5 })
	assert.True(t, ok, "expected 5 processed, got %d", processed.Load())

	// Everything acked, nothing poisoned.
	pending, err := infra.RedisClient.XPending(ctx, "orders:stream", "integration-group").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
	assert.Zero(t, streamLen(ctx, infra.RedisClient, "orders-poison:stream"))
}

func TestQueueFlow_FailingMessageEndsInPoisonStream(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	store := createTestStore(infra.RedisClient)
	producer := queue.NewProducer(store, createTestLogger())
	ctx := context.Background()

	var attempts atomic.Int64
	registry := queue.NewRegistry()
	registry.Register("orders", "create", func(ctx context.Context, env *models.Envelope) error {
		attempts.Add(1)
		return errors.New("downstream unavailable")
	})
	startProcessor(t, store, registry, []string{"orders"}, 2)

	_, err := producer.Enqueue(ctx, createTestEnvelope("orders", "create",
		map[string]interface{}{"id": "ord-1"}))
	require.NoError(t, err)

	ok := waitFor(t, 10*time.Second, func() bool {
		return streamLen(ctx, infra.RedisClient, "orders-poison:stream") == 1
	})
	require.True(t, ok, "poison entry never appeared")

	// Original attempt plus two retries.
	assert.Equal(t, int64(3), attempts.Load())

	poison := queue.NewPoisonRouter(store, 2, createTestLogger())
	messages, err := poison.Messages(ctx, "orders", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].Envelope)
	assert.Equal(t, "orders-poison", messages[0].Envelope.QueueName)
	assert.Greater(t, messages[0].Envelope.PoisonedAt, float64(0))
}

func TestQueueFlow_DelayedEntryIsDeliveredAfterDueTime(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	store := createTestStore(infra.RedisClient)
	producer := queue.NewProducer(store, createTestLogger())
	ctx := context.Background()

	var processedAt atomic.Value
	registry := queue.NewRegistry()
	registry.Register("orders", "create", func(ctx context.Context, env *models.Envelope) error {
		processedAt.Store(time.Now())
		return nil
	})
	startProcessor(t, store, registry, []string{"orders"}, 3)

	enqueued := time.Now()
	env := createTestEnvelope("orders", "create", map[string]interface{}{"id": "ord-1"})
	_, err := producer.EnqueueDelayed(ctx, env, 3*time.Second)
	require.NoError(t, err)

	ok := waitFor(t, 15*time.Second, func() bool { return processedAt.Load() != nil })
	require.True(t, ok, "delayed entry was never processed")

	// The DelayUntil layout has one-second resolution, so allow slack on
	// the near edge.
	elapsed := processedAt.Load().(time.Time).Sub(enqueued)
	assert.GreaterOrEqual(t, elapsed, 2*time.Second, "delivered too early: %v", elapsed)
}

func TestQueueFlow_RequeueFromPoison(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	store := createTestStore(infra.RedisClient)
	producer := queue.NewProducer(store, createTestLogger())
	ctx := context.Background()

	// Fail until the message comes back from the poison stream.
	var healthy atomic.Bool
	var processed atomic.Int64
	registry := queue.NewRegistry()
	registry.Register("orders", "create", func(ctx context.Context, env *models.Envelope) error {
		if !healthy.Load() {
			return errors.New("downstream unavailable")
		}
		processed.Add(1)
		return nil
	})
	startProcessor(t, store, registry, []string{"orders"}, 1)

	_, err := producer.Enqueue(ctx, createTestEnvelope("orders", "create",
		map[string]interface{}{"id": "ord-1"}))
	require.NoError(t, err)

	ok := waitFor(t, 10*time.Second, func() bool {
		return streamLen(ctx, infra.RedisClient, "orders-poison:stream") == 1
	})
	require.True(t, ok, "poison entry never appeared")

	healthy.Store(true)

	poison := queue.NewPoisonRouter(store, 1, createTestLogger())
	messages, err := poison.Messages(ctx, "orders", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	_, err = poison.Requeue(ctx, "orders", messages[0].ID)
	require.NoError(t, err)

	ok = waitFor(t, 10*time.Second, func() bool { return processed.Load() == 1 })
	assert.True(t, ok, "requeued entry was never processed")
	assert.Zero(t, streamLen(ctx, infra.RedisClient, "orders-poison:stream"))
}

func TestQueueFlow_BatchProducer(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	store := createTestStore(infra.RedisClient)
	ctx := context.Background()

	var processed atomic.Int64
	registry := queue.NewRegistry()
	registry.Register("orders", "create", func(ctx context.Context, env *models.Envelope) error {
		processed.Add(1)
		return nil
	})
	startProcessor(t, store, registry, []string{"orders"}, 3)

	batch := queue.NewBatchAccumulator(store, queue.BatchConfig{
		Size:          10,
		Timeout:       100 * time.Millisecond,
		FlushInterval: 100 * time.Millisecond,
	}, createTestLogger())

	for i := 0; i < 25; i++ {
		require.NoError(t, batch.Add(ctx, createTestEnvelope("orders", "create",
			map[string]interface{}{"id": i})))
	}
	require.NoError(t, batch.FlushAll(ctx))

	ok := waitFor(t, 10*time.Second, func() bool { return processed.Load() == 25 })
	assert.True(t, ok, "expected 25 processed, got %d", processed.Load())
}
