package queue

import (
	"context"
	"sync"
	"time"

	"streamq/internal/logger"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/metrics"
	"streamq/pkg/models"
)

// BatchConfig controls when buffered envelopes are flushed.
type BatchConfig struct {
	// Size flushes a queue's buffer once it holds this many envelopes.
	Size int
	// Timeout flushes a queue's buffer once its oldest envelope has been
	// sitting for this long.
	Timeout time.Duration
	// FlushInterval is how often the background loop sweeps all buffers.
	FlushInterval time.Duration
}

type batchBuffer struct {
	envelopes []*models.Envelope
	oldest    time.Time
}

// BatchAccumulator buffers envelopes per queue and appends them in a single
// pipelined write per flush. A failed flush puts the batch back at the front
// of the buffer so nothing is lost; duplicates are possible if the pipeline
// partially succeeded, which at-least-once delivery already tolerates.
type BatchAccumulator struct {
	store Store
	cfg   BatchConfig
	log   logger.Logger

	mu      sync.Mutex
	buffers map[string]*batchBuffer
}

func NewBatchAccumulator(store Store, cfg BatchConfig, log logger.Logger) *BatchAccumulator {
	return &BatchAccumulator{
		store:   store,
		cfg:     cfg,
		log:     log,
		buffers: make(map[string]*batchBuffer),
	}
}

// Add buffers an envelope. When the queue's buffer reaches the configured
// size it is flushed inline on the caller's goroutine.
func (b *BatchAccumulator) Add(ctx context.Context, env *models.Envelope) error {
	if err := validateEnvelope(env); err != nil {
		return err
	}

	b.mu.Lock()
	buf, ok := b.buffers[env.QueueName]
	if !ok {
		buf = &batchBuffer{}
		b.buffers[env.QueueName] = buf
	}
	if len(buf.envelopes) == 0 {
		buf.oldest = time.Now()
	}
	buf.envelopes = append(buf.envelopes, env)
	full := len(buf.envelopes) >= b.cfg.Size
	b.mu.Unlock()

	if full {
		return b.Flush(ctx, env.QueueName)
	}
	return nil
}

// Flush writes a single queue's buffered envelopes.
func (b *BatchAccumulator) Flush(ctx context.Context, queue string) error {
	b.mu.Lock()
	buf, ok := b.buffers[queue]
	if !ok || len(buf.envelopes) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := buf.envelopes
	buf.envelopes = nil
	b.mu.Unlock()

	if err := b.write(ctx, queue, batch); err != nil {
		b.mu.Lock()
		buf = b.buffers[queue]
		if buf == nil {
			buf = &batchBuffer{}
			b.buffers[queue] = buf
		}
		buf.envelopes = append(batch, buf.envelopes...)
		if buf.oldest.IsZero() || buf.oldest.After(time.Now()) {
			buf.oldest = time.Now()
		}
		b.mu.Unlock()
		metrics.BatchFlushesTotal.WithLabelValues(queue, "error").Inc()
		return err
	}

	metrics.ObserveBatchFlush(queue, len(batch), "ok")
	b.log.DebugwCtx(ctx, "flushed batch", "queue", queue, "size", len(batch))
	return nil
}

// FlushAll writes every buffered envelope. The first error is returned after
// all queues have been attempted.
func (b *BatchAccumulator) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	queues := make([]string, 0, len(b.buffers))
	for queue := range b.buffers {
		queues = append(queues, queue)
	}
	b.mu.Unlock()

	var firstErr error
	for _, queue := range queues {
		if err := b.Flush(ctx, queue); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run sweeps the buffers on a ticker, flushing any queue whose oldest
// envelope exceeds the batch timeout, and flushes everything on shutdown.
func (b *BatchAccumulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.FlushAll(flushCtx); err != nil {
				b.log.Errorw("final batch flush failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			for _, queue := range b.dueQueues() {
				if err := b.Flush(ctx, queue); err != nil {
					b.log.ErrorwCtx(ctx, "periodic batch flush failed",
						"queue", queue, "error", err)
				}
			}
		}
	}
}

func (b *BatchAccumulator) dueQueues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var due []string
	for queue, buf := range b.buffers {
		if len(buf.envelopes) == 0 {
			continue
		}
		if time.Since(buf.oldest) >= b.cfg.Timeout {
			due = append(due, queue)
		}
	}
	return due
}

// write serializes a batch into stream entries and appends them in one
// pipeline. Delayed envelopes get explicit due-time IDs; a per-millisecond
// sequence counter keeps IDs within the batch unique.
func (b *BatchAccumulator) write(ctx context.Context, queue string, batch []*models.Envelope) error {
	entries := make([]Entry, 0, len(batch))
	seqByMillis := make(map[int64]int64)
	delayed := 0

	for _, env := range batch {
		payload, err := env.Marshal()
		if err != nil {
			b.log.ErrorwCtx(ctx, "dropping unserializable envelope from batch",
				"queue", queue, "operation", env.Operation, "error", err)
			metrics.MessagesDroppedTotal.WithLabelValues(queue).Inc()
			continue
		}

		id, mode, err := entryIDFor(env)
		if err != nil {
			b.log.ErrorwCtx(ctx, "dropping envelope with invalid delay from batch",
				"queue", queue, "operation", env.Operation, "error", err)
			metrics.MessagesDroppedTotal.WithLabelValues(queue).Inc()
			continue
		}
		if mode == "delayed" {
			due := env.DueAt()
			ms := due.UnixMilli()
			id = DelayedEntryID(due, seqByMillis[ms])
			seqByMillis[ms]++
			delayed++
		}

		entries = append(entries, Entry{ID: id, Payload: payload})
	}

	if len(entries) == 0 {
		return nil
	}

	if err := b.store.AddPipelined(ctx, StreamKey(queue), entries); err != nil {
		return apperrors.ErrStoreUnavailable.
			WithDetail("message", "batch append failed").
			WithCause(err).
			WithDetail("queue", queue)
	}

	immediate := len(entries) - delayed
	if immediate > 0 {
		metrics.MessagesEnqueuedTotal.WithLabelValues(queue, "immediate").Add(float64(immediate))
	}
	if delayed > 0 {
		metrics.MessagesEnqueuedTotal.WithLabelValues(queue, "delayed").Add(float64(delayed))
	}
	return nil
}
