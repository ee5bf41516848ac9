package queue

import (
	"context"
	"time"

	"streamq/internal/logger"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/metrics"
	"streamq/pkg/models"
)

// Producer enqueues envelopes onto per-queue streams. Envelopes with a
// future delay_until are stored under an explicit entry ID whose timestamp
// part is the due time, which keeps them invisible to the scanner until due.
// Redis rejects explicit IDs smaller than the stream's current max ID; that
// error is surfaced to the caller rather than silently reordered.
type Producer struct {
	store Store
	log   logger.Logger
}

func NewProducer(store Store, log logger.Logger) *Producer {
	return &Producer{store: store, log: log}
}

// Enqueue appends a single envelope to its queue's stream and returns the
// assigned entry ID.
func (p *Producer) Enqueue(ctx context.Context, env *models.Envelope) (string, error) {
	if err := validateEnvelope(env); err != nil {
		return "", err
	}

	payload, err := env.Marshal()
	if err != nil {
		return "", apperrors.ErrValidation.WithDetail("message", "failed to serialize envelope").WithCause(err)
	}

	id, mode, err := entryIDFor(env)
	if err != nil {
		return "", err
	}

	stream := StreamKey(env.QueueName)
	entryID, err := p.store.Add(ctx, stream, id, payload)
	if err != nil {
		return "", apperrors.ErrStoreUnavailable.WithDetail("message", "failed to append entry").
			WithCause(err).
			WithDetail("stream", stream)
	}

	metrics.IncMessagesEnqueued(env.QueueName, mode)
	p.log.DebugwCtx(ctx, "enqueued message",
		"queue", env.QueueName,
		"operation", env.Operation,
		"entry_id", entryID,
		"mode", mode)
	return entryID, nil
}

// EnqueueDelayed stamps the envelope with a delivery time the given delay
// from now, then enqueues it.
func (p *Producer) EnqueueDelayed(ctx context.Context, env *models.Envelope, delay time.Duration) (string, error) {
	if env != nil && delay > 0 {
		env.DelayUntil = time.Now().Add(delay).Format(models.DelayUntilLayout)
	}
	return p.Enqueue(ctx, env)
}

func validateEnvelope(env *models.Envelope) error {
	if env == nil {
		return apperrors.ErrValidation.WithDetail("message", "envelope is nil")
	}
	if env.QueueName == "" {
		return apperrors.ErrValidation.WithDetail("message", "queue name is required")
	}
	if env.Operation == "" {
		return apperrors.ErrValidation.WithDetail("message", "operation is required")
	}
	return nil
}

// entryIDFor picks the stream ID for an envelope: "" (auto) for immediate
// delivery, an explicit due-time ID for delayed delivery.
func entryIDFor(env *models.Envelope) (string, string, error) {
	if !env.IsDelayed() {
		return "", "immediate", nil
	}
	due := env.DueAt()
	if due.IsZero() {
		return "", "", apperrors.ErrValidation.
			WithDetail("message", "invalid delay_until value").
			WithDetail("delay_until", env.DelayUntil)
	}
	if !due.After(time.Now()) {
		// Already due, let Redis assign the ID.
		return "", "immediate", nil
	}
	return DelayedEntryID(due, 0), "delayed", nil
}
