package queue

import (
	"context"
	"time"

	"streamq/internal/constants"
	"streamq/internal/logger"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/metrics"
	"streamq/pkg/models"
)

// PoisonMessage is a poison-stream entry with its decoded envelope. Raw is
// kept for entries whose payload no longer parses.
type PoisonMessage struct {
	ID       string           `json:"id"`
	Envelope *models.Envelope `json:"envelope,omitempty"`
	Raw      string           `json:"raw,omitempty"`
}

// PoisonRouter owns the fate of failed deliveries: below the retry budget a
// message is re-enqueued with its counter bumped, at the budget it moves to
// the queue's poison stream for manual inspection and replay.
type PoisonRouter struct {
	store      Store
	maxRetries int
	log        logger.Logger
}

func NewPoisonRouter(store Store, maxRetries int, log logger.Logger) *PoisonRouter {
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxRetries
	}
	return &PoisonRouter{store: store, maxRetries: maxRetries, log: log}
}

// Route handles one failed delivery. The re-enqueued copy is always
// immediate; a delayed message that already failed once has no schedule left
// to honor. Each call appends exactly one new entry, so duplicate routing of
// the same logical failure is an at-least-once artifact, not corruption.
func (r *PoisonRouter) Route(ctx context.Context, queueName string, env *models.Envelope) (string, error) {
	if env == nil || queueName == "" {
		return "", apperrors.ErrValidation.WithDetail("message", "envelope has no queue name")
	}

	if env.Retries < r.maxRetries {
		retryEnv := *env
		retryEnv.Retries++
		retryEnv.QueueName = queueName
		retryEnv.DelayUntil = ""

		payload, err := retryEnv.Marshal()
		if err != nil {
			return "", apperrors.ErrValidation.
				WithDetail("message", "failed to serialize retry envelope").
				WithCause(err)
		}

		entryID, err := r.store.Add(ctx, StreamKey(queueName), "", payload)
		if err != nil {
			return "", apperrors.ErrStoreUnavailable.
				WithDetail("message", "failed to re-enqueue for retry").
				WithCause(err)
		}

		metrics.MessagesRetriedTotal.WithLabelValues(queueName).Inc()
		r.log.WarnwCtx(ctx, "message re-enqueued for retry",
			"queue", queueName,
			"operation", env.Operation,
			"retries", retryEnv.Retries,
			"entry_id", entryID)
		return entryID, nil
	}

	poisoned := *env
	poisoned.QueueName = PoisonQueueName(queueName)
	poisoned.PoisonedAt = float64(time.Now().UnixMilli()) / 1000.0

	payload, err := poisoned.Marshal()
	if err != nil {
		return "", apperrors.ErrValidation.
			WithDetail("message", "failed to serialize poison envelope").
			WithCause(err)
	}

	stream := PoisonStreamKey(queueName)
	entryID, err := r.store.Add(ctx, stream, "", payload)
	if err != nil {
		return "", apperrors.ErrStoreUnavailable.
			WithDetail("message", "failed to append poison entry").
			WithCause(err).
			WithDetail("stream", stream)
	}

	metrics.MessagesPoisonedTotal.WithLabelValues(queueName).Inc()
	r.log.WarnwCtx(ctx, "message routed to poison queue",
		"queue", queueName,
		"operation", env.Operation,
		"retries", env.Retries,
		"poison_entry_id", entryID)
	return entryID, nil
}

// Messages returns up to limit entries from the queue's poison stream,
// oldest first.
func (r *PoisonRouter) Messages(ctx context.Context, queue string, limit int64) ([]PoisonMessage, error) {
	if limit <= 0 {
		limit = constants.PoisonInspectLimit
	}
	entries, err := r.store.Range(ctx, PoisonStreamKey(queue), "-", "+", limit)
	if err != nil {
		return nil, err
	}

	messages := make([]PoisonMessage, 0, len(entries))
	for _, entry := range entries {
		msg := PoisonMessage{ID: entry.ID}
		env, err := models.UnmarshalEnvelope(entry.Payload)
		if err != nil {
			msg.Raw = string(entry.Payload)
		} else {
			msg.Envelope = &env
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Purge drops the queue's entire poison stream.
func (r *PoisonRouter) Purge(ctx context.Context, queue string) error {
	if err := r.store.DeleteStream(ctx, PoisonStreamKey(queue)); err != nil {
		return err
	}
	r.log.InfowCtx(ctx, "purged poison queue", "queue", queue)
	return nil
}

// Requeue moves one poison entry back onto its main stream with the retry
// count reset, then removes it from the poison stream.
func (r *PoisonRouter) Requeue(ctx context.Context, queue, id string) (string, error) {
	poisonStream := PoisonStreamKey(queue)
	entries, err := r.store.Range(ctx, poisonStream, id, id, 1)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", apperrors.ErrNotFound.
			WithDetail("message", "poison entry not found").
			WithDetail("entry_id", id)
	}

	env, err := models.UnmarshalEnvelope(entries[0].Payload)
	if err != nil {
		return "", apperrors.ErrMalformedPayload.
			WithDetail("message", "poison entry cannot be requeued").
			WithCause(err).
			WithDetail("entry_id", id)
	}

	env.QueueName = queue
	env.Retries = 0
	env.PoisonedAt = 0
	payload, err := env.Marshal()
	if err != nil {
		return "", apperrors.ErrValidation.
			WithDetail("message", "failed to serialize requeued envelope").
			WithCause(err)
	}

	entryID, err := r.store.Add(ctx, StreamKey(queue), "", payload)
	if err != nil {
		return "", apperrors.ErrStoreUnavailable.
			WithDetail("message", "failed to requeue entry").
			WithCause(err)
	}

	if err := r.store.Delete(ctx, poisonStream, id); err != nil {
		r.log.WarnwCtx(ctx, "requeued entry left on poison stream",
			"queue", queue, "entry_id", id, "error", err)
	}

	r.log.InfowCtx(ctx, "requeued poison entry",
		"queue", queue, "poison_entry_id", id, "entry_id", entryID)
	return entryID, nil
}
