package queue

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"streamq/internal/logger"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/logging"
	"streamq/pkg/metrics"
	"streamq/pkg/models"
	"streamq/pkg/retry"
	"streamq/pkg/tracing"
)

// ProcessorConfig holds the consume-loop tunables.
type ProcessorConfig struct {
	Queues          []string
	GroupName       string
	ConsumerName    string
	ReadCount       int64
	ReadBlock       time.Duration
	ReclaimInterval time.Duration
	ReclaimIdleTime time.Duration
	ReconnectDelay  time.Duration
	ReconnectTries  int
}

// Processor drives at-least-once consumption: read from the consumer group,
// dispatch to handlers, ack on success, re-enqueue with a bumped retry count
// on failure and route to the poison stream once retries are exhausted.
// Entries whose delay_until is still in the future are left pending.
type Processor struct {
	store    Store
	registry *Registry
	groups   *GroupManager
	poison   *PoisonRouter
	cfg      ProcessorConfig
	log      logger.Logger
}

func NewProcessor(store Store, registry *Registry, groups *GroupManager, poison *PoisonRouter, cfg ProcessorConfig, log logger.Logger) *Processor {
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = ConsumerName()
	}
	return &Processor{
		store:    store,
		registry: registry,
		groups:   groups,
		poison:   poison,
		cfg:      cfg,
		log:      log,
	}
}

// Run blocks until the context is canceled. Store errors never terminate the
// loop; the processor pings until the store answers again and resumes.
func (p *Processor) Run(ctx context.Context) error {
	ctx = logging.WithConsumer(ctx, p.cfg.ConsumerName)

	if err := p.groups.InitGroups(ctx, p.cfg.Queues); err != nil {
		return err
	}

	p.log.InfowCtx(ctx, "processor started",
		"queues", p.cfg.Queues,
		"group", p.cfg.GroupName,
		"consumer", p.cfg.ConsumerName)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.reclaimLoop(ctx) })
	g.Go(func() error { return p.consumeLoop(ctx) })
	return g.Wait()
}

func (p *Processor) consumeLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, queue := range p.cfg.Queues {
			qctx := logging.WithQueueName(ctx, queue)

			entries, err := p.readIteration(qctx, queue)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.awaitStore(qctx, err)
				continue
			}

			for _, entry := range entries {
				p.processEntry(qctx, queue, entry)
			}
		}
	}
}

// readIteration gathers one iteration's work for a queue: this consumer's
// own pending entries first, then new entries. Rereading the PEL every pass
// is what gives not-yet-due delayed entries their later chance.
func (p *Processor) readIteration(ctx context.Context, queue string) ([]Entry, error) {
	pending, err := p.store.ReadGroup(ctx, StreamKey(queue),
		p.cfg.GroupName, p.cfg.ConsumerName, "0", p.cfg.ReadCount, -1)
	if err != nil {
		return nil, err
	}

	fresh, err := p.store.ReadGroup(ctx, StreamKey(queue),
		p.cfg.GroupName, p.cfg.ConsumerName, ">", p.cfg.ReadCount, p.cfg.ReadBlock)
	if err != nil {
		return nil, err
	}

	return append(pending, fresh...), nil
}

// reclaimLoop periodically claims entries other consumers left idle and runs
// them through the normal processing path.
func (p *Processor) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, queue := range p.cfg.Queues {
				qctx := logging.WithQueueName(ctx, queue)
				claimed, err := p.groups.ClaimIdle(qctx, queue,
					p.cfg.ConsumerName, p.cfg.ReclaimIdleTime, p.cfg.ReadCount)
				if err != nil {
					p.log.WarnwCtx(qctx, "reclaim pass failed", "error", err)
					continue
				}
				if len(claimed) == 0 {
					continue
				}
				metrics.MessagesReclaimedTotal.WithLabelValues(queue).Add(float64(len(claimed)))
				p.log.InfowCtx(qctx, "reclaimed idle entries", "count", len(claimed))
				for _, entry := range claimed {
					p.processEntry(qctx, queue, entry)
				}
			}
		}
	}
}

// processEntry runs one delivery end to end. Acking is the last step on
// every path except "not yet due", where leaving the entry pending makes the
// reclaim cycle redeliver it later.
func (p *Processor) processEntry(ctx context.Context, queue string, entry Entry) {
	ctx = logging.WithMessageID(ctx, entry.ID)
	start := time.Now()

	env, err := models.UnmarshalEnvelope(entry.Payload)
	if err != nil {
		// A payload that never parses can never succeed. Ack and drop.
		p.log.ErrorwCtx(ctx, "dropping malformed payload", "error", err)
		metrics.MessagesDroppedTotal.WithLabelValues(queue).Inc()
		p.ack(ctx, queue, entry.ID)
		return
	}

	if env.IsDelayed() {
		due := env.DueAt()
		if !due.IsZero() && due.After(time.Now()) {
			p.log.DebugwCtx(ctx, "entry not yet due, leaving pending", "due_at", due)
			return
		}
	}

	spanCtx, span := tracing.StartProcessSpan(ctx, queue, entry.ID)
	err = p.dispatch(spanCtx, &env)
	tracing.EndProcessSpan(span, err)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveProcessingDuration(queue, status, time.Since(start))
	metrics.IncMessagesProcessed(queue, status)

	if err == nil {
		p.ack(ctx, queue, entry.ID)
		return
	}

	// Hand the failure to the poison router; the original entry is acked
	// only after the retry or poison copy is stored, so a crash in between
	// redelivers rather than loses.
	if _, routeErr := p.poison.Route(ctx, queue, &env); routeErr != nil {
		p.log.ErrorwCtx(ctx, "poison routing failed, leaving entry pending",
			"error", routeErr, "handler_error", err)
		return
	}
	p.ack(ctx, queue, entry.ID)
}

func (p *Processor) dispatch(ctx context.Context, env *models.Envelope) (err error) {
	defer func() {
		if rerr := apperrors.RecoverPanic(recover()); rerr != nil {
			err = rerr
		}
	}()

	handler, err := p.registry.Resolve(env.QueueName, env.Operation)
	if err != nil {
		return err
	}
	return handler(ctx, env)
}

func (p *Processor) ack(ctx context.Context, queue, id string) {
	if err := p.store.Ack(ctx, StreamKey(queue), p.cfg.GroupName, id); err != nil {
		p.log.WarnwCtx(ctx, "ack failed, entry may be redelivered", "error", err)
	}
}

// awaitStore blocks until the store answers a ping again, backing off
// between attempts. It never gives up while the context lives.
func (p *Processor) awaitStore(ctx context.Context, cause error) {
	if ctx.Err() != nil {
		return
	}
	p.log.ErrorwCtx(ctx, "store read failed, waiting for store", "error", cause)

	for ctx.Err() == nil {
		err := retry.RetryWithCallback(ctx, retry.ReconnectPolicy(p.cfg.ReconnectTries),
			func() error { return p.store.Ping(ctx) },
			func(attempt int, err error, nextDelay time.Duration) {
				p.log.WarnwCtx(ctx, "store still unreachable",
					"attempt", attempt, "next_delay", nextDelay, "error", err)
			})
		if err == nil {
			metrics.StoreReconnectsTotal.Inc()
			p.log.InfowCtx(ctx, "store reachable again")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.ReconnectDelay):
		}
	}
}
