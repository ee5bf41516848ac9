package scanner

import (
	"context"
	"strconv"
	"time"

	"streamq/internal/constants"
	"streamq/internal/logger"
	"streamq/internal/queue"
	"streamq/pkg/logging"
	"streamq/pkg/metrics"
	"streamq/pkg/models"
)

// Config holds the scan-loop tunables.
type Config struct {
	// ScanInterval is the pause between passes that found ready entries.
	ScanInterval time.Duration
	// IdleSleep is the longer pause after a pass that found nothing.
	IdleSleep time.Duration
	// SeenCapacity caps the de-duplication set; when exceeded the oldest
	// half is discarded.
	SeenCapacity int
}

// Scanner watches every queue stream for delayed entries whose due time has
// arrived and surfaces each exactly once as a log line and a metric. It
// never consumes, acknowledges or deletes anything; actual delivery stays
// with the processor's consumer-group reads.
type Scanner struct {
	store queue.Store
	cfg   Config
	log   logger.Logger

	seen      map[string]struct{}
	seenOrder []string
}

func New(store queue.Store, cfg Config, log logger.Logger) *Scanner {
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = constants.SeenSetCapacity
	}
	return &Scanner{
		store: store,
		cfg:   cfg,
		log:   log,
		seen:  make(map[string]struct{}),
	}
}

// Run blocks until the context is canceled.
func (s *Scanner) Run(ctx context.Context) error {
	s.log.InfowCtx(ctx, "delayed-entry scanner started",
		"scan_interval", s.cfg.ScanInterval, "idle_sleep", s.cfg.IdleSleep)

	for {
		found, err := s.scanOnce(ctx)
		if err != nil {
			s.log.WarnwCtx(ctx, "scan pass failed", "error", err)
		}

		pause := s.cfg.ScanInterval
		if found == 0 {
			pause = s.cfg.IdleSleep
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// scanOnce walks all queue streams and reports how many newly-due delayed
// entries it surfaced.
func (s *Scanner) scanOnce(ctx context.Context) (int, error) {
	keys, err := s.store.StreamKeys(ctx, "*"+constants.StreamSuffix)
	if err != nil {
		return 0, err
	}

	found := 0
	for _, key := range keys {
		if queue.IsPoisonStream(key) {
			continue
		}
		queueName, ok := queue.QueueFromStreamKey(key)
		if !ok {
			continue
		}

		n, err := s.scanStream(logging.WithQueueName(ctx, queueName), key, queueName)
		if err != nil {
			s.log.WarnwCtx(ctx, "failed to scan stream", "stream", key, "error", err)
			continue
		}
		found += n
	}
	return found, nil
}

func (s *Scanner) scanStream(ctx context.Context, key, queueName string) (int, error) {
	now := time.Now()
	// Bound the range to now so not-yet-due explicit IDs stay out of view.
	stop := strconv.FormatInt(now.UnixMilli(), 10)
	entries, err := s.store.Range(ctx, key, "-", stop, int64(s.cfg.SeenCapacity))
	if err != nil {
		return 0, err
	}

	found := 0
	for _, entry := range entries {
		if !s.isReadyDelayed(entry, now) {
			continue
		}
		if _, dup := s.seen[key+"/"+entry.ID]; dup {
			continue
		}
		s.remember(key + "/" + entry.ID)

		metrics.DelayedEntriesReady.WithLabelValues(queueName).Inc()
		s.log.InfowCtx(ctx, "delayed entry now eligible for delivery",
			"entry_id", entry.ID)
		found++
	}
	return found, nil
}

// isReadyDelayed filters to genuinely delayed entries that are now due. The
// ID timestamp heuristic only weeds out ordinary auto-ID entries cheaply;
// the envelope's own delay_until decides.
func (s *Scanner) isReadyDelayed(entry queue.Entry, now time.Time) bool {
	ms, ok := queue.EntryTimestamp(entry.ID)
	if !ok || ms < constants.MinPlausibleEpochMillis {
		return false
	}

	env, err := models.UnmarshalEnvelope(entry.Payload)
	if err != nil {
		return false
	}
	if !env.IsDelayed() {
		return false
	}

	due := env.DueAt()
	return !due.IsZero() && !due.After(now)
}

func (s *Scanner) remember(id string) {
	s.seen[id] = struct{}{}
	s.seenOrder = append(s.seenOrder, id)

	if len(s.seenOrder) <= s.cfg.SeenCapacity {
		return
	}
	// Drop the oldest half to stay bounded.
	cut := len(s.seenOrder) / 2
	for _, old := range s.seenOrder[:cut] {
		delete(s.seen, old)
	}
	s.seenOrder = append([]string(nil), s.seenOrder[cut:]...)
}
