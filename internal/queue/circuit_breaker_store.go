package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"streamq/internal/config"
	"streamq/pkg/circuitbreaker"
)

// CircuitBreakerStore decorates a Store with a circuit breaker so a
// misbehaving Redis fails fast instead of piling up timeouts. Only the
// write-path operations go through the breaker; reads and admin calls
// pass straight through.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store, cb: nil}
	}

	cbConfig := circuitbreaker.DefaultConfig("redis-streams")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) Add(ctx context.Context, stream, id string, payload []byte) (string, error) {
	if s.cb == nil {
		return s.store.Add(ctx, stream, id, payload)
	}

	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return s.store.Add(ctx, stream, id, payload)
	})

	s.cb.RecordRequest(err == nil)

	if err != nil {
		if s.cb.IsOpen() {
			return "", fmt.Errorf("circuit breaker is open for redis-streams: %w", err)
		}
		return "", err
	}

	entryID, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("store returned invalid result type")
	}
	return entryID, nil
}

func (s *CircuitBreakerStore) AddPipelined(ctx context.Context, stream string, entries []Entry) error {
	if s.cb == nil {
		return s.store.AddPipelined(ctx, stream, entries)
	}

	_, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, s.store.AddPipelined(ctx, stream, entries)
	})

	s.cb.RecordRequest(err == nil)

	if err != nil && s.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for redis-streams: %w", err)
	}
	return err
}

func (s *CircuitBreakerStore) ReadGroup(ctx context.Context, stream, group, consumer, cursor string, count int64, block time.Duration) ([]Entry, error) {
	return s.store.ReadGroup(ctx, stream, group, consumer, cursor, count, block)
}

func (s *CircuitBreakerStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.store.Ack(ctx, stream, group, ids...)
}

func (s *CircuitBreakerStore) PendingRange(ctx context.Context, stream, group, consumer string, count int64) ([]PendingEntry, error) {
	return s.store.PendingRange(ctx, stream, group, consumer, count)
}

func (s *CircuitBreakerStore) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Entry, error) {
	return s.store.Claim(ctx, stream, group, consumer, minIdle, ids)
}

func (s *CircuitBreakerStore) Range(ctx context.Context, stream, start, stop string, count int64) ([]Entry, error) {
	return s.store.Range(ctx, stream, start, stop, count)
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, stream string, ids ...string) error {
	return s.store.Delete(ctx, stream, ids...)
}

func (s *CircuitBreakerStore) DeleteStream(ctx context.Context, stream string) error {
	return s.store.DeleteStream(ctx, stream)
}

func (s *CircuitBreakerStore) StreamKeys(ctx context.Context, pattern string) ([]string, error) {
	return s.store.StreamKeys(ctx, pattern)
}

func (s *CircuitBreakerStore) CreateGroup(ctx context.Context, stream, group, startID string) error {
	return s.store.CreateGroup(ctx, stream, group, startID)
}

func (s *CircuitBreakerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *CircuitBreakerStore) Close() error {
	return s.store.Close()
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}
