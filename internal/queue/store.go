package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"streamq/internal/constants"
)

// Entry is one (ID, serialized envelope) record read from a stream.
type Entry struct {
	ID      string
	Payload []byte
}

// PendingEntry describes an entry delivered to a consumer but not yet
// acknowledged.
type PendingEntry struct {
	ID            string
	Consumer      string
	Idle          time.Duration
	DeliveryCount int64
}

// Store is the stream surface the queue core needs from Redis. Empty results
// and redis.Nil sentinels are normalized to empty successes; callers never
// see a "nothing there" error.
type Store interface {
	Add(ctx context.Context, stream, id string, payload []byte) (string, error)
	AddPipelined(ctx context.Context, stream string, entries []Entry) error
	ReadGroup(ctx context.Context, stream, group, consumer, cursor string, count int64, block time.Duration) ([]Entry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	PendingRange(ctx context.Context, stream, group, consumer string, count int64) ([]PendingEntry, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Entry, error)
	Range(ctx context.Context, stream, start, stop string, count int64) ([]Entry, error)
	Delete(ctx context.Context, stream string, ids ...string) error
	DeleteStream(ctx context.Context, stream string) error
	StreamKeys(ctx context.Context, pattern string) ([]string, error)
	CreateGroup(ctx context.Context, stream, group, startID string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore implements Store on a go-redis client.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Add(ctx context.Context, stream, id string, payload []byte) (string, error) {
	if id == "" {
		id = "*"
	}
	entryID, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     id,
		Values: map[string]interface{}{constants.PayloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd to %s failed: %w", stream, err)
	}
	return entryID, nil
}

func (s *RedisStore) AddPipelined(ctx context.Context, stream string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = "*"
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			ID:     id,
			Values: map[string]interface{}{constants.PayloadField: string(entry.Payload)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipelined xadd to %s failed: %w", stream, err)
	}
	return nil
}

func (s *RedisStore) ReadGroup(ctx context.Context, stream, group, consumer, cursor string, count int64, block time.Duration) ([]Entry, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, cursor},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup from %s failed: %w", stream, err)
	}

	var entries []Entry
	for _, st := range streams {
		for _, msg := range st.Messages {
			entries = append(entries, decodeMessage(msg))
		}
	}
	return entries, nil
}

func (s *RedisStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack on %s failed: %w", stream, err)
	}
	return nil
}

func (s *RedisStore) PendingRange(ctx context.Context, stream, group, consumer string, count int64) ([]PendingEntry, error) {
	args := &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}
	if consumer != "" {
		args.Consumer = consumer
	}
	pending, err := s.client.XPendingExt(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || isMissingKeyErr(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending on %s failed: %w", stream, err)
	}

	entries := make([]PendingEntry, 0, len(pending))
	for _, p := range pending {
		entries = append(entries, PendingEntry{
			ID:            p.ID,
			Consumer:      p.Consumer,
			Idle:          p.Idle,
			DeliveryCount: p.RetryCount,
		})
	}
	return entries, nil
}

func (s *RedisStore) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	msgs, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || isMissingKeyErr(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("xclaim on %s failed: %w", stream, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, decodeMessage(msg))
	}
	return entries, nil
}

func (s *RedisStore) Range(ctx context.Context, stream, start, stop string, count int64) ([]Entry, error) {
	msgs, err := s.client.XRangeN(ctx, stream, start, stop, count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || isMissingKeyErr(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("xrange on %s failed: %w", stream, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, decodeMessage(msg))
	}
	return entries, nil
}

func (s *RedisStore) Delete(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XDel(ctx, stream, ids...).Err(); err != nil {
		return fmt.Errorf("xdel on %s failed: %w", stream, err)
	}
	return nil
}

func (s *RedisStore) DeleteStream(ctx context.Context, stream string) error {
	if err := s.client.Del(ctx, stream).Err(); err != nil {
		return fmt.Errorf("del of %s failed: %w", stream, err)
	}
	return nil
}

func (s *RedisStore) StreamKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan for %s failed: %w", pattern, err)
	}
	return keys, nil
}

func (s *RedisStore) CreateGroup(ctx context.Context, stream, group, startID string) error {
	return s.client.XGroupCreateMkStream(ctx, stream, group, startID).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeMessage(msg redis.XMessage) Entry {
	entry := Entry{ID: msg.ID}
	if raw, ok := msg.Values[constants.PayloadField]; ok {
		if payload, ok := raw.(string); ok {
			entry.Payload = []byte(payload)
		}
	}
	return entry
}

func isMissingKeyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such key") || strings.Contains(msg, "nogroup")
}
