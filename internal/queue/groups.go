package queue

import (
	"context"
	"strings"
	"time"

	"streamq/internal/constants"
	"streamq/internal/logger"
	apperrors "streamq/pkg/errors"
)

// GroupManager creates and inspects consumer groups. Group creation is
// idempotent so every process can run it at startup without coordination.
type GroupManager struct {
	store Store
	group string
	log   logger.Logger
}

func NewGroupManager(store Store, group string, log logger.Logger) *GroupManager {
	if group == "" {
		group = constants.DefaultGroupName
	}
	return &GroupManager{store: store, group: group, log: log}
}

func (m *GroupManager) Group() string {
	return m.group
}

// EnsureGroup creates the consumer group on a queue's stream, creating the
// stream itself if needed. An already existing group is a success.
func (m *GroupManager) EnsureGroup(ctx context.Context, queue string) error {
	stream := StreamKey(queue)
	err := m.store.CreateGroup(ctx, stream, m.group, "0")
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			m.log.Debugw("consumer group already exists", "stream", stream, "group", m.group)
			return nil
		}
		return apperrors.ErrStoreUnavailable.
			WithDetail("message", "failed to create consumer group").
			WithCause(err).
			WithDetail("stream", stream)
	}
	m.log.Infow("created consumer group", "stream", stream, "group", m.group)
	return nil
}

// InitGroups ensures the group exists on every configured queue and its
// poison counterpart.
func (m *GroupManager) InitGroups(ctx context.Context, queues []string) error {
	for _, queue := range queues {
		if err := m.EnsureGroup(ctx, queue); err != nil {
			return err
		}
		if err := m.EnsureGroup(ctx, PoisonQueueName(queue)); err != nil {
			return err
		}
	}
	return nil
}

// ListPending returns the group's pending entries on a queue, across all
// consumers.
func (m *GroupManager) ListPending(ctx context.Context, queue string, count int64) ([]PendingEntry, error) {
	return m.store.PendingRange(ctx, StreamKey(queue), m.group, "", count)
}

// ClaimIdle transfers ownership of entries idle for at least minIdle to the
// given consumer and returns them for reprocessing.
func (m *GroupManager) ClaimIdle(ctx context.Context, queue, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	pending, err := m.store.PendingRange(ctx, StreamKey(queue), m.group, "", count)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, p := range pending {
		if p.Idle >= minIdle {
			stale = append(stale, p.ID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	return m.store.Claim(ctx, StreamKey(queue), m.group, consumer, minIdle, stale)
}
