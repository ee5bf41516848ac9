package queue

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamq/internal/constants"
)

// StreamKey returns the stream backing a queue: "{queue}:stream".
func StreamKey(queue string) string {
	return queue + constants.StreamSuffix
}

// PoisonQueueName returns the dead-letter queue for a queue: "{queue}-poison".
func PoisonQueueName(queue string) string {
	return queue + constants.PoisonQueueSuffix
}

// PoisonStreamKey returns the stream backing a queue's dead-letter log.
func PoisonStreamKey(queue string) string {
	return StreamKey(PoisonQueueName(queue))
}

// QueueFromStreamKey recovers the queue name from a stream key.
func QueueFromStreamKey(key string) (string, bool) {
	if !strings.HasSuffix(key, constants.StreamSuffix) {
		return "", false
	}
	return strings.TrimSuffix(key, constants.StreamSuffix), true
}

// IsPoisonStream reports whether a stream key belongs to a dead-letter log.
func IsPoisonStream(key string) bool {
	queue, ok := QueueFromStreamKey(key)
	return ok && strings.HasSuffix(queue, constants.PoisonQueueSuffix)
}

// DelayedEntryID encodes a delivery time into an explicit stream entry ID.
// The sequence part disambiguates multiple entries due in the same
// millisecond within one pipelined append.
func DelayedEntryID(due time.Time, seq int64) string {
	return fmt.Sprintf("%d-%d", due.UnixMilli(), seq)
}

// EntryTimestamp parses the millisecond prefix of a stream entry ID.
func EntryTimestamp(id string) (int64, bool) {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// ConsumerName derives a per-process consumer identity so independent
// processor instances sharing a group never collide.
func ConsumerName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = uuid.NewString()
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
