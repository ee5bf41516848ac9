package queue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with just enough consumer-group behavior
// for the package tests: auto IDs, explicit-ID ordering checks, a per-group
// PEL and idle-based claiming.
type fakeStore struct {
	mu      sync.Mutex
	streams map[string][]Entry
	// pel is keyed stream/group -> entry ID -> pending state.
	pel map[string]map[string]*fakePending
	// cursor is the group's last-delivered position per stream/group.
	cursor map[string]string

	failAdd       error
	failRead      error
	failPipelined error
	pingErr       error
	groups        map[string]bool
	busyGroups    map[string]bool
}

type fakePending struct {
	consumer  string
	idle      time.Duration
	delivered int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		streams:    make(map[string][]Entry),
		pel:        make(map[string]map[string]*fakePending),
		cursor:     make(map[string]string),
		groups:     make(map[string]bool),
		busyGroups: make(map[string]bool),
	}
}

func idParts(id string) (int64, int64) {
	ms, seq, _ := strings.Cut(id, "-")
	m, _ := strconv.ParseInt(ms, 10, 64)
	s, _ := strconv.ParseInt(seq, 10, 64)
	return m, s
}

func idLess(a, b string) bool {
	am, as := idParts(a)
	bm, bs := idParts(b)
	if am != bm {
		return am < bm
	}
	return as < bs
}

func (f *fakeStore) Add(ctx context.Context, stream, id string, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAdd != nil {
		return "", f.failAdd
	}
	return f.addLocked(stream, id, payload)
}

func (f *fakeStore) addLocked(stream, id string, payload []byte) (string, error) {
	entries := f.streams[stream]
	if id == "" {
		id = fmt.Sprintf("%d-%d", time.Now().UnixMilli(), len(entries))
	}
	if len(entries) > 0 && !idLess(entries[len(entries)-1].ID, id) {
		return "", fmt.Errorf("ERR The ID specified in XADD is equal or smaller than the target stream top item")
	}
	f.streams[stream] = append(entries, Entry{ID: id, Payload: payload})
	return id, nil
}

func (f *fakeStore) AddPipelined(ctx context.Context, stream string, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failPipelined != nil {
		return f.failPipelined
	}
	for _, entry := range entries {
		if _, err := f.addLocked(stream, entry.ID, entry.Payload); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) ReadGroup(ctx context.Context, stream, group, consumer, cursor string, count int64, block time.Duration) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRead != nil {
		return nil, f.failRead
	}

	key := stream + "/" + group
	pel, ok := f.pel[key]
	if !ok {
		pel = make(map[string]*fakePending)
		f.pel[key] = pel
	}

	var out []Entry
	if cursor == ">" {
		last := f.cursor[key]
		for _, entry := range f.streams[stream] {
			if int64(len(out)) >= count {
				break
			}
			if last != "" && !idLess(last, entry.ID) {
				continue
			}
			pel[entry.ID] = &fakePending{consumer: consumer, delivered: 1}
			f.cursor[key] = entry.ID
			out = append(out, entry)
		}
		return out, nil
	}

	// Own-PEL read: every entry pending for this consumer, in ID order.
	var ids []string
	for id, p := range pel {
		if p.consumer == consumer {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
	for _, id := range ids {
		if int64(len(out)) >= count {
			break
		}
		for _, entry := range f.streams[stream] {
			if entry.ID == id {
				out = append(out, entry)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pel := f.pel[stream+"/"+group]
	for _, id := range ids {
		delete(pel, id)
	}
	return nil
}

func (f *fakeStore) PendingRange(ctx context.Context, stream, group, consumer string, count int64) ([]PendingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []PendingEntry
	for id, p := range f.pel[stream+"/"+group] {
		if consumer != "" && p.consumer != consumer {
			continue
		}
		out = append(out, PendingEntry{
			ID:            id,
			Consumer:      p.consumer,
			Idle:          p.idle,
			DeliveryCount: p.delivered,
		})
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	if int64(len(out)) > count {
		out = out[:count]
	}
	return out, nil
}

func (f *fakeStore) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pel := f.pel[stream+"/"+group]
	var out []Entry
	for _, id := range ids {
		p, ok := pel[id]
		if !ok || p.idle < minIdle {
			continue
		}
		p.consumer = consumer
		p.idle = 0
		p.delivered++
		for _, entry := range f.streams[stream] {
			if entry.ID == id {
				out = append(out, entry)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Range(ctx context.Context, stream, start, stop string, count int64) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Entry
	for _, entry := range f.streams[stream] {
		if start != "-" && entry.ID != start && idLess(entry.ID, start) {
			continue
		}
		if stop != "+" && entry.ID != stop {
			ms, _ := idParts(entry.ID)
			stopMs, _ := idParts(stop)
			if ms > stopMs {
				continue
			}
		}
		out = append(out, entry)
		if int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, stream string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	var kept []Entry
	for _, entry := range f.streams[stream] {
		if !remove[entry.ID] {
			kept = append(kept, entry)
		}
	}
	f.streams[stream] = kept
	return nil
}

func (f *fakeStore) DeleteStream(ctx context.Context, stream string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.streams, stream)
	return nil
}

func (f *fakeStore) StreamKeys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	suffix := strings.TrimPrefix(pattern, "*")
	var keys []string
	for key := range f.streams {
		if strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeStore) CreateGroup(ctx context.Context, stream, group, startID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := stream + "/" + group
	if f.busyGroups[key] || f.groups[key] {
		return fmt.Errorf("BUSYGROUP Consumer Group name already exists")
	}
	f.groups[key] = true
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeStore) Close() error { return nil }

// setIdle marks an entry's pending record as idle for the given duration.
func (f *fakeStore) setIdle(stream, group, id string, idle time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pel[stream+"/"+group][id]; ok {
		p.idle = idle
	}
}

// entryCount reports how many entries a stream holds.
func (f *fakeStore) entryCount(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams[stream])
}

// pendingCount reports the size of a group's PEL.
func (f *fakeStore) pendingCount(stream, group string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pel[stream+"/"+group])
}
