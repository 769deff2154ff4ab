package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// window is the per-key counter.
type window struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu       sync.Mutex
	windows  map[string]*window
	cleanupN uint64
}

// MemoryStore keeps fixed windows in process memory, sharded by key so that
// bursts on different keys do not contend on one lock. Expired windows are
// evicted opportunistically.
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	for i := range m.shards {
		m.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return m
}

func (m *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// Take implements Store. A request that is rejected does not advance the
// count.
func (m *MemoryStore) Take(_ context.Context, key string, limit int, win time.Duration, now time.Time) (int, time.Time, bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic cleanup after a threshold of lookups, run before the
	// requested window is touched.
	s.cleanupN++
	if s.cleanupN >= 5000 {
		for k, w := range s.windows {
			if now.After(w.resetAt) {
				delete(s.windows, k)
			}
		}
		s.cleanupN = 0
	}

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(win)}
		s.windows[key] = w
		return w.count, w.resetAt, true, nil
	}
	if w.count >= limit {
		return w.count, w.resetAt, false, nil
	}
	w.count++
	return w.count, w.resetAt, true, nil
}

// Len returns the number of tracked windows.
func (m *MemoryStore) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}
