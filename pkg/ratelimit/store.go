package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Window is the state of one identifier's sliding window after a hit was recorded.
type Window struct {
	// Count is the number of hits inside the window, including the one just recorded.
	Count int64
	// ResetAt is when the identifier regains capacity for one more request.
	ResetAt time.Time
}

// CounterStore records a hit and reports the resulting window in one atomic step.
// Concurrent hits for the same key must never observe the same count.
type CounterStore interface {
	Hit(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Window, error)
}

// MemoryStore is an in-process CounterStore with the same semantics as RedisStore.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	err  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

// SetError makes every following Hit fail with err. Pass nil to recover.
func (m *MemoryStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) Hit(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Window{}, m.err
	}

	cutoff := now.Add(-window)
	entries := m.hits[key]
	valid := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	valid = append(valid, now)
	sort.Slice(valid, func(i, j int) bool { return valid[i].Before(valid[j]) })
	m.hits[key] = valid

	return windowFrom(valid, limit, window), nil
}

// windowFrom computes the window for sorted hit times. The identifier regains capacity
// once enough of the oldest hits have aged out to leave room for one more.
func windowFrom(sorted []time.Time, limit int64, window time.Duration) Window {
	count := int64(len(sorted))
	idx := int64(0)
	if count > limit {
		idx = count - limit
	}
	return Window{Count: count, ResetAt: sorted[idx].Add(window)}
}
