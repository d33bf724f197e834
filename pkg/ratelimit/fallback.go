package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalFallback is a per-process token bucket used while the shared counter store
// is unreachable. Its limits are per instance, not global.
type LocalFallback struct {
	mu         sync.Mutex
	entries    map[string]*fallbackEntry
	idleTTL    time.Duration
	maxEntries int
}

type fallbackEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewLocalFallback() *LocalFallback {
	return &LocalFallback{
		entries:    make(map[string]*fallbackEntry),
		idleTTL:    15 * time.Minute,
		maxEntries: 10000,
	}
}

// Allow takes one token for key under the given policy.
func (f *LocalFallback) Allow(key string, p Policy, now time.Time) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.entries) >= f.maxEntries {
		f.cleanupLocked(now)
	}

	ent, ok := f.entries[key]
	if !ok {
		every := p.Window / time.Duration(max(p.Limit, 1))
		ent = &fallbackEntry{lim: rate.NewLimiter(rate.Every(every), int(p.Limit))}
		f.entries[key] = ent
	}
	ent.lastSeen = now

	allowed := ent.lim.AllowN(now, 1)
	tokens := ent.lim.TokensAt(now)
	remaining := int64(math.Max(0, math.Floor(tokens)))

	// Time until one whole token is available again.
	wait := time.Duration(0)
	if tokens < 1 {
		wait = time.Duration((1 - tokens) / float64(ent.lim.Limit()) * float64(time.Second))
	}

	return Result{
		Allowed:   allowed,
		Limit:     p.Limit,
		Remaining: remaining,
		Reset:     now.Add(wait),
		Degraded:  true,
	}
}

// Cleanup drops buckets idle for longer than the idle TTL.
func (f *LocalFallback) Cleanup(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupLocked(now)
}

func (f *LocalFallback) cleanupLocked(now time.Time) {
	cutoff := now.Add(-f.idleTTL)
	for k, ent := range f.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(f.entries, k)
		}
	}
}
