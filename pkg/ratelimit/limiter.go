package ratelimit

import (
	"context"
	"time"

	"onelink/pkg/logging"
)

// closedRetryCap bounds the retry hint given when a fail-closed policy denies
// because the store is down.
const closedRetryCap = 30 * time.Second

// Result is the outcome of one limiter check.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	// Reset is when the identifier regains capacity for one more request.
	Reset time.Time
	// Degraded is set when the shared store could not be used.
	Degraded bool
}

// RetryAfter is the wait until Reset, rounded up to whole seconds, never below one.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.Reset.Sub(now)
	if d <= 0 {
		return time.Second
	}
	secs := (d + time.Second - 1) / time.Second
	return secs * time.Second
}

// Event is one decision reported to a Recorder.
type Event struct {
	Policy  RouteClass
	Allowed bool
	At      time.Time
}

// Recorder receives limiter decisions for analytics.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type Limiter struct {
	store    CounterStore
	fallback *LocalFallback
	recorder Recorder
	logger   *logging.Logger
	now      func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, so tests can move time forward.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(l *Limiter) { l.recorder = r }
}

func WithFallback(f *LocalFallback) Option {
	return func(l *Limiter) { l.fallback = f }
}

func NewLimiter(store CounterStore, logger *logging.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback == nil {
		l.fallback = NewLocalFallback()
	}
	return l
}

// Now returns the limiter's clock reading.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Check records one request for identifier under policy p and decides whether it is allowed.
// A store failure is resolved by the policy's failure mode rather than returned.
func (l *Limiter) Check(ctx context.Context, identifier string, p Policy) Result {
	now := l.now()
	key := p.Prefix + ":" + identifier

	w, err := l.store.Hit(ctx, key, p.Limit, p.Window, now)
	if err != nil {
		return l.degrade(ctx, key, p, now, err)
	}

	res := Result{
		Allowed:   w.Count <= p.Limit,
		Limit:     p.Limit,
		Remaining: max(0, p.Limit-w.Count),
		Reset:     w.ResetAt,
	}

	l.logger.LogRateLimit(ctx, string(p.Class), identifier, res.Allowed, res.Remaining)
	if l.recorder != nil {
		if err := l.recorder.Record(ctx, Event{Policy: p.Class, Allowed: res.Allowed, At: now}); err != nil {
			l.logger.Debug(ctx, "rate limit stats not recorded", "policy", p.Class, "error", err)
		}
	}
	return res
}

func (l *Limiter) degrade(ctx context.Context, key string, p Policy, now time.Time, cause error) Result {
	l.logger.Warn(ctx, "rate limit store unavailable",
		"policy", p.Class,
		"failure_mode", p.FailureMode,
		"error", cause,
	)

	switch p.FailureMode {
	case FailClosed:
		return Result{
			Allowed:  false,
			Limit:    p.Limit,
			Reset:    now.Add(min(p.Window, closedRetryCap)),
			Degraded: true,
		}
	case FailLocal:
		return l.fallback.Allow(key, p, now)
	default:
		return Result{
			Allowed:   true,
			Limit:     p.Limit,
			Remaining: p.Limit,
			Reset:     now.Add(p.Window),
			Degraded:  true,
		}
	}
}
