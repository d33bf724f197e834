package service

import "time"

type options struct {
	now              func() time.Time
	newSlug          func() (string, error)
	incrementTimeout time.Duration
}

type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSlugGenerator replaces GenerateSlug.
func WithSlugGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.newSlug = gen }
}

// WithIncrementTimeout bounds each asynchronous view-count update.
func WithIncrementTimeout(d time.Duration) Option {
	return func(o *options) { o.incrementTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{
		now:              time.Now,
		newSlug:          GenerateSlug,
		incrementTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
