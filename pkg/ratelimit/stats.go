package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStats counts allowed and denied decisions per policy, in total and per minute.
type RedisStats struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type StatsOption func(*RedisStats)

func WithStatsPrefix(prefix string) StatsOption {
	return func(s *RedisStats) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) StatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

func NewRedisStats(client redis.UniversalClient, opts ...StatsOption) *RedisStats {
	s := &RedisStats{
		client: client,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStats) Record(ctx context.Context, ev Event) error {
	if s == nil || s.client == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	totalKey := s.prefix + ":total"
	policyKey := s.prefix + ":policy"
	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, policyKey, string(ev.Policy)+":"+field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns the cumulative allowed and denied counters.
func (s *RedisStats) Totals(ctx context.Context) (allowed, denied int64, err error) {
	vals, err := s.client.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return 0, 0, err
	}
	allowed, _ = strconv.ParseInt(vals["allowed"], 10, 64)
	denied, _ = strconv.ParseInt(vals["denied"], 10, 64)
	return allowed, denied, nil
}
