package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingLogScript trims hits older than the window, records the new hit and
// returns {count, resetAtMillis}. The hit is recorded before the comparison is made,
// so denied calls still occupy the window.
var slidingLogScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)

local count = redis.call('ZCARD', key)
local idx = 0
if count > limit then
	idx = count - limit
end

local reset = now + window
local entry = redis.call('ZRANGE', key, idx, idx, 'WITHSCORES')
if entry[2] then
	reset = tonumber(entry[2]) + window
end

return {count, reset}
`)

// RedisStore is the CounterStore backed by a Redis sorted set per identifier.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Window, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	vals, err := slidingLogScript.Run(ctx, s.client, []string{key},
		nowMs, window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Window{}, fmt.Errorf("sliding window %s: unexpected reply length %d", key, len(vals))
	}

	return Window{Count: vals[0], ResetAt: time.UnixMilli(vals[1])}, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
