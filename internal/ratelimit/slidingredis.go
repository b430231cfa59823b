package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slide trims the window, admits the event when there is room and returns
// {admitted, count, oldest} with timestamps in microseconds.
var slide = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local admitted = 0
if count < limit then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], ARGV[5])
  count = count + 1
  admitted = 1
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local first = now
if oldest[2] then
  first = tonumber(oldest[2])
end
return {admitted, count, first}
`)

// Limiter is a sliding window limiter over a Redis sorted set. Only admitted
// events occupy the window.
type Limiter struct {
	Client redis.Cmdable
	Prefix string
	Now    func() time.Time
}

// Allow admits one event for key if fewer than limit were admitted in the
// trailing window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit, Reset: now.Add(window)}, nil
	}

	args := []any{
		now.UnixMicro(),
		window.Microseconds(),
		limit,
		strconv.FormatInt(now.UnixMicro(), 10) + ":" + uuid.NewString(),
		max(window.Milliseconds(), 1),
	}
	res, err := slide.Run(ctx, l.Client, []string{l.Prefix + key}, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: sliding window %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: sliding window %s: unexpected reply %v", key, res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: max(limit-int(res[1]), 0),
		Reset:     time.UnixMicro(res[2]).Add(window),
	}, nil
}
