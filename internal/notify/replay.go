package notify

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayProtector remembers which emails went out so a retried task or a
// re-emitted event does not mail the customer twice.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisReplayProtector keeps one key per delivery, valued with the claim time.
type RedisReplayProtector struct {
	Client redis.Cmdable
}

// Acquire claims key and reports false when a delivery already holds it.
func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	err := r.Client.SetArgs(ctx, key, time.Now().UTC().Format(time.RFC3339), redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

// Release drops the claim after a failed send.
func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
