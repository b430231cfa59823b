package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock: not acquired")

var errHeld = errors.New("lock: held elsewhere")

// unlock deletes the key only while it still carries our token.
var unlock = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker serialises work per key across API replicas, such as booking
// submissions for one customer.
type Locker struct {
	R            redis.Cmdable
	Prefix       string
	TTL          time.Duration
	RetryBackoff time.Duration
}

// CustomerKey scopes a lock to a customer email, ignoring case and padding.
func CustomerKey(email string) string {
	return "customer:" + strings.ToLower(strings.TrimSpace(email))
}

// WithLock runs fn while holding key. The lock is released when fn returns
// and expires after TTL if the holder dies first.
func (l Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	full := l.key(key)
	token := uuid.NewString()
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}

	acquire := func() error {
		ok, err := l.R.SetNX(ctx, full, token, ttl).Result()
		switch {
		case err != nil:
			return backoff.Permanent(err)
		case !ok:
			return errHeld
		}
		return nil
	}
	if err := backoff.Retry(acquire, backoff.WithContext(backoff.NewConstantBackOff(wait), ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctxErr)
		}
		return fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	defer l.release(full, token)
	return fn(ctx)
}

func (l Locker) key(key string) string {
	if l.Prefix == "" {
		return "lock:" + key
	}
	return strings.TrimSuffix(l.Prefix, ":") + ":" + key
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = unlock.Run(ctx, l.R, []string{key}, token).Err()
}
