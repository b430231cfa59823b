package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// FixedWindow counts events per period in a ulule/limiter store.
type FixedWindow struct {
	Store limiter.Store
}

// Allow increments the counter for key in the current period.
func (f FixedWindow) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	if f.Store == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit, Reset: time.Now().Add(window)}, nil
	}
	res, err := limiter.New(f.Store, limiter.Rate{Period: window, Limit: int64(limit)}).Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: fixed window %s: %w", key, err)
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		Reset:     time.Unix(res.Reset, 0),
	}, nil
}

// ParseRate reads ulule notation such as "120-M" into a window and limit.
func ParseRate(formatted string) (time.Duration, int, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: parse %q: %w", formatted, err)
	}
	return rate.Period, int(rate.Limit), nil
}

// ConfigFromRate builds a Config from ulule notation and a key function.
func ConfigFromRate(formatted string, key func(r *http.Request) string) (Config, error) {
	window, limit, err := ParseRate(formatted)
	if err != nil {
		return Config{}, err
	}
	return Config{Key: key, Window: window, Max: limit}, nil
}
