package security

import (
	"context"
	"time"
)

// RateLimiter enforces a sliding-window limit on attempts per key.
// Keys are expected to be "(clientIP, user-or-anonymous)" pairs; the
// limiter itself is key-agnostic.
type RateLimiter struct {
	store  Store
	max    int
	window time.Duration
}

// NewRateLimiter creates a rate limiter with the given window and max attempts
func NewRateLimiter(store Store, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  store,
		max:    max,
		window: window,
	}
}

// Allow records an attempt and reports whether it is within the limit.
// When the limit is exceeded it returns how long the caller should wait
// before the oldest in-window attempt ages out.
func (l *RateLimiter) Allow(ctx context.Context, key string) (time.Duration, bool, error) {
	count, oldest, err := l.store.Hit(ctx, "ratelimit:"+key, l.window)
	if err != nil {
		return 0, false, err
	}

	if count > l.max {
		retryAfter := l.window - time.Since(oldest)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return retryAfter, false, nil
	}

	return 0, true, nil
}
