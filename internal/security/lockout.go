package security

import (
	"context"
	"time"
)

// Lockout tracks failed payment attempts per identifier and locks the
// identifier out once the threshold is reached. A successful payment
// clears the counter.
type Lockout struct {
	store  Store
	max    int
	window time.Duration
}

// NewLockout creates a lockout tracker
func NewLockout(store Store, max int, window time.Duration) *Lockout {
	return &Lockout{
		store:  store,
		max:    max,
		window: window,
	}
}

// RecordFailure increments the failure counter and reports whether the
// identifier is now locked
func (l *Lockout) RecordFailure(ctx context.Context, identifier string) (bool, error) {
	count, err := l.store.Incr(ctx, "lockout:"+identifier, l.window)
	if err != nil {
		return false, err
	}
	return count >= l.max, nil
}

// IsLocked reports whether the identifier is locked and, if so, for how
// much longer
func (l *Lockout) IsLocked(ctx context.Context, identifier string) (bool, time.Duration, error) {
	count, err := l.store.Get(ctx, "lockout:"+identifier)
	if err != nil {
		return false, 0, err
	}
	if count < l.max {
		return false, 0, nil
	}

	remaining, err := l.store.TTL(ctx, "lockout:"+identifier)
	if err != nil {
		return false, 0, err
	}
	return true, remaining, nil
}

// Clear removes the failure counter after a successful payment
func (l *Lockout) Clear(ctx context.Context, identifier string) error {
	return l.store.Reset(ctx, "lockout:"+identifier)
}
