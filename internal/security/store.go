package security

import (
	"context"
	"sync"
	"time"
)

// Store is the TTL-expiring key-value store behind rate limiting and
// lockout. Injectable so single-process deployments use the in-memory
// implementation and horizontally scaled ones share a Redis instance
// without fragmenting the accounting.
type Store interface {
	// Hit records an attempt for key and returns the attempt count within
	// the window along with the timestamp of the oldest attempt still
	// inside it.
	Hit(ctx context.Context, key string, window time.Duration) (count int, oldest time.Time, err error)

	// Incr increments a counter, setting its TTL on first increment, and
	// returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int, error)

	// Get returns the counter value, 0 if absent or expired.
	Get(ctx context.Context, key string) (int, error)

	// TTL returns the remaining lifetime of a counter, 0 if absent.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Reset removes a key.
	Reset(ctx context.Context, key string) error
}

type counterEntry struct {
	value     int
	expiresAt time.Time
}

// MemoryStore is the single-process Store implementation
type MemoryStore struct {
	mu       sync.Mutex
	hits     map[string][]time.Time
	counters map[string]counterEntry
	now      func() time.Time
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hits:     make(map[string][]time.Time),
		counters: make(map[string]counterEntry),
		now:      time.Now,
	}
}

// Hit records an attempt and returns the in-window count and oldest attempt
func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	kept := s.hits[key][:0]
	for _, ts := range s.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	s.hits[key] = kept

	return len(kept), kept[0], nil
}

// Incr increments a counter with a TTL set on first increment
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.counters[key]
	if !ok || now.After(entry.expiresAt) {
		entry = counterEntry{value: 0, expiresAt: now.Add(ttl)}
	}
	entry.value++
	s.counters[key] = entry

	return entry.value, nil
}

// Get returns the counter value, 0 if absent or expired
func (s *MemoryStore) Get(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok || s.now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.value, nil
}

// TTL returns the remaining counter lifetime
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	remaining := entry.expiresAt.Sub(s.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Reset removes a key
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.hits, key)
	delete(s.counters, key)
	return nil
}
