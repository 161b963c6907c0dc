package kvstore

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    string
	expireAt time.Time
}

func (m *memoryItem) expired() bool {
	return !m.expireAt.IsZero() && time.Now().After(m.expireAt)
}

// MemoryStore implements Store in process memory. It backs single-node
// deployments and tests; production uses RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	windows map[string][]time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]*memoryItem),
		windows: make(map[string][]time.Time),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data[key]
	if !ok || item.expired() {
		delete(s.data, key)
		return "", ErrNotFound
	}
	return item.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	var expireAt time.Time
	if ttl > 0 {
		expireAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.data[key] = &memoryItem{value: value, expireAt: expireAt}
	s.mu.Unlock()
	return nil
}

// RateLimit consumes one slot from a sliding window over the trailing
// `window`. Stamps older than the window are pruned on every call, so a
// burst straddling two adjacent windows can never exceed the limit.
func (s *MemoryStore) RateLimit(_ context.Context, key string, window time.Duration, limit int) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := time.Now()
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit {
		s.windows[key] = kept
		return true, nil
	}
	s.windows[key] = append(kept, now)
	return false, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
