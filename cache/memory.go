package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-protected map of CacheEntry values. Expired
// entries are never swept; they are treated as absent and overwritten.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry[T]
	ttl     time.Duration
	now     Clock
}

// NewMemoryStore creates an empty store. A nil clock means time.Now.
func NewMemoryStore[T any](ttl time.Duration, clock Clock) *MemoryStore[T] {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore[T]{
		entries: make(map[string]CacheEntry[T]),
		ttl:     ttl,
		now:     clock,
	}
}

var _ Store[int] = (*MemoryStore[int])(nil)

func (m *MemoryStore[T]) Get(_ context.Context, key string) (T, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !entry.Fresh(m.now()) {
		var zero T
		return zero, false, nil
	}
	return entry.Value, true, nil
}

func (m *MemoryStore[T]) Set(_ context.Context, key string, value T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = CacheEntry[T]{Value: value, ExpiresAt: m.now().Add(m.ttl)}
	return nil
}

// Len counts stored entries, stale ones included.
func (m *MemoryStore[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
