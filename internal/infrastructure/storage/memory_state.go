package storage

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/nextai-chat/internal/domain/repository"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryStateStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStateStore in-memory state store. Its contents live as long as the process.
func NewMemoryStateStore() repository.StateStore {
	return NewMemoryStateStoreWithClock(time.Now)
}

// NewMemoryStateStoreWithClock in-memory state store with a custom clock for expiry
func NewMemoryStateStoreWithClock(now func() time.Time) repository.StateStore {
	return &memoryStateStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Get returns a live value
func (m *memoryStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		return "", false, nil
	}

	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		// re-check: a concurrent Set may have refreshed the key
		if current, ok := m.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}

	return entry.value, true, nil
}

// Set stores a value
func (m *memoryStateStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// Delete removes a value
func (m *memoryStateStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
