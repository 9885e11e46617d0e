// Package ratelimit counts policy grants per caller in fixed windows.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Counter increments key and returns its count within the current window.
// The window starts with the first increment.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryCounter is a process-local Counter.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	count   int64
	expires time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]*entry), now: time.Now}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.expires) {
		e = &entry{expires: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Sweep drops expired windows.
func (m *MemoryCounter) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

func (m *MemoryCounter) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
