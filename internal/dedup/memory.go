package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/acme/lead-engagement/pkg/clock"
)

// Memory is an in-process Cache driven by an injectable clock, for tests and single-process
// runs. Entries expire lazily on access and in Sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	window  time.Duration
	clock   clock.Clock
}

// NewMemory creates a cache with the given window. A nil clock uses the system clock.
func NewMemory(window time.Duration, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.System{}
	}
	return &Memory{entries: make(map[string]time.Time), window: window, clock: clk}
}

// MarkIfAbsent implements Cache.
func (m *Memory) MarkIfAbsent(_ context.Context, key string) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if expires, ok := m.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.entries[key] = now.Add(m.window)
	return true, nil
}

// Forget implements Cache.
func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Window implements Cache.
func (m *Memory) Window() time.Duration { return m.window }

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, expires := range m.entries {
		if !now.Before(expires) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
