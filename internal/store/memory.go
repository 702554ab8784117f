// internal/store/memory.go
//
// In-memory implementations of the store interfaces.
// Used for single-instance deployments, development and tests.
//
// Characteristics:
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Entries carry a deadline and disappear after it, lazily on access or
//     eagerly via Sweep.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrReplayed is returned by a Guard when a token id was already consumed.
var ErrReplayed = errors.New("token already used")

// ErrNotFound is returned by Table.Get for missing or expired keys.
var ErrNotFound = errors.New("not found")

// Guard records single-use token ids.
// Implementations may be backed by memory (this file) or Redis.
type Guard interface {
	// Consume marks id as used for ttl.
	// Returns ErrReplayed if id was already consumed.
	Consume(ctx context.Context, id string, ttl time.Duration) error

	// Consumed reports whether id has been used.
	Consumed(ctx context.Context, id string) (bool, error)
}

// MemoryGuard is a map-based Guard implementation.
type MemoryGuard struct {
	mu   sync.RWMutex         // guards used map
	used map[string]time.Time // id -> forget after
	now  func() time.Time
}

// NewMemoryGuard constructs a new in-memory Guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{used: make(map[string]time.Time), now: time.Now}
}

// Consume atomically checks and records id.
func (m *MemoryGuard) Consume(ctx context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if until, ok := m.used[id]; ok && now.Before(until) {
		return ErrReplayed
	}
	m.used[id] = now.Add(ttl)
	return nil
}

// Consumed looks up id without recording it.
func (m *MemoryGuard) Consumed(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.used[id]
	return ok && m.now().Before(until), nil
}

// Sweep drops ids whose ttl has passed and returns how many were removed.
func (m *MemoryGuard) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, until := range m.used {
		if !now.Before(until) {
			delete(m.used, id)
			n++
		}
	}
	return n
}

// Table is an expiring key/value map used for server-held sessions.
type Table[V any] struct {
	mu      sync.RWMutex
	entries map[string]tableEntry[V]
	now     func() time.Time
}

type tableEntry[V any] struct {
	value   V
	expires time.Time
}

// NewTable constructs an empty Table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{entries: make(map[string]tableEntry[V]), now: time.Now}
}

// WithClock replaces the time source; for tests.
func (t *Table[V]) WithClock(now func() time.Time) *Table[V] {
	t.now = now
	return t
}

// Put adds or replaces key until expires.
func (t *Table[V]) Put(key string, v V, expires time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = tableEntry[V]{value: v, expires: expires}
}

// Get returns the value for key, or ErrNotFound if missing or expired.
func (t *Table[V]) Get(key string) (V, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok || !t.now().Before(e.expires) {
		var zero V
		return zero, ErrNotFound
	}
	return e.value, nil
}

// Delete removes key if present.
func (t *Table[V]) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Len returns the number of entries, expired ones included until swept.
func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (t *Table[V]) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for k, e := range t.entries {
		if !now.Before(e.expires) {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Sweeper is anything with a Sweep method.
type Sweeper interface{ Sweep() int }

// RunSweeper calls s.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
