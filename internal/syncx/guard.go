// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// RWGuard holds a value behind an RWMutex and lets readers wait for the
// next change.
type RWGuard[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	changed chan struct{}
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial, changed: make(chan struct{})}
}

// Get returns a copy of the value (T should be value type or immutable).
func (g *RWGuard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Load returns the value with its version. Every write bumps the version.
func (g *RWGuard[T]) Load() (T, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value, g.version
}

// Set replaces the value.
func (g *RWGuard[T]) Set(v T) {
	g.Write(func(p *T) { *p = v })
}

// Swap replaces and returns the old value.
func (g *RWGuard[T]) Swap(v T) T {
	var old T
	g.Write(func(p *T) {
		old = *p
		*p = v
	})
	return old
}

// Write executes fn under the write lock and wakes waiters.
func (g *RWGuard[T]) Write(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
	g.version++
	close(g.changed)
	g.changed = make(chan struct{})
}

// Changed returns a channel closed by the next write.
func (g *RWGuard[T]) Changed() <-chan struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.changed
}
