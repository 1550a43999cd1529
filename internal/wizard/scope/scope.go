// Package scope provides the keyed container behind the wizard's per-mount
// session contexts.
package scope

import (
	"maps"
	"sync"
)

// Map accumulates values per key. Writes for the same key replace earlier
// ones; there is no versioning and nothing is rolled back except by Reset.
// The zero value is ready to use.
type Map[K comparable, V any] struct {
	mu     sync.RWMutex
	values map[K]V
}

// Get returns the value for key and whether it was set. An unset key yields
// the zero value and false.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[K]V)
	}
	m.values[key] = value
}

// Merge applies every entry of update as if by Set.
func (m *Map[K, V]) Merge(update map[K]V) {
	if len(update) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[K]V, len(update))
	}
	maps.Copy(m.values, update)
}

// Snapshot returns a copy of the current contents.
func (m *Map[K, V]) Snapshot() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Reset drops every value.
func (m *Map[K, V]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = nil
}
