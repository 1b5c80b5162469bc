package registry

import (
	"slices"
	"sync"
)

// Registry maps keys to values and remembers the order keys were first
// registered in. Safe for concurrent use.
type Registry[K comparable, V any] struct {
	mu    sync.RWMutex
	index map[K]int
	keys  []K
	vals  []V
}

// New returns an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{index: make(map[K]int)}
}

// Register stores value under key and reports whether it replaced an
// earlier value. A replaced key keeps its original position.
func (r *Registry[K, V]) Register(key K, value V) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[key]; ok {
		r.vals[i] = value
		return true
	}
	r.index[key] = len(r.keys)
	r.keys = append(r.keys, key)
	r.vals = append(r.vals, value)
	return false
}

// Get returns the value under key.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, ok := r.index[key]; ok {
		return r.vals[i], true
	}
	var zero V
	return zero, false
}

func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[key]
	return ok
}

// Delete removes key and reports whether it was present.
func (r *Registry[K, V]) Delete(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[key]
	if !ok {
		return false
	}
	delete(r.index, key)
	r.keys = slices.Delete(r.keys, i, i+1)
	r.vals = slices.Delete(r.vals, i, i+1)
	for j := i; j < len(r.keys); j++ {
		r.index[r.keys[j]] = j
	}
	return true
}

func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Keys returns the keys in registration order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.keys)
}

// Values returns the values in registration order.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.vals)
}

// Sorted returns the values ordered by cmp. Values that compare equal
// stay in registration order.
func (r *Registry[K, V]) Sorted(cmp func(a, b V) int) []V {
	out := r.Values()
	slices.SortStableFunc(out, cmp)
	return out
}
