package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps values in process memory. It is the fallback when no
// durable backend is configured, and the store most tests run against.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	sorted []string // keys of values, ascending
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// read runs fn under the read lock unless the store is closed.
func (m *MemoryStore) read(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return fn()
}

// write runs fn under the write lock unless the store is closed.
func (m *MemoryStore) write(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	return fn()
}

func (m *MemoryStore) Get(_ context.Context, key string) (out []byte, err error) {
	err = m.read(func() error {
		v, ok := m.values[key]
		if !ok {
			return ErrNotFound
		}
		out = cloneBytes(v)
		return nil
	})
	return out, err
}

// Set stores a copy of value.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	return m.write(func() error {
		if _, ok := m.values[key]; !ok {
			i, _ := slices.BinarySearch(m.sorted, key)
			m.sorted = slices.Insert(m.sorted, i, key)
		}
		m.values[key] = cloneBytes(value)
		return nil
	})
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	return m.write(func() error {
		m.drop(key)
		return nil
	})
}

func (m *MemoryStore) drop(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	if i, found := slices.BinarySearch(m.sorted, key); found {
		m.sorted = slices.Delete(m.sorted, i, i+1)
	}
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := m.read(func() error {
		i, _ := slices.BinarySearch(m.sorted, prefix)
		for ; i < len(m.sorted) && strings.HasPrefix(m.sorted[i], prefix); i++ {
			keys = append(keys, m.sorted[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Take removes key and returns what it held.
func (m *MemoryStore) Take(_ context.Context, key string) (out []byte, err error) {
	err = m.write(func() error {
		v, ok := m.values[key]
		if !ok {
			return ErrNotFound
		}
		m.drop(key)
		out = v
		return nil
	})
	return out, err
}

func (m *MemoryStore) Clear(context.Context) error {
	return m.write(func() error {
		clear(m.values)
		m.sorted = m.sorted[:0]
		return nil
	})
}

// Close discards everything. Later calls return ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.values, m.sorted = nil, nil
	return nil
}

// Len returns the number of keys held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sorted)
}
