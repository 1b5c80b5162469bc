// Package store provides the key/value persistence used by recovery strategies.
//
// A Store is a flat byte-oriented map with prefix listing. Backends:
//   - MemoryStore: in-process, for tests and ephemeral fallbacks
//   - SQLiteStore: single-file embedded database (modernc, pure Go)
//   - RedisStore: shared store surviving process restarts on other hosts
//   - FileStore: one file per key on any afero filesystem
//
// Strategies share stores with last-writer-wins semantics, so each one
// writes through a Namespaced view with its own prefix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Store persists opaque values by key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a value. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value, overwriting any existing one.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a key. Returns nil if the key doesn't exist.
	Remove(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix, sorted ascending.
	// Returns an empty slice (not error) if nothing matches.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Taker is implemented by stores that can read and delete a key atomically.
// At most one concurrent Take of the same key observes the value.
type Taker interface {
	Take(ctx context.Context, key string) ([]byte, error)
}

// Clearer is implemented by stores that can drop everything they hold.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a key doesn't exist.
	ErrNotFound = errors.New("key not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)

// Take reads and deletes key. It uses the store's atomic Take when
// available and falls back to Get followed by Remove otherwise.
func Take(ctx context.Context, s Store, key string) ([]byte, error) {
	if t, ok := s.(Taker); ok {
		return t.Take(ctx, key)
	}
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.Remove(ctx, key); err != nil {
		return nil, err
	}
	return data, nil
}

// Clear removes every key from s. It uses the store's Clear when
// available and removes keys one by one otherwise, attempting all of them
// and returning the joined errors.
func Clear(ctx context.Context, s Store) error {
	if c, ok := s.(Clearer); ok {
		return c.Clear(ctx)
	}
	keys, err := s.Keys(ctx, "")
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// GetJSON loads a JSON value stored under key into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	data, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// SetJSON stores v as JSON under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
