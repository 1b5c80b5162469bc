package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Namespaced is a view of a Store in which every key carries a fixed prefix.
// Clear on a Namespaced store only removes keys under its prefix.
type Namespaced struct {
	inner  Store
	prefix string
}

// WithNamespace returns a view of s scoped to ns. Nested namespaces join
// with "/".
func WithNamespace(s Store, ns string) *Namespaced {
	prefix := strings.TrimSuffix(ns, "/") + "/"
	if n, ok := s.(*Namespaced); ok {
		return &Namespaced{inner: n.inner, prefix: n.prefix + prefix}
	}
	return &Namespaced{inner: s, prefix: prefix}
}

// Prefix returns the full key prefix of this view.
func (n *Namespaced) Prefix() string {
	return n.prefix
}

// Get implements Store.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

// Set implements Store.
func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

// Remove implements Store.
func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.prefix+key)
}

// Keys implements Store. Returned keys are relative to the namespace.
func (n *Namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := n.inner.Keys(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(full))
	for i, k := range full {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

// Take implements Taker, atomically when the underlying store supports it.
func (n *Namespaced) Take(ctx context.Context, key string) ([]byte, error) {
	return Take(ctx, n.inner, n.prefix+key)
}

// Clear implements Clearer for the namespace only.
func (n *Namespaced) Clear(ctx context.Context) error {
	keys, err := n.inner.Keys(ctx, n.prefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := n.inner.Remove(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op; the underlying store is owned by whoever created it.
func (n *Namespaced) Close() error {
	return nil
}
