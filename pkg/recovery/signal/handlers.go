package signal

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/registry"
)

// Handler processes a signal for its target. It receives a copy.
type Handler func(ctx context.Context, targetID string, signal *Signal) error

// Registry maps signal names to handlers. Several handlers may share a
// name; each UI boundary registers its own and they run in the order
// they were added.
type Registry struct {
	mu     sync.Mutex
	seq    uint64
	byName map[string]*registry.Registry[uint64, Handler]
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*registry.Registry[uint64, Handler])}
}

// Register adds handler under name and returns a function that removes it.
func (r *Registry) Register(name string, handler Handler) (unregister func(), err error) {
	switch {
	case name == "":
		return nil, errors.New("signal name is required")
	case handler == nil:
		return nil, errors.New("handler is required")
	}

	r.mu.Lock()
	r.seq++
	id := r.seq
	hs, ok := r.byName[name]
	if !ok {
		hs = registry.New[uint64, Handler]()
		r.byName[name] = hs
	}
	r.mu.Unlock()

	hs.Register(id, handler)
	return func() { hs.Delete(id) }, nil
}

// MustRegister is Register for handlers wired at startup.
func (r *Registry) MustRegister(name string, handler Handler) func() {
	unregister, err := r.Register(name, handler)
	if err != nil {
		panic(err)
	}
	return unregister
}

// Handlers returns the handlers for name in registration order.
func (r *Registry) Handlers(name string) []Handler {
	r.mu.Lock()
	hs, ok := r.byName[name]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return hs.Values()
}

// Names lists signal names that currently have a handler, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, name := range slices.Sorted(maps.Keys(r.byName)) {
		if r.byName[name].Len() > 0 {
			names = append(names, name)
		}
	}
	return names
}
