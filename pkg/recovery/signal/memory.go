package signal

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var (
	ErrSignalNotFound = errors.New("signal not found")
	ErrNoHandler      = errors.New("no handler for signal")
)

// Store queues signals until they are delivered.
type Store interface {
	Enqueue(ctx context.Context, signal *Signal) error

	// Dequeue returns the pending signals for targetID, oldest first.
	// They stay pending until marked.
	Dequeue(ctx context.Context, targetID string) ([]*Signal, error)

	Get(ctx context.Context, signalID string) (*Signal, error)
	MarkProcessed(ctx context.Context, signalID string) error
	MarkFailed(ctx context.Context, signalID string, err error) error

	// Prune drops finished signals processed before the cutoff and
	// returns how many went.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// MemoryStore keeps signals in arrival order.
type MemoryStore struct {
	mu    sync.Mutex
	queue []*Signal
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) find(id string) *Signal {
	for _, sig := range m.queue {
		if sig.ID == id {
			return sig
		}
	}
	return nil
}

// Enqueue stores a copy of signal, filling a missing ID, send time or
// status.
func (m *MemoryStore) Enqueue(_ context.Context, signal *Signal) error {
	if signal.ID == "" {
		signal.ID = newID()
	}
	if signal.SentAt.IsZero() {
		signal.SentAt = m.now()
	}
	if signal.Status == "" {
		signal.Status = StatusPending
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, signal.Clone())
	return nil
}

func (m *MemoryStore) Dequeue(_ context.Context, targetID string) ([]*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Signal
	for _, sig := range m.queue {
		if sig.TargetID == targetID && !sig.finished() {
			out = append(out, sig.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, signalID string) (*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sig := m.find(signalID); sig != nil {
		return sig.Clone(), nil
	}
	return nil, ErrSignalNotFound
}

func (m *MemoryStore) MarkProcessed(_ context.Context, signalID string) error {
	return m.mark(signalID, nil)
}

func (m *MemoryStore) MarkFailed(_ context.Context, signalID string, err error) error {
	return m.mark(signalID, err)
}

func (m *MemoryStore) mark(signalID string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig := m.find(signalID)
	if sig == nil {
		return ErrSignalNotFound
	}
	at := m.now()
	sig.ProcessedAt = &at
	sig.Status = StatusProcessed
	if err != nil {
		sig.Status = StatusFailed
		sig.Error = err.Error()
	}
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.queue)
	m.queue = slices.DeleteFunc(m.queue, func(sig *Signal) bool {
		return sig.finished() && sig.ProcessedAt != nil && sig.ProcessedAt.Before(before)
	})
	return n - len(m.queue), nil
}
