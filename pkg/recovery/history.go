package recovery

import (
	"sync"
	"time"
)

// DefaultHistorySize bounds the attempt history when no size is configured.
const DefaultHistorySize = 20

// Attempt records one strategy execution.
type Attempt struct {
	Timestamp  time.Time     `json:"timestamp"`
	ErrorID    string        `json:"error_id"`
	Strategy   string        `json:"strategy"`
	Success    bool          `json:"success"`
	NextAction NextAction    `json:"next_action"`
	Duration   time.Duration `json:"duration"`
	Message    string        `json:"message"`
}

// History is a fixed-capacity ring of attempts. When full, the oldest
// attempt is overwritten.
type History struct {
	mu    sync.RWMutex
	items []Attempt
	head  int
	count int
}

// NewHistory creates a history holding at most capacity attempts.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{items: make([]Attempt, capacity)}
}

// Add appends an attempt, evicting the oldest one when full.
func (h *History) Add(a Attempt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = a
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Snapshot returns the attempts oldest first.
func (h *History) Snapshot() []Attempt {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Attempt, h.count)
	start := (h.head - h.count + len(h.items)) % len(h.items)
	for i := range out {
		out[i] = h.items[(start+i)%len(h.items)]
	}
	return out
}

// Len returns the number of stored attempts.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return len(h.items)
}
