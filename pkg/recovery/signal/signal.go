// Package signal delivers fire-and-forget requests from recovery to the
// host UI, such as asking a failed component tree to remount.
//
// Signals are queued in a Store and delivered by a Dispatcher to every
// handler registered for the signal name. A handler failure is recorded on
// the signal and never stops delivery to the remaining handlers.
package signal

import (
	"maps"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// NameRemount asks UI handlers to discard and rebuild component state.
	NameRemount = "remount"

	// TargetUI addresses the host UI layer.
	TargetUI = "ui"
)

// Status is where a signal is in its delivery.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Signal is one queued request for a target.
type Signal struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	TargetID string         `json:"target_id"`
	Payload  map[string]any `json:"payload,omitempty"`

	// SenderID names the strategy that sent it.
	SenderID string `json:"sender_id,omitempty"`

	Status      Status     `json:"status"`
	SentAt      time.Time  `json:"sent_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func newID() string {
	return "sig-" + ulid.Make().String()
}

// NewSignal returns a pending signal with a fresh, time-ordered ID.
func NewSignal(name, targetID string, payload map[string]any) *Signal {
	return &Signal{
		ID:       newID(),
		Name:     name,
		TargetID: targetID,
		Payload:  payload,
		Status:   StatusPending,
		SentAt:   time.Now(),
	}
}

// Remount is the payload of a NameRemount signal.
type Remount struct {
	Component string
	ErrorID   string
	Reason    string
}

// NewRemount asks the UI to remount component after errorID.
func NewRemount(component, errorID, reason string) *Signal {
	return NewSignal(NameRemount, TargetUI, map[string]any{
		"component": component,
		"error_id":  errorID,
		"reason":    reason,
	})
}

// Remount decodes the payload of a remount signal. ok is false for any
// other signal name.
func (s *Signal) Remount() (r Remount, ok bool) {
	if s.Name != NameRemount {
		return Remount{}, false
	}
	r.Component, _ = s.Payload["component"].(string)
	r.ErrorID, _ = s.Payload["error_id"].(string)
	r.Reason, _ = s.Payload["reason"].(string)
	return r, true
}

// WithSender records who sent s.
func (s *Signal) WithSender(senderID string) *Signal {
	s.SenderID = senderID
	return s
}

func (s *Signal) Clone() *Signal {
	c := *s
	c.Payload = maps.Clone(s.Payload)
	if s.ProcessedAt != nil {
		at := *s.ProcessedAt
		c.ProcessedAt = &at
	}
	return &c
}

func (s *Signal) finished() bool {
	return s.Status != StatusPending
}
