// Package event carries recovery lifecycle notifications to observers.
//
// Events form a closed set of four kinds. Each Event carries exactly one
// payload matching its Kind, so subscribers switch on Kind and read the
// corresponding field:
//
//	switch evt.Kind {
//	case event.KindStarted:
//	    showBanner(evt.Started.Strategy)
//	case event.KindProgress:
//	    setProgress(evt.Progress.Percent)
//	case event.KindCompleted:
//	    finish(evt.Completed.Outcome)
//	case event.KindFailed:
//	    fail(evt.Failed.Error)
//	}
//
// Events are delivered asynchronously by a Bus; a slow subscriber never
// blocks the recovery that produced the event.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags the payload of an Event.
type Kind string

const (
	KindStarted   Kind = "started"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Metadata contains common event metadata fields.
type Metadata struct {
	EventID string `json:"id"`

	// CorrelationID is the ID of the error record being recovered.
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// Started is emitted once strategy execution begins.
type Started struct {
	// Strategy is the first strategy that will run.
	Strategy string `json:"strategy"`
	ErrorID  string `json:"error_id"`
	Message  string `json:"message"`
}

// Progress is emitted before and after each strategy runs.
type Progress struct {
	Strategy string `json:"strategy"`
	Step     int    `json:"step"`
	Percent  int    `json:"percent"`
	Message  string `json:"message"`
}

// Outcome mirrors the final recovery result.
type Outcome struct {
	Success            bool   `json:"success"`
	Strategy           string `json:"strategy"`
	Message            string `json:"message"`
	NextAction         string `json:"next_action,omitempty"`
	RequiresUserAction bool   `json:"requires_user_action,omitempty"`
}

// Completed is emitted when a recovery run produced a final result.
type Completed struct {
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// Failed is emitted when the run could not be attempted at all.
type Failed struct {
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

// Event is a single recovery lifecycle notification.
// Exactly one of the payload pointers is set, matching Kind.
type Event struct {
	Meta Metadata `json:"metadata"`
	Kind Kind     `json:"kind"`

	Started   *Started   `json:"started,omitempty"`
	Progress  *Progress  `json:"progress,omitempty"`
	Completed *Completed `json:"completed,omitempty"`
	Failed    *Failed    `json:"failed,omitempty"`
}

func newMeta(correlationID string) Metadata {
	return Metadata{
		EventID:       uuid.New().String(),
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

// NewStarted creates a started event.
func NewStarted(errorID, strategy, message string) Event {
	return Event{
		Meta:    newMeta(errorID),
		Kind:    KindStarted,
		Started: &Started{Strategy: strategy, ErrorID: errorID, Message: message},
	}
}

// NewProgress creates a progress event. Percent is clamped to [0, 100].
func NewProgress(errorID, strategy string, step, percent int, message string) Event {
	percent = min(max(percent, 0), 100)
	return Event{
		Meta: newMeta(errorID),
		Kind: KindProgress,
		Progress: &Progress{
			Strategy: strategy,
			Step:     step,
			Percent:  percent,
			Message:  message,
		},
	}
}

// NewCompleted creates a completed event.
func NewCompleted(errorID string, outcome Outcome, d time.Duration) Event {
	return Event{
		Meta:      newMeta(errorID),
		Kind:      KindCompleted,
		Completed: &Completed{Outcome: outcome, Duration: d},
	}
}

// NewFailed creates a failed event.
func NewFailed(errorID string, err error, d time.Duration) Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Meta:   newMeta(errorID),
		Kind:   KindFailed,
		Failed: &Failed{Error: msg, Duration: d},
	}
}

// ID returns the unique event identifier.
func (e Event) ID() string {
	return e.Meta.EventID
}

// Valid reports whether exactly the payload matching Kind is set.
func (e Event) Valid() bool {
	set := 0
	for _, p := range []bool{e.Started != nil, e.Progress != nil, e.Completed != nil, e.Failed != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return false
	}
	switch e.Kind {
	case KindStarted:
		return e.Started != nil
	case KindProgress:
		return e.Progress != nil
	case KindCompleted:
		return e.Completed != nil
	case KindFailed:
		return e.Failed != nil
	default:
		return false
	}
}

// String renders a one-line description, mainly for logs and the CLI.
func (e Event) String() string {
	switch e.Kind {
	case KindStarted:
		return fmt.Sprintf("started strategy=%s error=%s", e.Started.Strategy, e.Started.ErrorID)
	case KindProgress:
		return fmt.Sprintf("progress strategy=%s step=%d %d%% %s",
			e.Progress.Strategy, e.Progress.Step, e.Progress.Percent, e.Progress.Message)
	case KindCompleted:
		o := e.Completed.Outcome
		return fmt.Sprintf("completed strategy=%s success=%t next=%s (%s)",
			o.Strategy, o.Success, o.NextAction, e.Completed.Duration)
	case KindFailed:
		return fmt.Sprintf("failed error=%q (%s)", e.Failed.Error, e.Failed.Duration)
	default:
		return "invalid event"
	}
}
