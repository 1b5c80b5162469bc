package recovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/event"
)

// NextAction tells the orchestrator what should follow a strategy.
type NextAction string

const (
	// ActionContinue tries the next strategy.
	ActionContinue NextAction = "continue"

	// ActionReload stops the run; the process is about to reload.
	ActionReload NextAction = "reload"

	// ActionReset stops the run and recommends a hard reset.
	ActionReset NextAction = "reset"
)

// Strategy names used in results the orchestrator synthesizes.
const (
	StrategyNone   = "none"
	StrategySystem = "system"
)

// Result is the outcome of a strategy, or of a whole recovery run.
type Result struct {
	Success            bool       `json:"success"`
	Strategy           string     `json:"strategy"`
	Message            string     `json:"message"`
	RequiresUserAction bool       `json:"requires_user_action,omitempty"`
	NextAction         NextAction `json:"next_action,omitempty"`
	Manifest           *Manifest  `json:"manifest,omitempty"`

	// Err explains results produced without a successful strategy.
	Err error `json:"-"`
}

// Next returns the effective next action. An unset action means continue.
func (r Result) Next() NextAction {
	if r.NextAction == "" {
		return ActionContinue
	}
	return r.NextAction
}

// Terminal reports whether r ends a recovery run.
func (r Result) Terminal() bool {
	if r.Success {
		return true
	}
	next := r.Next()
	return next == ActionReload || next == ActionReset
}

func (r Result) outcome() event.Outcome {
	return event.Outcome{
		Success:            r.Success,
		Strategy:           r.Strategy,
		Message:            r.Message,
		NextAction:         string(r.Next()),
		RequiresUserAction: r.RequiresUserAction,
	}
}

// Failure names an artifact that could not be preserved or restored.
type Failure struct {
	Artifact string `json:"artifact"`
	Reason   string `json:"reason"`
}

// Manifest lists what a strategy saved or restored and what failed.
type Manifest struct {
	Saved   []string  `json:"saved,omitempty"`
	Failed  []Failure `json:"failed,omitempty"`
	Skipped []string  `json:"skipped,omitempty"`
}

// AddSaved records a preserved or restored artifact.
func (m *Manifest) AddSaved(artifact string) {
	m.Saved = append(m.Saved, artifact)
}

// AddFailed records an artifact that failed with err.
func (m *Manifest) AddFailed(artifact string, err error) {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	m.Failed = append(m.Failed, Failure{Artifact: artifact, Reason: reason})
}

// AddSkipped records an artifact that was not available.
func (m *Manifest) AddSkipped(artifact string) {
	m.Skipped = append(m.Skipped, artifact)
}

// Has reports whether artifact was saved.
func (m *Manifest) Has(artifact string) bool {
	return m != nil && slices.Contains(m.Saved, artifact)
}

// FailedOn reports whether artifact is listed as failed.
func (m *Manifest) FailedOn(artifact string) bool {
	if m == nil {
		return false
	}
	return slices.ContainsFunc(m.Failed, func(f Failure) bool { return f.Artifact == artifact })
}

// Merge appends other's entries to m.
func (m *Manifest) Merge(other *Manifest) {
	if other == nil {
		return
	}
	m.Saved = append(m.Saved, other.Saved...)
	m.Failed = append(m.Failed, other.Failed...)
	m.Skipped = append(m.Skipped, other.Skipped...)
}

// Empty reports whether m has no entries.
func (m *Manifest) Empty() bool {
	return m == nil || len(m.Saved)+len(m.Failed)+len(m.Skipped) == 0
}

// String summarizes the manifest, e.g. "saved: design, preferences; failed: audio (disk full)".
func (m *Manifest) String() string {
	if m.Empty() {
		return "nothing to preserve"
	}
	var parts []string
	if len(m.Saved) > 0 {
		parts = append(parts, "saved: "+strings.Join(m.Saved, ", "))
	}
	if len(m.Failed) > 0 {
		failed := make([]string, len(m.Failed))
		for i, f := range m.Failed {
			failed[i] = fmt.Sprintf("%s (%s)", f.Artifact, f.Reason)
		}
		parts = append(parts, "failed: "+strings.Join(failed, ", "))
	}
	if len(m.Skipped) > 0 {
		parts = append(parts, "skipped: "+strings.Join(m.Skipped, ", "))
	}
	return strings.Join(parts, "; ")
}
