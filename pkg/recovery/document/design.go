// Package document defines the design artifacts recovery preserves and
// the persistence boundary that stores them.
package document

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for document operations.
var (
	// ErrInvalidDesign indicates a design failed its structural check.
	ErrInvalidDesign = errors.New("invalid design")

	// ErrInvalidAudio indicates an audio snapshot failed its shape check.
	ErrInvalidAudio = errors.New("invalid audio snapshot")

	// ErrBackupNotFound indicates a backup doesn't exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrNoDesign indicates a project has no current design.
	ErrNoDesign = errors.New("no current design")
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element is a node on the architecture canvas.
type Element struct {
	ID         string            `json:"id"`
	Type       string            `json:"element_type"`
	Position   Position          `json:"position"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Connection links two elements.
type Connection struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       string            `json:"connection_type"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Design is a snapshot of one project's canvas.
type Design struct {
	ProjectID   string       `json:"project_id"`
	Name        string       `json:"name"`
	Elements    []Element    `json:"elements"`
	Connections []Connection `json:"connections"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Empty reports whether the design carries no canvas content.
func (d *Design) Empty() bool {
	return d == nil || (len(d.Elements) == 0 && len(d.Connections) == 0)
}

// Validate checks the structural invariants a restored design must hold:
// a project id, unique non-empty element and connection ids, and
// connections whose endpoints exist.
func (d *Design) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil design", ErrInvalidDesign)
	}

	var problems []string
	if d.ProjectID == "" {
		problems = append(problems, "missing project id")
	}

	elements := make(map[string]bool, len(d.Elements))
	for i, e := range d.Elements {
		switch {
		case e.ID == "":
			problems = append(problems, fmt.Sprintf("element %d has no id", i))
		case elements[e.ID]:
			problems = append(problems, fmt.Sprintf("duplicate element %s", e.ID))
		default:
			elements[e.ID] = true
		}
	}

	connections := make(map[string]bool, len(d.Connections))
	for i, c := range d.Connections {
		if c.ID == "" {
			problems = append(problems, fmt.Sprintf("connection %d has no id", i))
		} else if connections[c.ID] {
			problems = append(problems, fmt.Sprintf("duplicate connection %s", c.ID))
		}
		connections[c.ID] = true

		if !elements[c.SourceID] {
			problems = append(problems, fmt.Sprintf("connection %s: unknown source %q", c.ID, c.SourceID))
		}
		if !elements[c.TargetID] {
			problems = append(problems, fmt.Sprintf("connection %s: unknown target %q", c.ID, c.TargetID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDesign, strings.Join(problems, "; "))
	}
	return nil
}

// AudioSnapshot is a recorded audio buffer tied to a session.
type AudioSnapshot struct {
	SessionID  string        `json:"session_id"`
	Format     string        `json:"format"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`
	Data       []byte        `json:"data"`
}

// Validate performs the shape check applied before a cached snapshot is
// accepted back into the application.
func (a *AudioSnapshot) Validate() error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: nil snapshot", ErrInvalidAudio)
	case a.SessionID == "":
		return fmt.Errorf("%w: missing session id", ErrInvalidAudio)
	case a.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, a.SampleRate)
	case len(a.Data) == 0:
		return fmt.Errorf("%w: no data", ErrInvalidAudio)
	case a.Duration < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidAudio)
	}
	return nil
}
