package recovery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
)

// RecoveryContext is a snapshot of recoverable application state.
// SessionID is always set; every other field is optional.
type RecoveryContext struct {
	SessionID   string
	ProjectID   string
	Design      *document.Design
	Audio       *document.AudioSnapshot
	Preferences map[string]any
}

// ContextProvider gathers a RecoveryContext on demand.
type ContextProvider func(ctx context.Context) (*RecoveryContext, error)

// MinimalContext returns a context carrying only a fresh session ID.
func MinimalContext() *RecoveryContext {
	return &RecoveryContext{SessionID: uuid.NewString()}
}

// Clone returns a copy whose Preferences map is independent of rc.
func (rc *RecoveryContext) Clone() *RecoveryContext {
	if rc == nil {
		return nil
	}
	c := *rc
	c.Preferences = maps.Clone(rc.Preferences)
	return &c
}

// ProjectOrDesign returns the project ID, falling back to the design's.
func (rc *RecoveryContext) ProjectOrDesign() string {
	if rc.ProjectID != "" {
		return rc.ProjectID
	}
	if rc.Design != nil {
		return rc.Design.ProjectID
	}
	return ""
}

var errNilContext = errors.New("provider returned nil context")

// resolveContext calls p and degrades to a minimal context on any failure.
// The returned error is informational only.
func resolveContext(ctx context.Context, p ContextProvider) (rc *RecoveryContext, err error) {
	if p == nil {
		return MinimalContext(), nil
	}

	defer func() {
		if r := recover(); r != nil {
			rc = MinimalContext()
			err = &PanicError{Source: "context-provider", Value: r, Stack: string(debug.Stack())}
		}
	}()

	rc, err = p(ctx)
	if err != nil {
		return MinimalContext(), fmt.Errorf("context provider: %w", err)
	}
	if rc == nil {
		return MinimalContext(), errNilContext
	}
	rc = rc.Clone()
	if rc.SessionID == "" {
		rc.SessionID = uuid.NewString()
	}
	return rc, nil
}
