// Package apperror describes application faults handed to the recovery engine.
//
// The package implements the error-reporting side of recovery:
//   - Taxonomy: a fixed set of categories and severities
//   - Categorization: map Go errors onto the taxonomy
//   - Records: immutable fault descriptions with deduplication
//   - Retry: absorb transient persistence failures inside strategies
package apperror

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Category is the fault taxonomy used to pick recovery strategies.
type Category string

const (
	// CategoryRendering covers UI and canvas render failures.
	CategoryRendering Category = "rendering"

	// CategoryRuntime covers unexpected faults in application logic.
	CategoryRuntime Category = "runtime"

	// CategoryPersistence covers storage failures and corrupted data.
	CategoryPersistence Category = "persistence"

	// CategoryNetwork covers transport failures.
	CategoryNetwork Category = "network"

	// CategoryGlobal covers faults caught by process-wide handlers.
	CategoryGlobal Category = "global"

	// CategoryUnknown is the fail-safe category.
	CategoryUnknown Category = "unknown"
)

// Valid reports whether c is part of the taxonomy.
func (c Category) Valid() bool {
	switch c {
	case CategoryRendering, CategoryRuntime, CategoryPersistence,
		CategoryNetwork, CategoryGlobal, CategoryUnknown:
		return true
	default:
		return false
	}
}

// ParseCategory converts a string to a Category.
// Unrecognized values map to CategoryUnknown.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return CategoryUnknown
	}
	return c
}

// Severity ranks how badly the application is affected.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: low=1 ... critical=4. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity converts a string to a Severity.
// Unrecognized values map to SeverityMedium.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return SeverityMedium
	}
	return sev
}

// RenderError indicates a UI component failed to render.
type RenderError struct {
	Component string
	Err       error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("render %s: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("render: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// PersistenceError indicates a storage operation failed.
type PersistenceError struct {
	Op      string
	Key     string
	Corrupt bool
	Err     error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	if e.Corrupt {
		return fmt.Sprintf("%s %s: corrupted data: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NetworkError indicates a transport failure. Network errors are transient.
type NetworkError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ChunkLoadError indicates a lazily loaded module could not be fetched.
type ChunkLoadError struct {
	Chunk string
}

// Error implements the error interface.
func (e *ChunkLoadError) Error() string {
	return fmt.Sprintf("loading chunk %s failed", e.Chunk)
}

// Categorize determines the taxonomy category of a Go error.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return CategoryRendering
	}

	var chunkErr *ChunkLoadError
	if errors.As(err, &chunkErr) {
		return CategoryRuntime
	}

	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return CategoryPersistence
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}

	return CategoryUnknown
}

// SeverityOf estimates the severity of a Go error.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	var persistErr *PersistenceError
	if errors.As(err, &persistErr) && persistErr.Corrupt {
		return SeverityCritical
	}

	var chunkErr *ChunkLoadError
	if errors.As(err, &chunkErr) {
		return SeverityHigh
	}

	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return SeverityHigh
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return SeverityMedium
	}

	return SeverityMedium
}

// IsTransient reports whether retrying the failed operation may help.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return Categorize(err) == CategoryNetwork
}

// IsChunkLoad reports whether err is a module/chunk load failure.
func IsChunkLoad(err error) bool {
	var chunkErr *ChunkLoadError
	return errors.As(err, &chunkErr)
}
