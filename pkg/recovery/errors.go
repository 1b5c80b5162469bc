package recovery

import (
	"errors"
	"fmt"
)

// Reasons a run ended without a successful strategy. They are carried in
// Result.Err and never returned from HandleError.
var (
	// ErrNotCritical indicates the fault did not pass the criticality gate.
	ErrNotCritical = errors.New("error is not critical")

	// ErrInProgress indicates another recovery was running.
	ErrInProgress = errors.New("recovery already in progress")

	// ErrCooldown indicates the previous attempt was too recent.
	ErrCooldown = errors.New("recovery cooldown active")

	// ErrNoStrategy indicates no registered strategy can handle the fault.
	ErrNoStrategy = errors.New("no applicable recovery strategy")

	// ErrExhausted indicates every attempted strategy failed.
	ErrExhausted = errors.New("recovery strategies exhausted")
)

// StrategyError wraps an error returned by a strategy's Execute.
type StrategyError struct {
	// Strategy is the name of the strategy that failed.
	Strategy string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StrategyError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised while running a strategy or a
// context provider.
type PanicError struct {
	// Source is the strategy name, or "context-provider".
	Source string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Source, e.Value)
}
