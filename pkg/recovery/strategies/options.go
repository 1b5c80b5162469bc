// Package strategies provides the standard recovery strategies.
//
// In default priority order:
//   - AutoSave (1): preserve the design, audio, preferences and a manifest
//   - ComponentReset (2): ask the UI to remount a failed component
//   - BackupRestore (3): restore the newest valid backup and cached state
//   - SoftReload (4): stash state for after the restart, then reload
//   - HardReset (100): clear all local state, then reload
//
// AutoSave, BackupRestore and SoftReload share one store.Store; each works
// inside its own namespace so their keys never collide.
package strategies

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
)

// Strategy names.
const (
	NameAutoSave       = "auto-save"
	NameComponentReset = "component-reset"
	NameBackupRestore  = "backup-restore"
	NameSoftReload     = "soft-reload"
	NameHardReset      = "hard-reset"
)

// Default priorities; lower runs first.
const (
	PriorityAutoSave       = 1
	PriorityComponentReset = 2
	PriorityBackupRestore  = 3
	PrioritySoftReload     = 4
	PriorityHardReset      = 100
)

// Defaults for timing options.
const (
	DefaultSettleDelay   = 150 * time.Millisecond
	DefaultFallbackDelay = 3 * time.Second
)

type options struct {
	logger        *slog.Logger
	settleDelay   time.Duration
	fallbackDelay time.Duration
	retry         apperror.RetryConfig
	host          Host
	now           func() time.Time
}

func buildOptions(opts []Option) options {
	o := options{
		logger:        slog.Default(),
		settleDelay:   DefaultSettleDelay,
		fallbackDelay: DefaultFallbackDelay,
		retry:         apperror.PersistRetry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a strategy. Options that do not apply to a strategy
// are ignored by it.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSettleDelay bounds how long ComponentReset waits for remount
// handlers. Zero waits until they finish. Default: 150ms.
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.settleDelay = d
		}
	}
}

// WithFallbackDelay sets when SoftReload retries a reload that did not
// take effect. Zero disables the fallback. Default: 3s.
func WithFallbackDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.fallbackDelay = d
		}
	}
}

// WithRetry sets the retry policy for design saves. Default: apperror.PersistRetry.
func WithRetry(cfg apperror.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithHost sets where BackupRestore applies restored state.
func WithHost(h Host) Option {
	return func(o *options) {
		o.host = h
	}
}

// WithClock replaces time.Now for timestamps written to the store.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// attempt runs one best-effort step, converting a panic into an error.
func attempt(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
