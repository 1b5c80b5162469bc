// Package observability carries the logging, metrics and tracing of
// recovery runs. Logging goes through slog; metrics through OpenTelemetry
// or Prometheus; tracing through OpenTelemetry. Each has a no-op form.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// RunLog writes the log lines of one recovery run. The zero value and a
// RunLog over a nil logger write nothing.
type RunLog struct {
	l *slog.Logger
}

// ForRun tags every line with errorID.
func ForRun(logger *slog.Logger, errorID string) RunLog {
	if logger == nil {
		return RunLog{}
	}
	return RunLog{l: logger.With(slog.String("error_id", errorID))}
}

func (r RunLog) Starting(category, severity string, plan []string) {
	if r.l == nil {
		return
	}
	r.l.Info("recovery starting",
		slog.String("category", category),
		slog.String("severity", severity),
		slog.Any("strategies", plan),
	)
}

func (r RunLog) Skipped(reason string) {
	if r.l == nil {
		return
	}
	r.l.Debug("recovery skipped", slog.String("reason", reason))
}

// Finished logs the outcome at info, or warn when recovery failed.
func (r RunLog) Finished(strategy string, success bool, d time.Duration, attempts int) {
	if r.l == nil {
		return
	}
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	r.l.Log(context.Background(), level, "recovery completed",
		slog.String("strategy", strategy),
		slog.Bool("success", success),
		durationMS(d),
		slog.Int("attempts", attempts),
	)
}

// Step narrows the run log to one strategy attempt.
func (r RunLog) Step(strategy string, attempt int) StepLog {
	if r.l == nil {
		return StepLog{}
	}
	return StepLog{l: r.l.With(slog.String("strategy", strategy), slog.Int("attempt", attempt))}
}

// StepLog writes the log lines of one strategy attempt.
type StepLog struct {
	l *slog.Logger
}

// Logger returns the tagged logger, or a discarding one.
func (s StepLog) Logger() *slog.Logger {
	if s.l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.l
}

func (s StepLog) Starting() {
	if s.l != nil {
		s.l.Debug("strategy starting")
	}
}

func (s StepLog) Failed(err error) {
	if s.l != nil {
		s.l.Error("strategy failed", slog.String("error", err.Error()))
	}
}

func (s StepLog) Finished(success bool, next string, d time.Duration) {
	if s.l == nil {
		return
	}
	s.l.Debug("strategy completed",
		slog.Bool("success", success),
		slog.String("next_action", next),
		durationMS(d),
	)
}

// PersistFailed logs a best-effort save or restore step that did not
// work. Recovery carries on after it.
func PersistFailed(logger *slog.Logger, artifact, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("artifact persistence failed",
		slog.String("artifact", artifact),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

func durationMS(d time.Duration) slog.Attr {
	return slog.Float64("duration_ms", millis(d))
}
