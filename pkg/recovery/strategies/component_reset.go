package strategies

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/signal"
)

// ComponentReset asks the UI to remount the component that failed,
// without reloading the process. It applies to rendering faults of high
// or critical severity.
//
// The remount signal is sent through a signal.Dispatcher and processed
// for up to the settle delay. Handler failures are logged by the
// dispatcher; only a failure to send the signal fails the strategy.
type ComponentReset struct {
	dispatcher *signal.Dispatcher
	opts       options
}

var _ recovery.Strategy = (*ComponentReset)(nil)

// NewComponentReset creates the strategy.
func NewComponentReset(d *signal.Dispatcher, opts ...Option) *ComponentReset {
	return &ComponentReset{dispatcher: d, opts: buildOptions(opts)}
}

// Name implements recovery.Strategy.
func (s *ComponentReset) Name() string { return NameComponentReset }

// Priority implements recovery.Strategy.
func (s *ComponentReset) Priority() int { return PriorityComponentReset }

// CanHandle implements recovery.Strategy.
func (s *ComponentReset) CanHandle(rec *apperror.Record) bool {
	return rec.Category == apperror.CategoryRendering && rec.Severity.AtLeast(apperror.SeverityHigh)
}

// Execute implements recovery.Strategy.
func (s *ComponentReset) Execute(ctx context.Context, rec *apperror.Record, _ *recovery.RecoveryContext) (recovery.Result, error) {
	if s.dispatcher == nil {
		return recovery.Result{}, fmt.Errorf("%s: no signal dispatcher", NameComponentReset)
	}

	component := rec.ContextString(apperror.ContextComponent)
	sig := signal.NewRemount(component, rec.ID, rec.Message).WithSender(NameComponentReset)
	if err := s.dispatcher.Send(ctx, sig); err != nil {
		return recovery.Result{
			Strategy:   NameComponentReset,
			Message:    "remount signal could not be sent: " + err.Error(),
			NextAction: recovery.ActionContinue,
		}, nil
	}

	report, settled := s.settle(ctx)
	s.opts.logger.Info("remount requested",
		slog.String("error_id", rec.ID),
		slog.String("component", component),
		slog.String("signal_id", sig.ID),
		slog.Int("handled", report.Processed),
		slog.Int("failed", report.Failed),
		slog.Bool("settled", settled),
	)

	target := component
	if target == "" {
		target = "application view"
	}
	return recovery.Result{
		Success:    true,
		Strategy:   NameComponentReset,
		Message:    fmt.Sprintf("remount requested for %s", target),
		NextAction: recovery.ActionContinue,
	}, nil
}

// settle processes pending UI signals, waiting at most the settle delay.
// Processing that outlives the wait keeps running in the background.
func (s *ComponentReset) settle(ctx context.Context) (signal.Report, bool) {
	type outcome struct {
		report signal.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := s.dispatcher.Process(context.WithoutCancel(ctx), signal.TargetUI)
		done <- outcome{r, err}
	}()

	var timeout <-chan time.Time
	if s.opts.settleDelay > 0 {
		t := time.NewTimer(s.opts.settleDelay)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case o := <-done:
		if o.err != nil {
			s.opts.logger.Warn("remount processing failed", slog.String("error", o.err.Error()))
		}
		return o.report, true
	case <-timeout:
		return signal.Report{}, false
	case <-ctx.Done():
		return signal.Report{}, false
	}
}
