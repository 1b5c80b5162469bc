package strategies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/process"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
)

// Target is one piece of local state HardReset clears.
type Target struct {
	Name  string
	Clear func(ctx context.Context) error
}

// StoreTarget clears every key of s. Pass a store.Namespaced to limit the
// reset to one namespace.
func StoreTarget(name string, s store.Store) Target {
	return Target{
		Name:  name,
		Clear: func(ctx context.Context) error { return store.Clear(ctx, s) },
	}
}

// HardReset is the last resort: it clears every configured target and
// reloads the application. Unsaved work is lost. It applies to faults of
// high or critical severity and to records marked forced.
//
// Targets are cleared independently; a failing one is listed in the
// manifest and does not stop the others. The result always asks for a
// reload; it is successful only if the reload was triggered.
type HardReset struct {
	ctrl    process.Controller
	targets []Target
	opts    options
}

var _ recovery.Strategy = (*HardReset)(nil)

// NewHardReset creates the strategy.
func NewHardReset(ctrl process.Controller, targets []Target, opts ...Option) *HardReset {
	return &HardReset{ctrl: ctrl, targets: targets, opts: buildOptions(opts)}
}

// Name implements recovery.Strategy.
func (s *HardReset) Name() string { return NameHardReset }

// Priority implements recovery.Strategy.
func (s *HardReset) Priority() int { return PriorityHardReset }

// CanHandle implements recovery.Strategy.
func (s *HardReset) CanHandle(rec *apperror.Record) bool {
	return rec.Severity.AtLeast(apperror.SeverityHigh) || rec.Forced()
}

// Execute implements recovery.Strategy.
func (s *HardReset) Execute(ctx context.Context, rec *apperror.Record, _ *recovery.RecoveryContext) (recovery.Result, error) {
	logger := s.opts.logger.With(slog.String("strategy", NameHardReset), slog.String("error_id", rec.ID))
	logger.Warn("hard reset: clearing local state, unsaved work will be lost",
		slog.Int("targets", len(s.targets)),
	)

	m := &recovery.Manifest{}
	for _, t := range s.targets {
		if t.Clear == nil {
			m.AddSkipped(t.Name)
			continue
		}
		if err := attempt(func() error { return t.Clear(ctx) }); err != nil {
			logger.Error("clear failed", slog.String("target", t.Name), slog.String("error", err.Error()))
			m.AddFailed(t.Name, err)
			continue
		}
		m.AddSaved(t.Name)
	}

	res := recovery.Result{
		Strategy:   NameHardReset,
		NextAction: recovery.ActionReload,
		Manifest:   m,
	}

	var err error
	if s.ctrl == nil {
		err = errors.New("no process controller")
	} else {
		err = attempt(func() error { return s.ctrl.Reload(ctx) })
	}
	if err != nil {
		logger.Error("reload after reset failed", slog.String("error", err.Error()))
		res.RequiresUserAction = true
		res.Message = "state cleared but reload failed: " + err.Error()
		return res, nil
	}

	res.Success = true
	res.Message = fmt.Sprintf("cleared %d of %d targets, reloading", len(m.Saved), len(s.targets))
	return res, nil
}
