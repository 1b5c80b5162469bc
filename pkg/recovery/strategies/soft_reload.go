package strategies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/process"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
)

// PendingData is the state SoftReload carries across a reload.
type PendingData struct {
	ErrorID     string           `json:"error_id"`
	SessionID   string           `json:"session_id"`
	ProjectID   string           `json:"project_id,omitempty"`
	Design      *document.Design `json:"design,omitempty"`
	Preferences map[string]any   `json:"preferences,omitempty"`
	SavedAt     time.Time        `json:"saved_at"`
}

// Pending is the result of the startup restoration check.
type Pending struct {
	HasData bool
	Data    *PendingData
}

// SoftReload stashes the current state in a reload-surviving namespace,
// raises the restoration flag and restarts the application. It applies to
// rendering and runtime faults of high or critical severity and to chunk
// load failures.
//
// The restart prefers process.Relauncher and falls back to Reload. When a
// restart call returns without the process going away, a timer retries
// Reload after the fallback delay.
type SoftReload struct {
	kv   *store.Namespaced
	ctrl process.Controller
	opts options

	mu       sync.Mutex
	fallback *time.Timer
}

var _ recovery.Strategy = (*SoftReload)(nil)

// NewSoftReload creates the strategy.
func NewSoftReload(kv store.Store, ctrl process.Controller, opts ...Option) *SoftReload {
	return &SoftReload{
		kv:   store.WithNamespace(kv, NamespacePending),
		ctrl: ctrl,
		opts: buildOptions(opts),
	}
}

// Name implements recovery.Strategy.
func (s *SoftReload) Name() string { return NameSoftReload }

// Priority implements recovery.Strategy.
func (s *SoftReload) Priority() int { return PrioritySoftReload }

// CanHandle implements recovery.Strategy.
func (s *SoftReload) CanHandle(rec *apperror.Record) bool {
	if rec.MentionsChunkLoad() {
		return true
	}
	switch rec.Category {
	case apperror.CategoryRendering, apperror.CategoryRuntime:
		return rec.Severity.AtLeast(apperror.SeverityHigh)
	}
	return false
}

// Execute implements recovery.Strategy.
func (s *SoftReload) Execute(ctx context.Context, rec *apperror.Record, rc *recovery.RecoveryContext) (recovery.Result, error) {
	if rc == nil {
		rc = recovery.MinimalContext()
	}
	if s.ctrl == nil {
		return recovery.Result{}, fmt.Errorf("%s: no process controller", NameSoftReload)
	}
	logger := s.opts.logger.With(slog.String("strategy", NameSoftReload), slog.String("error_id", rec.ID))

	m := &recovery.Manifest{}
	if err := attempt(func() error { return s.preserve(ctx, rec, rc) }); err != nil {
		logger.Warn("state not preserved for reload", slog.String("error", err.Error()))
		m.AddFailed(ArtifactDesign, err)
	} else if rc.Design != nil {
		m.AddSaved(ArtifactDesign)
	}

	how, err := s.restart(ctx)
	if err != nil {
		// Nothing will consume the payload; drop the flag so the next
		// startup does not restore stale state.
		if rmErr := s.kv.Remove(ctx, keyPendingFlag); rmErr != nil {
			logger.Warn("restoration flag not cleared", slog.String("error", rmErr.Error()))
		}
		return recovery.Result{
			Strategy:   NameSoftReload,
			Message:    "reload failed: " + err.Error(),
			NextAction: recovery.ActionContinue,
			Manifest:   m,
		}, nil
	}

	s.armFallback(logger)
	logger.Info("reload triggered", slog.String("method", how))
	return recovery.Result{
		Success:    true,
		Strategy:   NameSoftReload,
		Message:    "application " + how + " triggered",
		NextAction: recovery.ActionReload,
		Manifest:   m,
	}, nil
}

// preserve writes the payload first and the flag second, so a raised flag
// always has data behind it.
func (s *SoftReload) preserve(ctx context.Context, rec *apperror.Record, rc *recovery.RecoveryContext) error {
	now := s.opts.now()
	data := PendingData{
		ErrorID:     rec.ID,
		SessionID:   rc.SessionID,
		ProjectID:   rc.ProjectOrDesign(),
		Design:      rc.Design,
		Preferences: rc.Preferences,
		SavedAt:     now,
	}
	if err := store.SetJSON(ctx, s.kv, keyPendingData, data); err != nil {
		return err
	}
	return s.kv.Set(ctx, keyPendingFlag, []byte(strconv.FormatInt(now.UnixMilli(), 10)))
}

func (s *SoftReload) restart(ctx context.Context) (string, error) {
	if r, ok := s.ctrl.(process.Relauncher); ok {
		err := r.Relaunch(ctx)
		if err == nil {
			return "relaunch", nil
		}
		if !errors.Is(err, process.ErrRelaunchUnsupported) {
			s.opts.logger.Warn("relaunch failed, falling back to reload", slog.String("error", err.Error()))
		}
	}
	if err := s.ctrl.Reload(ctx); err != nil {
		return "", err
	}
	return "reload", nil
}

func (s *SoftReload) armFallback(logger *slog.Logger) {
	if s.opts.fallbackDelay <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback != nil {
		s.fallback.Stop()
	}
	s.fallback = time.AfterFunc(s.opts.fallbackDelay, func() {
		logger.Warn("reload did not take effect, retrying")
		if err := s.ctrl.Reload(context.Background()); err != nil {
			logger.Error("fallback reload failed", slog.String("error", err.Error()))
		}
	})
}

// StopFallback cancels a pending fallback reload. It reports whether a
// timer was stopped before firing.
func (s *SoftReload) StopFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback == nil {
		return false
	}
	stopped := s.fallback.Stop()
	s.fallback = nil
	return stopped
}

// CheckPendingRestoration reports whether the previous process stashed
// state before reloading. The flag is taken atomically, so of several
// startups sharing kv at most one sees HasData. The payload stays in
// place until ConsumeRestoration removes it.
func CheckPendingRestoration(ctx context.Context, kv store.Store) (Pending, error) {
	ns := store.WithNamespace(kv, NamespacePending)

	if _, err := store.Take(ctx, ns, keyPendingFlag); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Pending{}, nil
		}
		return Pending{}, fmt.Errorf("take restoration flag: %w", err)
	}

	data, err := store.GetJSON[*PendingData](ctx, ns, keyPendingData)
	if err != nil {
		return Pending{}, fmt.Errorf("read pending restoration: %w", err)
	}
	return Pending{HasData: true, Data: data}, nil
}

// ConsumeRestoration rehydrates the stashed design through docs and
// removes the payload. A Pending without data is a no-op.
func ConsumeRestoration(ctx context.Context, kv store.Store, docs document.Persistence, p Pending) error {
	if !p.HasData || p.Data == nil {
		return nil
	}

	var errs []error
	if p.Data.Design != nil {
		d := *p.Data.Design
		if d.ProjectID == "" {
			d.ProjectID = p.Data.ProjectID
		}
		if docs == nil {
			errs = append(errs, errNoPersister)
		} else if _, err := docs.SaveDesign(ctx, &d); err != nil {
			errs = append(errs, fmt.Errorf("rehydrate design: %w", err))
		}
	}

	if err := store.WithNamespace(kv, NamespacePending).Remove(ctx, keyPendingData); err != nil {
		errs = append(errs, fmt.Errorf("remove pending restoration: %w", err))
	}
	return errors.Join(errs...)
}
