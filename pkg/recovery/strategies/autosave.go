package strategies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/observability"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
)

// AutoSave preserves whatever state the recovery context carries. It
// applies to every fault and always runs first.
//
// The design, audio, preferences and the emergency manifest are written
// independently; a failure in one never blocks the others. A design the
// document persistence rejects is written to an emergency key instead.
// The run succeeds when at least one artifact other than the manifest was
// saved.
type AutoSave struct {
	docs document.Persistence
	kv   *store.Namespaced
	opts options
}

var _ recovery.Strategy = (*AutoSave)(nil)

// NewAutoSave creates the strategy. docs may be nil, in which case designs
// go straight to the emergency key.
func NewAutoSave(docs document.Persistence, kv store.Store, opts ...Option) *AutoSave {
	return &AutoSave{
		docs: docs,
		kv:   store.WithNamespace(kv, NamespaceAutoSave),
		opts: buildOptions(opts),
	}
}

// Name implements recovery.Strategy.
func (s *AutoSave) Name() string { return NameAutoSave }

// Priority implements recovery.Strategy.
func (s *AutoSave) Priority() int { return PriorityAutoSave }

// CanHandle implements recovery.Strategy.
func (s *AutoSave) CanHandle(*apperror.Record) bool { return true }

// Execute implements recovery.Strategy.
func (s *AutoSave) Execute(ctx context.Context, rec *apperror.Record, rc *recovery.RecoveryContext) (recovery.Result, error) {
	if rc == nil {
		rc = recovery.MinimalContext()
	}
	logger := s.opts.logger.With(slog.String("strategy", NameAutoSave), slog.String("error_id", rec.ID))
	m := &recovery.Manifest{}

	step := func(artifact string, available bool, fn func() error) {
		if !available {
			m.AddSkipped(artifact)
			return
		}
		if err := attempt(fn); err != nil {
			observability.PersistFailed(logger, artifact, "save", err)
			m.AddFailed(artifact, err)
			return
		}
		m.AddSaved(artifact)
	}

	step(ArtifactDesign, rc.Design != nil, func() error {
		return s.saveDesign(ctx, rc, m, logger)
	})
	step(ArtifactAudio, rc.Audio != nil, func() error {
		return store.SetJSON(ctx, s.kv, audioKey(rc.SessionID), rc.Audio)
	})
	step(ArtifactPreferences, len(rc.Preferences) > 0, func() error {
		return store.SetJSON(ctx, s.kv, keyPreferences, rc.Preferences)
	})

	saved := len(m.Saved)
	if err := attempt(func() error { return s.writeManifest(ctx, rec, rc, m) }); err != nil {
		observability.PersistFailed(logger, ArtifactManifest, "save", err)
		m.AddFailed(ArtifactManifest, err)
	}

	if saved == 0 {
		return recovery.Result{
			Strategy:   NameAutoSave,
			Message:    "nothing could be saved: " + m.String(),
			NextAction: recovery.ActionContinue,
			Manifest:   m,
		}, nil
	}

	logger.Info("emergency save finished", slog.String("manifest", m.String()))
	return recovery.Result{
		Success:    true,
		Strategy:   NameAutoSave,
		Message:    m.String(),
		NextAction: recovery.ActionContinue,
		Manifest:   m,
	}, nil
}

// saveDesign tries the document persistence first and the emergency key
// second. A primary failure that the fallback absorbed is noted in m.
func (s *AutoSave) saveDesign(ctx context.Context, rc *recovery.RecoveryContext, m *recovery.Manifest, logger *slog.Logger) error {
	design := rc.Design
	if design.ProjectID == "" && rc.ProjectID != "" {
		d := *design
		d.ProjectID = rc.ProjectID
		design = &d
	}

	var primaryErr error
	if s.docs != nil {
		res := apperror.WithRetryContext(ctx, s.opts.retry, func(ctx context.Context) (document.BackupInfo, error) {
			return s.docs.SaveDesign(ctx, design)
		})
		if res.Err == nil {
			return nil
		}
		primaryErr = res.Err
		observability.PersistFailed(logger, ArtifactDesign, "save-primary", primaryErr)
	} else {
		primaryErr = errors.New("no document persistence configured")
	}

	key := design.ProjectID
	if key == "" {
		key = rc.SessionID
	}
	if err := store.SetJSON(ctx, s.kv, keyEmergencyDesign+key, design); err != nil {
		return fmt.Errorf("primary: %w; emergency: %w", primaryErr, err)
	}
	m.AddFailed(ArtifactDesign+" (primary)", primaryErr)
	return nil
}

func (s *AutoSave) writeManifest(ctx context.Context, rec *apperror.Record, rc *recovery.RecoveryContext, m *recovery.Manifest) error {
	backup := EmergencyBackup{
		ErrorID:   rec.ID,
		SessionID: rc.SessionID,
		ProjectID: rc.ProjectOrDesign(),
		CreatedAt: s.opts.now(),
		Saved:     m.Saved,
		Skipped:   m.Skipped,
	}
	for _, f := range m.Failed {
		backup.Failed = append(backup.Failed, f.Artifact+": "+f.Reason)
	}
	return store.SetJSON(ctx, s.kv, keyManifest, backup)
}

// LoadEmergencyBackup reads the manifest of the last AutoSave run.
func LoadEmergencyBackup(ctx context.Context, kv store.Store) (EmergencyBackup, error) {
	return store.GetJSON[EmergencyBackup](ctx, store.WithNamespace(kv, NamespaceAutoSave), keyManifest)
}

// LoadEmergencyDesign reads a design AutoSave could only write to its
// emergency key. key is the project ID, or the session ID for designs
// without one.
func LoadEmergencyDesign(ctx context.Context, kv store.Store, key string) (*document.Design, error) {
	return store.GetJSON[*document.Design](ctx, store.WithNamespace(kv, NamespaceAutoSave), keyEmergencyDesign+key)
}
