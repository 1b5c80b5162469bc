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

var (
	errNoProject   = errors.New("no project in recovery context")
	errNoBackup    = errors.New("no valid backup")
	errNoHost      = errors.New("no host to apply restored state")
	errNoSnapshot  = errors.New("no cached snapshot")
	errNoPersister = errors.New("no document persistence configured")
)

// BackupRestore restores the newest valid backup of the current project
// together with the cached preferences and audio snapshot AutoSave wrote.
// It applies to persistence faults and to any fault of high or critical
// severity.
//
// Backups are tried newest first; one failing validation moves on to the
// next older one. Each artifact that cannot be restored is listed in the
// manifest. When nothing is restored the result asks for user action and
// a reset.
type BackupRestore struct {
	docs document.Persistence
	kv   *store.Namespaced
	opts options
}

var _ recovery.Strategy = (*BackupRestore)(nil)

// NewBackupRestore creates the strategy. kv is the store shared with
// AutoSave. Restored preferences and audio reach the application through
// WithHost; without a host they are reported as failed.
func NewBackupRestore(docs document.Persistence, kv store.Store, opts ...Option) *BackupRestore {
	return &BackupRestore{
		docs: docs,
		kv:   store.WithNamespace(kv, NamespaceAutoSave),
		opts: buildOptions(opts),
	}
}

// Name implements recovery.Strategy.
func (s *BackupRestore) Name() string { return NameBackupRestore }

// Priority implements recovery.Strategy.
func (s *BackupRestore) Priority() int { return PriorityBackupRestore }

// CanHandle implements recovery.Strategy.
func (s *BackupRestore) CanHandle(rec *apperror.Record) bool {
	return rec.Category == apperror.CategoryPersistence || rec.Severity.AtLeast(apperror.SeverityHigh)
}

// Execute implements recovery.Strategy.
func (s *BackupRestore) Execute(ctx context.Context, rec *apperror.Record, rc *recovery.RecoveryContext) (recovery.Result, error) {
	if rc == nil {
		rc = recovery.MinimalContext()
	}
	logger := s.opts.logger.With(slog.String("strategy", NameBackupRestore), slog.String("error_id", rec.ID))
	m := &recovery.Manifest{}

	restore := func(artifact string, fn func() error) {
		if err := attempt(fn); err != nil {
			observability.PersistFailed(logger, artifact, "restore", err)
			m.AddFailed(artifact, err)
			return
		}
		m.AddSaved(artifact)
	}

	restore(ArtifactDesign, func() error { return s.restoreDesign(ctx, rc.ProjectOrDesign(), logger) })
	restore(ArtifactPreferences, func() error { return s.restorePreferences(ctx) })
	restore(ArtifactAudio, func() error { return s.restoreAudio(ctx, rc.SessionID) })

	if len(m.Saved) == 0 {
		return recovery.Result{
			Strategy:           NameBackupRestore,
			Message:            "nothing could be restored: " + m.String(),
			RequiresUserAction: true,
			NextAction:         recovery.ActionReset,
			Manifest:           m,
		}, nil
	}

	logger.Info("state restored", slog.String("manifest", m.String()))
	return recovery.Result{
		Success:    true,
		Strategy:   NameBackupRestore,
		Message:    "restored " + m.String(),
		NextAction: recovery.ActionContinue,
		Manifest:   m,
	}, nil
}

func (s *BackupRestore) restoreDesign(ctx context.Context, projectID string, logger *slog.Logger) error {
	if s.docs == nil {
		return errNoPersister
	}
	if projectID == "" {
		return errNoProject
	}

	backups, err := s.docs.ListBackups(ctx, projectID)
	if err != nil {
		return err
	}

	var rejected []error
	for _, b := range backups {
		d, err := s.docs.RestoreFromBackup(ctx, projectID, b.ID)
		if err != nil {
			logger.Debug("backup rejected",
				slog.String("backup_id", b.ID),
				slog.String("error", err.Error()),
			)
			rejected = append(rejected, err)
			continue
		}
		if s.opts.host != nil {
			if err := s.opts.host.ApplyDesign(ctx, d); err != nil {
				return fmt.Errorf("apply backup %s: %w", b.ID, err)
			}
		}
		logger.Info("backup restored",
			slog.String("backup_id", b.ID),
			slog.Int("skipped", len(rejected)),
		)
		return nil
	}
	return fmt.Errorf("%w among %d backups of %s", errNoBackup, len(backups), projectID)
}

func (s *BackupRestore) restorePreferences(ctx context.Context) error {
	if s.opts.host == nil {
		return errNoHost
	}
	prefs, err := store.GetJSON[map[string]any](ctx, s.kv, keyPreferences)
	if errors.Is(err, store.ErrNotFound) {
		return errNoSnapshot
	}
	if err != nil {
		return err
	}
	return s.opts.host.ApplyPreferences(ctx, prefs)
}

func (s *BackupRestore) restoreAudio(ctx context.Context, sessionID string) error {
	if s.opts.host == nil {
		return errNoHost
	}
	audio, err := store.GetJSON[*document.AudioSnapshot](ctx, s.kv, audioKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return errNoSnapshot
	}
	if err != nil {
		return err
	}
	if err := audio.Validate(); err != nil {
		return err
	}
	if audio.SessionID != sessionID {
		return fmt.Errorf("%w: snapshot belongs to session %q", document.ErrInvalidAudio, audio.SessionID)
	}
	return s.opts.host.ApplyAudio(ctx, audio)
}
