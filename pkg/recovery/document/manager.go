package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
)

// Persistence is the document boundary used by recovery strategies.
type Persistence interface {
	// SaveDesign makes d the project's current design and records a backup.
	SaveDesign(ctx context.Context, d *Design) (BackupInfo, error)

	// CurrentDesign returns the project's current design.
	// Returns ErrNoDesign if nothing was saved.
	CurrentDesign(ctx context.Context, projectID string) (*Design, error)

	// ListBackups returns the project's backups, newest first.
	ListBackups(ctx context.Context, projectID string) ([]BackupInfo, error)

	// LoadBackup reads a backup without validating it.
	LoadBackup(ctx context.Context, projectID, backupID string) (*Design, error)

	// RestoreFromBackup validates a backup and makes it the current design.
	RestoreFromBackup(ctx context.Context, projectID, backupID string) (*Design, error)
}

// BackupInfo describes a stored backup without loading it.
type BackupInfo struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultRetention is the number of backups kept per project.
const DefaultRetention = 10

// Manager implements Persistence on top of a key/value store.
// Backup ids are ULIDs, so lexical key order is creation order.
type Manager struct {
	kv        store.Store
	retention int
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetention sets how many backups are kept per project.
func WithRetention(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.retention = n
		}
	}
}

// WithLogger sets the logger used for retention cleanup failures.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a document manager. Keys are written under "doc/".
func NewManager(kv store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		kv:        store.WithNamespace(kv, "doc"),
		retention: DefaultRetention,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func currentKey(projectID string) string {
	return "current/" + projectID
}

func backupPrefix(projectID string) string {
	return "backup/" + projectID + "/"
}

// SaveDesign implements Persistence.
func (m *Manager) SaveDesign(ctx context.Context, d *Design) (BackupInfo, error) {
	if d == nil || d.ProjectID == "" {
		return BackupInfo{}, fmt.Errorf("%w: missing project id", ErrInvalidDesign)
	}

	id := ulid.Make()
	info := BackupInfo{
		ID:        id.String(),
		ProjectID: d.ProjectID,
		CreatedAt: ulid.Time(id.Time()),
	}

	if err := store.SetJSON(ctx, m.kv, backupPrefix(d.ProjectID)+info.ID, d); err != nil {
		return BackupInfo{}, fmt.Errorf("write backup: %w", err)
	}
	if err := store.SetJSON(ctx, m.kv, currentKey(d.ProjectID), d); err != nil {
		return info, fmt.Errorf("write current design: %w", err)
	}

	if err := m.enforceRetention(ctx, d.ProjectID); err != nil {
		m.logger.Warn("backup retention cleanup failed",
			slog.String("project_id", d.ProjectID),
			slog.String("error", err.Error()),
		)
	}
	return info, nil
}

// CurrentDesign implements Persistence.
func (m *Manager) CurrentDesign(ctx context.Context, projectID string) (*Design, error) {
	d, err := store.GetJSON[*Design](ctx, m.kv, currentKey(projectID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoDesign
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListBackups implements Persistence.
func (m *Manager) ListBackups(ctx context.Context, projectID string) ([]BackupInfo, error) {
	prefix := backupPrefix(projectID)
	keys, err := m.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	infos := make([]BackupInfo, 0, len(keys))
	for _, k := range keys {
		raw := strings.TrimPrefix(k, prefix)
		id, err := ulid.ParseStrict(raw)
		if err != nil {
			continue
		}
		infos = append(infos, BackupInfo{
			ID:        raw,
			ProjectID: projectID,
			CreatedAt: ulid.Time(id.Time()),
		})
	}
	slices.Reverse(infos)
	return infos, nil
}

// LoadBackup implements Persistence.
func (m *Manager) LoadBackup(ctx context.Context, projectID, backupID string) (*Design, error) {
	d, err := store.GetJSON[*Design](ctx, m.kv, backupPrefix(projectID)+backupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, backupID)
	}
	if err != nil {
		// Undecodable payloads are corrupt backups.
		return nil, fmt.Errorf("%w: %w", ErrInvalidDesign, err)
	}
	return d, nil
}

// RestoreFromBackup implements Persistence.
func (m *Manager) RestoreFromBackup(ctx context.Context, projectID, backupID string) (*Design, error) {
	d, err := m.LoadBackup(ctx, projectID, backupID)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.ProjectID != projectID {
		return nil, fmt.Errorf("%w: backup belongs to project %q", ErrInvalidDesign, d.ProjectID)
	}
	if err := store.SetJSON(ctx, m.kv, currentKey(projectID), d); err != nil {
		return nil, fmt.Errorf("write current design: %w", err)
	}
	return d, nil
}

// enforceRetention removes the oldest backups beyond the retention count.
func (m *Manager) enforceRetention(ctx context.Context, projectID string) error {
	prefix := backupPrefix(projectID)
	keys, err := m.kv.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) <= m.retention {
		return nil
	}

	var errs []error
	for _, k := range keys[:len(keys)-m.retention] {
		if err := m.kv.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
