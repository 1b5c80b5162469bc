package strategies

import (
	"context"
	"time"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
)

// Store namespaces. AutoSave writes what BackupRestore later reads;
// SoftReload keeps its reload-surviving payload apart from both.
const (
	NamespaceAutoSave = "autosave"
	NamespacePending  = "pending"
)

// Keys inside NamespaceAutoSave.
const (
	keyPreferences     = "preferences"
	keyManifest        = "manifest"
	keyEmergencyDesign = "emergency/design/"
	keyAudio           = "audio/"
)

// Keys inside NamespacePending.
const (
	keyPendingData = "data"
	keyPendingFlag = "flag"
)

// Artifact names used in manifests.
const (
	ArtifactDesign      = "design"
	ArtifactAudio       = "audio"
	ArtifactPreferences = "preferences"
	ArtifactManifest    = "manifest"
)

func audioKey(sessionID string) string {
	return keyAudio + sessionID
}

// Host applies restored state to the running application.
type Host interface {
	ApplyDesign(ctx context.Context, d *document.Design) error
	ApplyPreferences(ctx context.Context, prefs map[string]any) error
	ApplyAudio(ctx context.Context, a *document.AudioSnapshot) error
}

// HostFuncs adapts plain functions to Host. Nil functions accept the value
// without doing anything.
type HostFuncs struct {
	Design      func(ctx context.Context, d *document.Design) error
	Preferences func(ctx context.Context, prefs map[string]any) error
	Audio       func(ctx context.Context, a *document.AudioSnapshot) error
}

// ApplyDesign implements Host.
func (h HostFuncs) ApplyDesign(ctx context.Context, d *document.Design) error {
	if h.Design == nil {
		return nil
	}
	return h.Design(ctx, d)
}

// ApplyPreferences implements Host.
func (h HostFuncs) ApplyPreferences(ctx context.Context, prefs map[string]any) error {
	if h.Preferences == nil {
		return nil
	}
	return h.Preferences(ctx, prefs)
}

// ApplyAudio implements Host.
func (h HostFuncs) ApplyAudio(ctx context.Context, a *document.AudioSnapshot) error {
	if h.Audio == nil {
		return nil
	}
	return h.Audio(ctx, a)
}

// EmergencyBackup is the manifest AutoSave writes after each run.
type EmergencyBackup struct {
	ErrorID   string    `json:"error_id"`
	SessionID string    `json:"session_id"`
	ProjectID string    `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Saved     []string  `json:"saved,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	Skipped   []string  `json:"skipped,omitempty"`
}
