package strategies

import (
	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/process"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/signal"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
)

// TargetStore names the default HardReset target.
const TargetStore = "store"

// Deps are the collaborators of the standard strategy set.
type Deps struct {
	Store      store.Store
	Documents  document.Persistence
	Signals    *signal.Dispatcher
	Controller process.Controller

	// ResetTargets are cleared by HardReset. Empty means all of Store:
	// documents, backups, AutoSave artifacts and pending restorations.
	ResetTargets []Target
}

// Standard builds the five standard strategies from deps. A strategy
// whose collaborator is missing is left out: ComponentReset needs
// Signals, SoftReload and HardReset need Controller.
func Standard(deps Deps, opts ...Option) []recovery.Strategy {
	var out []recovery.Strategy
	if deps.Store != nil {
		out = append(out,
			NewAutoSave(deps.Documents, deps.Store, opts...),
			NewBackupRestore(deps.Documents, deps.Store, opts...),
		)
	}
	if deps.Signals != nil {
		out = append(out, NewComponentReset(deps.Signals, opts...))
	}
	if deps.Controller != nil {
		if deps.Store != nil {
			out = append(out, NewSoftReload(deps.Store, deps.Controller, opts...))
		}
		targets := deps.ResetTargets
		if len(targets) == 0 && deps.Store != nil {
			targets = []Target{StoreTarget(TargetStore, deps.Store)}
		}
		out = append(out, NewHardReset(deps.Controller, targets, opts...))
	}
	return out
}
