package recovery

import (
	"cmp"
	"context"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/registry"
)

// Strategy is a unit of remediation.
//
// Execute returns a Result describing what happened. A returned error is
// treated as a failed attempt and the run moves on to the next strategy;
// so is a panic.
type Strategy interface {
	// Name identifies the strategy. Names are unique within a registry.
	Name() string

	// Priority orders strategies; lower runs first.
	Priority() int

	// CanHandle reports whether the strategy applies to rec.
	CanHandle(rec *apperror.Record) bool

	// Execute runs the strategy. rec and rc must not be modified.
	Execute(ctx context.Context, rec *apperror.Record, rc *RecoveryContext) (Result, error)
}

// FuncStrategy adapts plain functions to the Strategy interface.
//
// Example:
//
//	orch.RegisterStrategy(&recovery.FuncStrategy{
//	    StrategyName:     "flush-cache",
//	    StrategyPriority: 5,
//	    Run: func(ctx context.Context, rec *apperror.Record, rc *recovery.RecoveryContext) (recovery.Result, error) {
//	        return recovery.Result{Success: cache.Flush() == nil}, nil
//	    },
//	})
type FuncStrategy struct {
	StrategyName     string
	StrategyPriority int

	// Match defaults to always applicable.
	Match func(rec *apperror.Record) bool
	Run   func(ctx context.Context, rec *apperror.Record, rc *RecoveryContext) (Result, error)
}

var _ Strategy = (*FuncStrategy)(nil)

// Name returns StrategyName.
func (f *FuncStrategy) Name() string { return f.StrategyName }

// Priority returns StrategyPriority.
func (f *FuncStrategy) Priority() int { return f.StrategyPriority }

// CanHandle calls Match, or returns true when Match is nil.
func (f *FuncStrategy) CanHandle(rec *apperror.Record) bool {
	if f.Match == nil {
		return true
	}
	return f.Match(rec)
}

// Execute calls Run. A nil Run reports a failed, continuing result.
func (f *FuncStrategy) Execute(ctx context.Context, rec *apperror.Record, rc *RecoveryContext) (Result, error) {
	if f.Run == nil {
		return Result{Strategy: f.StrategyName, Message: "no-op strategy", NextAction: ActionContinue}, nil
	}
	return f.Run(ctx, rec, rc)
}

// StrategyRegistry holds strategies by name.
type StrategyRegistry struct {
	entries *registry.Registry[string, entry]
}

// entry pins the name and priority a strategy reported when registered.
type entry struct {
	Strategy
	name     string
	priority int
}

func (e entry) Name() string { return e.name }

func (e entry) Priority() int { return e.priority }

// NewStrategyRegistry creates an empty registry.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{entries: registry.New[string, entry]()}
}

// Register adds s, replacing any strategy with the same name. Name and
// Priority are read once, here. Nil strategies, empty names and strategies
// whose Name or Priority panics are ignored; Register reports whether s
// was kept.
func (r *StrategyRegistry) Register(s Strategy) bool {
	if s == nil {
		return false
	}
	e, ok := describe(s)
	if !ok || e.name == "" {
		return false
	}
	r.entries.Register(e.name, e)
	return true
}

func describe(s Strategy) (e entry, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return entry{Strategy: s, name: s.Name(), priority: s.Priority()}, true
}

// Unregister removes the strategy called name.
func (r *StrategyRegistry) Unregister(name string) {
	r.entries.Delete(name)
}

// Get returns the strategy called name.
func (r *StrategyRegistry) Get(name string) (Strategy, bool) {
	e, ok := r.entries.Get(name)
	if !ok {
		return nil, false
	}
	return e.Strategy, true
}

// Len returns the number of registered strategies.
func (r *StrategyRegistry) Len() int {
	return r.entries.Len()
}

// All returns every strategy sorted by priority, then name.
func (r *StrategyRegistry) All() []Strategy {
	sorted := r.entries.Sorted(byPriority)
	out := make([]Strategy, len(sorted))
	for i, e := range sorted {
		out[i] = e
	}
	return out
}

// Names returns the names of All.
func (r *StrategyRegistry) Names() []string {
	return strategyNames(r.All())
}

// Plan returns the strategies to try for rec, in execution order.
//
// Names in preferred come first, in that order, when registered and able to
// handle rec. The remaining applicable strategies follow by ascending
// priority, ties broken by name. A CanHandle that panics counts as false.
func (r *StrategyRegistry) Plan(rec *apperror.Record, preferred []string) []Strategy {
	seen := make(map[string]bool, len(preferred))
	plan := make([]Strategy, 0, r.Len())

	for _, name := range preferred {
		if seen[name] {
			continue
		}
		seen[name] = true
		if e, ok := r.entries.Get(name); ok && canHandle(e, rec) {
			plan = append(plan, e)
		}
	}

	for _, s := range r.All() {
		if seen[s.Name()] || !canHandle(s, rec) {
			continue
		}
		plan = append(plan, s)
	}
	return plan
}

func byPriority(a, b entry) int {
	if c := cmp.Compare(a.priority, b.priority); c != 0 {
		return c
	}
	return cmp.Compare(a.name, b.name)
}

func canHandle(s Strategy, rec *apperror.Record) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return s.CanHandle(rec)
}

// strategyNames lists the names of strategies in order.
func strategyNames(strategies []Strategy) []string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name()
	}
	return names
}
