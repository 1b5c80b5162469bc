package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/event"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/observability"
)

// Orchestrator coordinates recovery from critical faults.
//
// Create one per process with New and share it with every fault source.
// All methods are safe for concurrent use.
type Orchestrator struct {
	cfg        config
	strategies *StrategyRegistry
	history    *History
	bus        *event.LocalBus

	providerMu sync.RWMutex
	provider   ContextProvider

	running atomic.Bool
	// lastAttempt is only touched by the goroutine holding running.
	lastAttempt time.Time
}

// New creates an orchestrator with no strategies registered.
func New(opts ...Option) *Orchestrator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if cfg.bus.OnPanic == nil {
		cfg.bus.OnPanic = func(evt event.Event, sub *event.Subscription, recovered any) {
			logger.Warn("recovery listener panicked",
				slog.String("subscriber", sub.ID()),
				slog.String("event", evt.String()),
				slog.Any("panic", recovered),
			)
		}
	}
	if cfg.bus.OnDrop == nil {
		cfg.bus.OnDrop = func(evt event.Event, sub *event.Subscription) {
			logger.Debug("recovery event dropped",
				slog.String("subscriber", sub.ID()),
				slog.Uint64("dropped", sub.Dropped()),
				slog.String("event", evt.String()),
			)
		}
	}

	return &Orchestrator{
		cfg:        cfg,
		strategies: NewStrategyRegistry(),
		history:    NewHistory(cfg.historySize),
		bus:        event.NewBus(cfg.bus),
	}
}

// RegisterStrategy adds s, replacing any strategy with the same name.
// A strategy without a usable name or priority is logged and ignored.
func (o *Orchestrator) RegisterStrategy(s Strategy) {
	if !o.strategies.Register(s) {
		o.cfg.logger.Warn("strategy not registered", slog.String("type", fmt.Sprintf("%T", s)))
	}
}

// Strategies returns the strategy registry.
func (o *Orchestrator) Strategies() *StrategyRegistry {
	return o.strategies
}

// SetContextProvider installs the function used to gather a
// RecoveryContext. A nil provider restores the minimal context.
func (o *Orchestrator) SetContextProvider(p ContextProvider) {
	o.providerMu.Lock()
	defer o.providerMu.Unlock()
	o.provider = p
}

func (o *Orchestrator) contextProvider() ContextProvider {
	o.providerMu.RLock()
	defer o.providerMu.RUnlock()
	return o.provider
}

// Subscribe registers a listener for recovery events, optionally limited
// to kinds, and returns a function that detaches it. The function is safe
// to call more than once.
func (o *Orchestrator) Subscribe(l event.Listener, kinds ...event.Kind) (unsubscribe func()) {
	sub := o.bus.Subscribe(l, kinds...)
	if sub == nil {
		return func() {}
	}
	return sub.Unsubscribe
}

// History returns a copy of the attempt history, oldest first.
func (o *Orchestrator) History() []Attempt {
	return o.history.Snapshot()
}

// InProgress reports whether a recovery is currently running.
func (o *Orchestrator) InProgress() bool {
	return o.running.Load()
}

// Close stops the notification bus after delivering queued events.
func (o *Orchestrator) Close() error {
	return o.bus.Close()
}

// HandleError runs recovery for rec and returns the outcome.
//
// HandleError never panics and never fails: faults below the criticality
// gate, faults arriving while another recovery runs, and faults inside the
// cooldown window return immediately with Strategy "none" and Result.Err
// set. ctx is handed to the context provider and to every strategy; the
// orchestrator imposes no deadline of its own.
func (o *Orchestrator) HandleError(ctx context.Context, rec *apperror.Record) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	if !o.isCritical(rec) {
		return o.skip(ctx, rec, observability.SkipNotCritical, Result{
			Strategy:   StrategyNone,
			Message:    "error below recovery threshold",
			NextAction: ActionContinue,
			Err:        ErrNotCritical,
		})
	}

	if !o.running.CompareAndSwap(false, true) {
		return o.skip(ctx, rec, observability.SkipInProgress, Result{
			Strategy: StrategyNone,
			Message:  "already in progress",
			Err:      ErrInProgress,
		})
	}
	defer o.running.Store(false)

	now := o.cfg.clock()
	if o.cfg.cooldown > 0 && !o.lastAttempt.IsZero() && now.Sub(o.lastAttempt) < o.cfg.cooldown {
		return o.skip(ctx, rec, observability.SkipCooldown, Result{
			Strategy: StrategyNone,
			Message:  fmt.Sprintf("recovery throttled, retry after %s", o.lastAttempt.Add(o.cfg.cooldown).Sub(now).Round(time.Millisecond)),
			Err:      ErrCooldown,
		})
	}
	o.lastAttempt = now

	return o.run(ctx, rec, now)
}

func (o *Orchestrator) run(ctx context.Context, rec *apperror.Record, start time.Time) (result Result) {
	logger := o.cfg.logger
	log := observability.ForRun(logger, rec.ID)
	ctx, span := o.cfg.spans.StartRun(ctx, rec.ID, string(rec.Category), string(rec.Severity))

	attempts := 0
	defer func() {
		elapsed := o.cfg.clock().Sub(start)
		o.cfg.metrics.RecordRecovery(ctx, result.Strategy, result.Success, elapsed)
		log.Finished(result.Strategy, result.Success, elapsed, attempts)
		if result.Success {
			o.cfg.spans.Finish(span, nil)
		} else {
			o.cfg.spans.Finish(span, result.Err)
		}
	}()

	rc, err := resolveContext(ctx, o.contextProvider())
	if err != nil {
		logger.Warn("context resolution failed, using minimal context",
			slog.String("error_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	plan := o.strategies.Plan(rec, o.cfg.preferred)
	if len(plan) == 0 {
		o.cfg.metrics.RecordSkipped(ctx, observability.SkipNoStrategy)
		o.publish(ctx, event.NewFailed(rec.ID, ErrNoStrategy, o.cfg.clock().Sub(start)))
		return Result{
			Strategy:           StrategySystem,
			Message:            "no recovery strategy can handle this error",
			RequiresUserAction: true,
			NextAction:         ActionReset,
			Err:                ErrNoStrategy,
		}
	}
	if len(plan) > o.cfg.maxAttempts {
		plan = plan[:o.cfg.maxAttempts]
	}

	log.Starting(string(rec.Category), string(rec.Severity), strategyNames(plan))
	o.publish(ctx, event.NewStarted(rec.ID, plan[0].Name(), rec.Message))

	preserved := &Manifest{}
	for i, s := range plan {
		step := i + 1
		o.publish(ctx, event.NewProgress(rec.ID, s.Name(), step, i*100/len(plan), "running "+s.Name()))

		res := o.execute(ctx, s, rec, rc, log.Step(s.Name(), step), step)
		attempts++
		preserved.Merge(res.Manifest)

		o.publish(ctx, event.NewProgress(rec.ID, s.Name(), step, step*100/len(plan), res.Message))

		if res.Terminal() {
			o.publish(ctx, event.NewCompleted(rec.ID, res.outcome(), o.cfg.clock().Sub(start)))
			return res
		}
	}

	result = Result{
		Strategy:           StrategySystem,
		Message:            fmt.Sprintf("all %d recovery strategies failed", attempts),
		RequiresUserAction: true,
		NextAction:         ActionReset,
		Err:                ErrExhausted,
	}
	if !preserved.Empty() {
		result.Manifest = preserved
	}
	o.publish(ctx, event.NewCompleted(rec.ID, result.outcome(), o.cfg.clock().Sub(start)))
	return result
}

// execute runs one strategy, converting errors and panics into a failed
// result, and records the attempt.
func (o *Orchestrator) execute(ctx context.Context, s Strategy, rec *apperror.Record, rc *RecoveryContext, log observability.StepLog, step int) Result {
	name := s.Name()
	ctx, span := o.cfg.spans.StartStep(ctx, name, s.Priority(), step)
	log.Starting()

	start := o.cfg.clock()
	res, err := safeExecute(ctx, s, rec, rc)
	elapsed := o.cfg.clock().Sub(start)

	if err != nil {
		log.Failed(err)
		res = Result{
			Strategy:   name,
			Message:    err.Error(),
			NextAction: ActionContinue,
			Err:        &StrategyError{Strategy: name, Err: err},
		}
	}
	if res.Strategy == "" {
		res.Strategy = name
	}

	o.cfg.spans.Annotate(ctx, "strategy.result",
		attribute.Bool("success", res.Success),
		attribute.String("next_action", string(res.Next())),
	)
	o.cfg.spans.Finish(span, err)
	o.cfg.metrics.RecordStrategyExecution(ctx, name, res.Success, elapsed)
	log.Finished(res.Success, string(res.Next()), elapsed)

	o.history.Add(Attempt{
		Timestamp:  start,
		ErrorID:    rec.ID,
		Strategy:   name,
		Success:    res.Success,
		NextAction: res.Next(),
		Duration:   elapsed,
		Message:    res.Message,
	})
	return res
}

func safeExecute(ctx context.Context, s Strategy, rec *apperror.Record, rc *RecoveryContext) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = &PanicError{Source: s.Name(), Value: r, Stack: string(debug.Stack())}
		}
	}()
	return s.Execute(ctx, rec, rc)
}

func (o *Orchestrator) isCritical(rec *apperror.Record) (ok bool) {
	if rec == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			o.cfg.logger.Error("criticality gate panicked", slog.Any("panic", r))
			ok = false
		}
	}()
	return o.cfg.critical(rec)
}

func (o *Orchestrator) skip(ctx context.Context, rec *apperror.Record, reason string, res Result) Result {
	id := ""
	if rec != nil {
		id = rec.ID
	}
	o.cfg.metrics.RecordSkipped(ctx, reason)
	observability.ForRun(o.cfg.logger, id).Skipped(reason)
	return res
}

func (o *Orchestrator) publish(ctx context.Context, evt event.Event) {
	if err := o.bus.Publish(ctx, evt); err != nil {
		o.cfg.logger.Debug("recovery event not published",
			slog.String("event", evt.String()),
			slog.String("error", err.Error()),
		)
	}
}
