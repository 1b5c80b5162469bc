package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/event"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/observability"
)

func TestHandleError_NonCriticalShortCircuits(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t)
	o.RegisterStrategy(makeStrategy("save", 1, tr, Result{Success: true}))

	res := o.HandleError(context.Background(),
		apperror.New("tooltip misaligned", apperror.CategoryUnknown, apperror.SeverityLow))

	assert.False(t, res.Success)
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Equal(t, ActionContinue, res.Next())
	assert.ErrorIs(t, res.Err, ErrNotCritical)
	assert.Empty(t, tr.Calls())
	assert.Empty(t, o.History())
}

func TestHandleError_Totality(t *testing.T) {
	o := newTestOrchestrator(t)
	c := &collector{}
	o.Subscribe(c.listen)

	res := o.HandleError(nil, nil) //nolint:staticcheck // nil context must be tolerated
	assert.Equal(t, StrategyNone, res.Strategy)

	res = o.HandleError(context.Background(), critical("boom"))
	assert.False(t, res.Success)
	assert.Equal(t, StrategySystem, res.Strategy)
	assert.Equal(t, ActionReset, res.Next())
	assert.True(t, res.RequiresUserAction)
	assert.ErrorIs(t, res.Err, ErrNoStrategy)

	require.NoError(t, o.Close())
	assert.Equal(t, []event.Kind{event.KindFailed}, c.Kinds())
}

// unstable panics from Name or Priority.
type unstable struct {
	*FuncStrategy
	badName, badPriority bool
}

func (u unstable) Name() string {
	if u.badName {
		panic("name")
	}
	return u.FuncStrategy.Name()
}

func (u unstable) Priority() int {
	if u.badPriority {
		panic("prio")
	}
	return u.FuncStrategy.Priority()
}

func TestHandleError_PanickingDescriptors(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t)
	o.RegisterStrategy(unstable{FuncStrategy: makeContinuing("bad-prio", 1, tr), badPriority: true})
	o.RegisterStrategy(unstable{FuncStrategy: makeContinuing("bad-name", 2, tr), badName: true})
	assert.Zero(t, o.Strategies().Len())

	var res Result
	require.NotPanics(t, func() { res = o.HandleError(context.Background(), critical("boom")) })
	assert.Equal(t, StrategySystem, res.Strategy)
	assert.ErrorIs(t, res.Err, ErrNoStrategy)

	o.RegisterStrategy(makeStrategy("ok", 3, tr, Result{Success: true}))
	require.NotPanics(t, func() { res = o.HandleError(context.Background(), critical("boom")) })
	assert.True(t, res.Success)
	assert.Equal(t, []string{"ok"}, tr.Calls())
}

func TestHandleError_EscalationOrder(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t)
	o.RegisterStrategy(makeContinuing("third", 3, tr))
	o.RegisterStrategy(makeContinuing("first", 1, tr))
	o.RegisterStrategy(makeContinuing("second", 2, tr))

	res := o.HandleError(context.Background(), critical("boom"))

	assert.Equal(t, []string{"first", "second", "third"}, tr.Calls())
	assert.False(t, res.Success)
	assert.Equal(t, ActionReset, res.NextAction)
	assert.True(t, res.RequiresUserAction)
	assert.ErrorIs(t, res.Err, ErrExhausted)

	history := o.History()
	require.Len(t, history, 3)
	for i, name := range []string{"first", "second", "third"} {
		assert.Equal(t, name, history[i].Strategy)
		assert.False(t, history[i].Success)
		assert.Equal(t, ActionContinue, history[i].NextAction)
	}
}

func TestHandleError_TiesBrokenByName(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t)
	o.RegisterStrategy(makeContinuing("b", 1, tr))
	o.RegisterStrategy(makeContinuing("a", 1, tr))

	o.HandleError(context.Background(), critical("boom"))
	assert.Equal(t, []string{"a", "b"}, tr.Calls())
}

func TestHandleError_EarlyExit(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{"success", Result{Success: true, Message: "fixed"}},
		{"reload", Result{Message: "reloading", NextAction: ActionReload}},
		{"reset", Result{Message: "resetting", NextAction: ActionReset, RequiresUserAction: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &tracker{}
			o := newTestOrchestrator(t)
			o.RegisterStrategy(makeContinuing("first", 1, tr))
			o.RegisterStrategy(makeStrategy("stopper", 2, tr, tt.result))
			o.RegisterStrategy(makeContinuing("never", 3, tr))

			res := o.HandleError(context.Background(), critical("boom"))

			assert.Equal(t, []string{"first", "stopper"}, tr.Calls())
			assert.Equal(t, "stopper", res.Strategy, "strategy name filled in by orchestrator")
			assert.Equal(t, tt.result.Success, res.Success)
			assert.Equal(t, tt.result.Message, res.Message)
			assert.Len(t, o.History(), 2)
		})
	}
}

func TestHandleError_FailureIsolation(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t)
	o.RegisterStrategy(makeErroring("erroring", 1, tr, errors.New("disk full")))
	o.RegisterStrategy(makePanicking("panicking", 2, tr, "nil map write"))
	o.RegisterStrategy(makeStrategy("healthy", 3, tr, Result{Success: true}))

	res := o.HandleError(context.Background(), critical("boom"))

	assert.True(t, res.Success)
	assert.Equal(t, "healthy", res.Strategy)
	assert.Equal(t, []string{"erroring", "panicking", "healthy"}, tr.Calls())

	history := o.History()
	require.Len(t, history, 3)
	assert.False(t, history[0].Success)
	assert.Contains(t, history[0].Message, "disk full")
	assert.False(t, history[1].Success)
	assert.Contains(t, history[1].Message, "panicked")
	assert.True(t, history[2].Success)
}

func TestHandleError_StrategyErrorDetails(t *testing.T) {
	tr := &tracker{}
	sentinel := errors.New("quota exceeded")
	o := newTestOrchestrator(t)
	o.RegisterStrategy(&FuncStrategy{
		StrategyName:     "panics",
		StrategyPriority: 1,
		Run: func(context.Context, *apperror.Record, *RecoveryContext) (Result, error) {
			panic("kaboom")
		},
	})
	o.RegisterStrategy(&FuncStrategy{
		StrategyName:     "errors",
		StrategyPriority: 2,
		Run: func(context.Context, *apperror.Record, *RecoveryContext) (Result, error) {
			// a result returned alongside an error is discarded
			return Result{Success: true, NextAction: ActionReload}, sentinel
		},
	})
	o.RegisterStrategy(makeStrategy("last", 3, tr, Result{Success: true}))

	res := o.HandleError(context.Background(), critical("boom"))
	assert.Equal(t, "last", res.Strategy)
	assert.Equal(t, []string{"last"}, tr.Calls())
}

func TestHandleError_MutualExclusion(t *testing.T) {
	var executions atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	o := newTestOrchestrator(t)
	o.RegisterStrategy(&FuncStrategy{
		StrategyName:     "slow",
		StrategyPriority: 1,
		Run: func(context.Context, *apperror.Record, *RecoveryContext) (Result, error) {
			if executions.Add(1) == 1 {
				close(entered)
			}
			<-release
			return Result{Success: true}, nil
		},
	})

	done := make(chan Result, 1)
	go func() { done <- o.HandleError(context.Background(), critical("first")) }()
	<-entered
	assert.True(t, o.InProgress())

	var wg sync.WaitGroup
	results := make([]Result, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.HandleError(context.Background(), critical(fmt.Sprintf("concurrent %d", i)))
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, StrategyNone, r.Strategy)
		assert.Equal(t, "already in progress", r.Message)
		assert.ErrorIs(t, r.Err, ErrInProgress)
	}

	close(release)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, int32(1), executions.Load())
	assert.False(t, o.InProgress())
}

func TestHandleError_Cooldown(t *testing.T) {
	tr := &tracker{}
	clock := newFakeClock()
	o := newTestOrchestrator(t, WithCooldown(5*time.Second), WithClock(clock.Now))
	o.RegisterStrategy(makeContinuing("only", 1, tr))

	first := o.HandleError(context.Background(), critical("storm 1"))
	assert.Equal(t, StrategySystem, first.Strategy)

	clock.Advance(2 * time.Second)
	second := o.HandleError(context.Background(), critical("storm 2"))
	assert.Equal(t, StrategyNone, second.Strategy)
	assert.ErrorIs(t, second.Err, ErrCooldown)
	assert.Contains(t, second.Message, "3s")

	// throttled calls do not extend the window
	clock.Advance(3 * time.Second)
	third := o.HandleError(context.Background(), critical("storm 3"))
	assert.ErrorIs(t, third.Err, ErrExhausted)

	assert.Equal(t, []string{"only", "only"}, tr.Calls())
}

func TestHandleError_MaxAttempts(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t, WithMaxAttempts(2))
	for i := 1; i <= 4; i++ {
		o.RegisterStrategy(makeContinuing(fmt.Sprintf("s%d", i), i, tr))
	}

	res := o.HandleError(context.Background(), critical("boom"))

	assert.Equal(t, []string{"s1", "s2"}, tr.Calls())
	assert.ErrorIs(t, res.Err, ErrExhausted)
	assert.Contains(t, res.Message, "2")
}

func TestHandleError_PreferredOrder(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t, WithPreferredOrder("c", "missing", "a", "c", "picky"))
	o.RegisterStrategy(makeContinuing("a", 1, tr))
	o.RegisterStrategy(makeContinuing("b", 2, tr))
	o.RegisterStrategy(makeContinuing("c", 3, tr))
	picky := makeContinuing("picky", 0, tr)
	picky.Match = func(*apperror.Record) bool { return false }
	o.RegisterStrategy(picky)

	o.HandleError(context.Background(), critical("boom"))

	assert.Equal(t, []string{"c", "a", "b"}, tr.Calls())
}

func TestHandleError_RegisterOverwrites(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t)
	o.RegisterStrategy(makeContinuing("same", 1, tr))
	o.RegisterStrategy(makeStrategy("same", 1, tr, Result{Success: true}))
	o.RegisterStrategy(nil)

	assert.Equal(t, 1, o.Strategies().Len())
	res := o.HandleError(context.Background(), critical("boom"))
	assert.True(t, res.Success)
}

func TestHandleError_ContextResolution(t *testing.T) {
	design := &document.Design{ProjectID: "p1", Name: "Checkout"}

	tests := []struct {
		name        string
		provider    ContextProvider
		wantProject string
	}{
		{
			name:     "no provider",
			provider: nil,
		},
		{
			name: "provider error",
			provider: func(context.Context) (*RecoveryContext, error) {
				return nil, errors.New("editor unavailable")
			},
		},
		{
			name: "provider panic",
			provider: func(context.Context) (*RecoveryContext, error) {
				panic("editor crashed")
			},
		},
		{
			name: "provider nil context",
			provider: func(context.Context) (*RecoveryContext, error) {
				return nil, nil
			},
		},
		{
			name: "provider data",
			provider: func(context.Context) (*RecoveryContext, error) {
				return &RecoveryContext{ProjectID: "p1", Design: design}, nil
			},
			wantProject: "p1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *RecoveryContext
			o := newTestOrchestrator(t)
			o.SetContextProvider(tt.provider)
			o.RegisterStrategy(&FuncStrategy{
				StrategyName: "inspect",
				Run: func(_ context.Context, _ *apperror.Record, rc *RecoveryContext) (Result, error) {
					got = rc
					return Result{Success: true}, nil
				},
			})

			res := o.HandleError(context.Background(), critical("boom"))

			assert.True(t, res.Success)
			require.NotNil(t, got)
			assert.NotEmpty(t, got.SessionID)
			assert.Equal(t, tt.wantProject, got.ProjectID)
		})
	}
}

func TestHandleError_ContextIsFreshPerAttempt(t *testing.T) {
	var sessions []string
	o := newTestOrchestrator(t)
	o.RegisterStrategy(&FuncStrategy{
		StrategyName: "inspect",
		Run: func(_ context.Context, _ *apperror.Record, rc *RecoveryContext) (Result, error) {
			sessions = append(sessions, rc.SessionID)
			return Result{Success: true}, nil
		},
	})

	o.HandleError(context.Background(), critical("one"))
	o.HandleError(context.Background(), critical("two"))

	require.Len(t, sessions, 2)
	assert.NotEqual(t, sessions[0], sessions[1])
}

func TestHandleError_Events(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t)
	c := &collector{}
	o.Subscribe(c.listen)
	o.RegisterStrategy(makeContinuing("first", 1, tr))
	o.RegisterStrategy(makeStrategy("second", 2, tr, Result{Success: true, Message: "recovered"}))

	rec := critical("boom")
	o.HandleError(context.Background(), rec)
	require.NoError(t, o.Close())

	assert.Equal(t, []event.Kind{
		event.KindStarted,
		event.KindProgress, event.KindProgress,
		event.KindProgress, event.KindProgress,
		event.KindCompleted,
	}, c.Kinds())

	events := c.Events()
	assert.Equal(t, "first", events[0].Started.Strategy)
	assert.Equal(t, rec.ID, events[0].Meta.CorrelationID)

	var percents []int
	for _, e := range events[1:5] {
		percents = append(percents, e.Progress.Percent)
	}
	assert.Equal(t, []int{0, 50, 50, 100}, percents)

	done := events[5].Completed
	assert.True(t, done.Outcome.Success)
	assert.Equal(t, "second", done.Outcome.Strategy)
	assert.Equal(t, "continue", done.Outcome.NextAction)
}

func TestHandleError_ListenerDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	o := newTestOrchestrator(t, WithBusConfig(event.BusConfig{QueueSize: 1, DropWhenFull: true}))
	o.Subscribe(func(event.Event) { <-release })
	o.RegisterStrategy(makeStrategy("ok", 1, &tracker{}, Result{Success: true}))

	res := o.HandleError(context.Background(), critical("boom"))
	assert.True(t, res.Success)

	close(release)
}

func TestHandleError_Unsubscribe(t *testing.T) {
	o := newTestOrchestrator(t)
	c := &collector{}
	unsubscribe := o.Subscribe(c.listen)
	unsubscribe()
	unsubscribe()

	o.HandleError(context.Background(), critical("boom"))
	require.NoError(t, o.Close())
	assert.Empty(t, c.Kinds())
}

func TestHandleError_SubscribeKinds(t *testing.T) {
	o := newTestOrchestrator(t)
	c := &collector{}
	o.Subscribe(c.listen, event.KindCompleted, event.KindFailed)
	o.RegisterStrategy(makeStrategy("ok", 1, &tracker{}, Result{Success: true}))

	o.HandleError(context.Background(), critical("boom"))
	require.NoError(t, o.Close())
	assert.Equal(t, []event.Kind{event.KindCompleted}, c.Kinds())
}

func TestHandleError_HistoryBound(t *testing.T) {
	const capacity = 3
	o := newTestOrchestrator(t, WithHistorySize(capacity))
	o.RegisterStrategy(makeContinuing("only", 1, &tracker{}))

	var ids []string
	for i := 0; i < capacity+5; i++ {
		rec := critical(fmt.Sprintf("fault %d", i))
		ids = append(ids, rec.ID)
		o.HandleError(context.Background(), rec)
	}

	history := o.History()
	require.Len(t, history, capacity)
	for i, a := range history {
		assert.Equal(t, ids[len(ids)-capacity+i], a.ErrorID, "most recent last")
	}

	// callers get a copy
	history[0].Strategy = "mutated"
	assert.Equal(t, "only", o.History()[0].Strategy)
}

func TestHandleError_ExhaustionKeepsManifest(t *testing.T) {
	o := newTestOrchestrator(t)
	o.RegisterStrategy(makeStrategy("partial", 1, &tracker{}, Result{
		Message:  "partial save",
		Manifest: &Manifest{Saved: []string{"design"}, Failed: []Failure{{Artifact: "audio", Reason: "busy"}}},
	}))

	res := o.HandleError(context.Background(), critical("boom"))

	assert.ErrorIs(t, res.Err, ErrExhausted)
	require.NotNil(t, res.Manifest)
	assert.True(t, res.Manifest.Has("design"))
	assert.True(t, res.Manifest.FailedOn("audio"))
}

func TestHandleError_CustomCriticality(t *testing.T) {
	tr := &tracker{}
	o := newTestOrchestrator(t, WithCriticality(apperror.CriticalIn(apperror.CategoryPersistence)))
	o.RegisterStrategy(makeStrategy("ok", 1, tr, Result{Success: true}))

	res := o.HandleError(context.Background(),
		apperror.New("corrupt backup", apperror.CategoryPersistence, apperror.SeverityLow))
	assert.True(t, res.Success)

	res = o.HandleError(context.Background(),
		apperror.New("slow render", apperror.CategoryRendering, apperror.SeverityMedium))
	assert.ErrorIs(t, res.Err, ErrNotCritical)

	panicky := newTestOrchestrator(t, WithCriticality(func(*apperror.Record) bool { panic("bad gate") }))
	res = panicky.HandleError(context.Background(), critical("boom"))
	assert.ErrorIs(t, res.Err, ErrNotCritical)
}

func TestHandleError_Metrics(t *testing.T) {
	prom := observability.NewPrometheusRecorder(prometheus.NewRegistry())
	clock := newFakeClock()
	o := newTestOrchestrator(t,
		WithMetrics(prom),
		WithCooldown(time.Minute),
		WithClock(clock.Now),
	)
	o.RegisterStrategy(makeContinuing("first", 1, &tracker{}))
	o.RegisterStrategy(makeStrategy("second", 2, &tracker{}, Result{Success: true}))

	o.HandleError(context.Background(), apperror.New("x", apperror.CategoryNetwork, apperror.SeverityLow))
	o.HandleError(context.Background(), critical("boom"))
	o.HandleError(context.Background(), critical("again"))

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.Skipped.WithLabelValues("not_critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.Skipped.WithLabelValues("cooldown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.StrategyExecutions.WithLabelValues("first", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.StrategyExecutions.WithLabelValues("second", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.Handled.WithLabelValues("second", "true")))
}
