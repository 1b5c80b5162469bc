package signal_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/signal"
)

func TestNewRemount(t *testing.T) {
	sig := signal.NewRemount("Canvas", "err-1", "render failure").WithSender("component-reset")

	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, signal.NameRemount, sig.Name)
	assert.Equal(t, signal.TargetUI, sig.TargetID)
	assert.Equal(t, "Canvas", sig.Payload["component"])
	assert.Equal(t, "component-reset", sig.SenderID)
	assert.Equal(t, signal.StatusPending, sig.Status)
}

func TestSignal_Clone(t *testing.T) {
	sig := signal.NewSignal("test", "ui", map[string]any{"key": "value"})
	clone := sig.Clone()

	clone.Payload["key"] = "modified"
	assert.Equal(t, "value", sig.Payload["key"])
}

func TestRegistry_Validation(t *testing.T) {
	registry := signal.NewRegistry()

	_, err := registry.Register("", func(context.Context, string, *signal.Signal) error { return nil })
	assert.ErrorContains(t, err, "name is required")

	_, err = registry.Register("remount", nil)
	assert.ErrorContains(t, err, "handler is required")

	assert.Panics(t, func() { registry.MustRegister("", nil) })
}

func TestRegistry_MultipleHandlers(t *testing.T) {
	registry := signal.NewRegistry()
	noop := func(context.Context, string, *signal.Signal) error { return nil }

	unregister1 := registry.MustRegister(signal.NameRemount, noop)
	registry.MustRegister(signal.NameRemount, noop)
	assert.Len(t, registry.Handlers(signal.NameRemount), 2)
	assert.Equal(t, []string{signal.NameRemount}, registry.Names())

	unregister1()
	unregister1()
	assert.Len(t, registry.Handlers(signal.NameRemount), 1)
}

func TestDispatcher_SendAndProcess(t *testing.T) {
	ctx := context.Background()
	registry := signal.NewRegistry()
	sigStore := signal.NewMemoryStore()
	d := signal.NewDispatcher(registry, sigStore)

	var order []string
	registry.MustRegister(signal.NameRemount, func(_ context.Context, target string, sig *signal.Signal) error {
		order = append(order, "toolbar:"+target)
		return nil
	})
	registry.MustRegister(signal.NameRemount, func(_ context.Context, _ string, sig *signal.Signal) error {
		order = append(order, "canvas:"+sig.Payload["component"].(string))
		return nil
	})

	sig := signal.NewRemount("Canvas", "err-1", "")
	require.NoError(t, d.Send(ctx, sig))

	report, err := d.Process(ctx, signal.TargetUI)
	require.NoError(t, err)
	assert.Equal(t, signal.Report{Processed: 1}, report)
	assert.Equal(t, []string{"toolbar:ui", "canvas:Canvas"}, order)

	stored, err := sigStore.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, signal.StatusProcessed, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	// Processed signals are not delivered again.
	report, err = d.Process(ctx, signal.TargetUI)
	require.NoError(t, err)
	assert.Equal(t, signal.Report{}, report)
}

func TestDispatcher_HandlerFailureIsolated(t *testing.T) {
	ctx := context.Background()
	registry := signal.NewRegistry()
	sigStore := signal.NewMemoryStore()
	d := signal.NewDispatcher(registry, sigStore)

	ran := 0
	registry.MustRegister(signal.NameRemount, func(context.Context, string, *signal.Signal) error {
		return errors.New("stale ref")
	})
	registry.MustRegister(signal.NameRemount, func(context.Context, string, *signal.Signal) error {
		panic("boom")
	})
	registry.MustRegister(signal.NameRemount, func(context.Context, string, *signal.Signal) error {
		ran++
		return nil
	})

	sig := signal.NewRemount("Canvas", "err-1", "")
	require.NoError(t, d.Send(ctx, sig))

	report, err := d.Process(ctx, signal.TargetUI)
	require.NoError(t, err)
	assert.Equal(t, signal.Report{Failed: 1}, report)
	assert.Equal(t, 1, ran)

	stored, err := sigStore.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, signal.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "stale ref")
	assert.Contains(t, stored.Error, "handler panic")
}

func TestDispatcher_NoHandler(t *testing.T) {
	ctx := context.Background()
	sigStore := signal.NewMemoryStore()
	d := signal.NewDispatcher(signal.NewRegistry(), sigStore)

	sig := signal.NewRemount("Canvas", "err-1", "")
	require.NoError(t, d.Send(ctx, sig))

	report, err := d.Process(ctx, signal.TargetUI)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	stored, err := sigStore.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, signal.ErrNoHandler.Error(), stored.Error)
}

func TestDispatcher_SendValidation(t *testing.T) {
	d := signal.NewDispatcher(signal.NewRegistry(), signal.NewMemoryStore())
	assert.Error(t, d.Send(context.Background(), &signal.Signal{Name: "remount"}))
	assert.Error(t, d.Send(context.Background(), &signal.Signal{TargetID: "ui"}))
}

func TestMemoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := signal.NewMemoryStore()

	done := signal.NewRemount("A", "e1", "")
	pending := signal.NewRemount("B", "e2", "")
	require.NoError(t, s.Enqueue(ctx, done))
	require.NoError(t, s.Enqueue(ctx, pending))
	require.NoError(t, s.MarkProcessed(ctx, done.ID))

	n, err := s.Prune(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, done.ID)
	assert.ErrorIs(t, err, signal.ErrSignalNotFound)

	left, err := s.Dequeue(ctx, signal.TargetUI)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, pending.ID, left[0].ID)

	assert.ErrorIs(t, s.MarkProcessed(ctx, "missing"), signal.ErrSignalNotFound)
}

func TestSignal_RemountPayload(t *testing.T) {
	r, ok := signal.NewRemount("Canvas", "err-1", "render failure").Remount()
	require.True(t, ok)
	assert.Equal(t, signal.Remount{Component: "Canvas", ErrorID: "err-1", Reason: "render failure"}, r)

	_, ok = signal.NewSignal("toast", signal.TargetUI, nil).Remount()
	assert.False(t, ok)
}

func TestNewSignal_IDsAreUnique(t *testing.T) {
	a := signal.NewSignal("x", "ui", nil)
	b := signal.NewSignal("x", "ui", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, strings.HasPrefix(a.ID, "sig-"))
}
