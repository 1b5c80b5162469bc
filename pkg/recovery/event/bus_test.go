package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collector) listen(evt event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *collector) kinds() []event.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Kind, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind
	}
	return out
}

func TestBus_DeliversInOrder(t *testing.T) {
	bus := event.NewBus(event.BusConfig{QueueSize: 10})
	var c collector
	require.NotNil(t, bus.Subscribe(c.listen))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event.NewStarted("e1", "auto-save", "")))
	require.NoError(t, bus.Publish(ctx, event.NewProgress("e1", "auto-save", 1, 10, "running")))
	require.NoError(t, bus.Publish(ctx, event.NewCompleted("e1", event.Outcome{Success: true}, time.Millisecond)))

	require.NoError(t, bus.Close())

	assert.Equal(t, []event.Kind{event.KindStarted, event.KindProgress, event.KindCompleted}, c.kinds())
}

func TestBus_FanOut(t *testing.T) {
	bus := event.NewBus(event.BusConfig{QueueSize: 10})

	var received1, received2, received3 atomic.Int32
	bus.Subscribe(func(event.Event) { received1.Add(1) })
	bus.Subscribe(func(event.Event) { received2.Add(1) })
	bus.Subscribe(func(event.Event) { received3.Add(1) })

	require.NoError(t, bus.Publish(context.Background(), event.NewStarted("e1", "s", "")))
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(1), received1.Load())
	assert.Equal(t, int32(1), received2.Load())
	assert.Equal(t, int32(1), received3.Load())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := event.NewBus(event.BusConfig{QueueSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.Subscribe(func(event.Event) { received.Add(1) })
	require.Equal(t, 1, bus.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, bus.Len())

	require.NoError(t, bus.Publish(context.Background(), event.NewStarted("e1", "s", "")))
	assert.Equal(t, int32(0), received.Load())
}

func TestBus_PauseResume(t *testing.T) {
	bus := event.NewBus(event.BusConfig{QueueSize: 10})

	var received atomic.Int32
	sub := bus.Subscribe(func(event.Event) { received.Add(1) })

	sub.Pause()
	assert.True(t, sub.Paused())
	require.NoError(t, bus.Publish(context.Background(), event.NewStarted("e1", "s", "")))

	sub.Resume()
	assert.False(t, sub.Paused())
	require.NoError(t, bus.Publish(context.Background(), event.NewStarted("e2", "s", "")))

	require.NoError(t, bus.Close())
	assert.Equal(t, int32(1), received.Load())
}

func TestBus_NonBlockingDrops(t *testing.T) {
	var dropped atomic.Int32
	release := make(chan struct{})

	bus := event.NewBus(event.BusConfig{
		QueueSize:  1,
		DropWhenFull: true,
		OnDrop: func(event.Event, *event.Subscription) {
			dropped.Add(1)
		},
	})

	sub := bus.Subscribe(func(event.Event) { <-release })

	for range 10 {
		require.NoError(t, bus.Publish(context.Background(), event.NewStarted("e", "s", "")))
	}

	close(release)
	require.NoError(t, bus.Close())

	// At most one event in flight plus one queued.
	assert.GreaterOrEqual(t, dropped.Load(), int32(8))
	assert.Equal(t, uint64(dropped.Load()), sub.Dropped())
}

func TestBus_ListenerPanicIsContained(t *testing.T) {
	var panics atomic.Int32
	bus := event.NewBus(event.BusConfig{
		QueueSize: 10,
		OnPanic: func(event.Event, *event.Subscription, any) {
			panics.Add(1)
		},
	})

	var received atomic.Int32
	bus.Subscribe(func(event.Event) {
		if received.Add(1) == 1 {
			panic("listener bug")
		}
	})

	require.NoError(t, bus.Publish(context.Background(), event.NewStarted("e1", "s", "")))
	require.NoError(t, bus.Publish(context.Background(), event.NewStarted("e2", "s", "")))
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(2), received.Load())
	assert.Equal(t, int32(1), panics.Load())
}

func TestBus_Close(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	bus.Subscribe(func(event.Event) {})

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "second close is a no-op")

	err := bus.Publish(context.Background(), event.NewStarted("e1", "s", ""))
	assert.True(t, errors.Is(err, event.ErrBusClosed))
	assert.Nil(t, bus.Subscribe(func(event.Event) {}))
}

func TestBus_MaxSubscribers(t *testing.T) {
	bus := event.NewBus(event.BusConfig{MaxSubscribers: 1})
	defer bus.Close()

	assert.NotNil(t, bus.Subscribe(func(event.Event) {}))
	assert.Nil(t, bus.Subscribe(func(event.Event) {}))
}

func TestBus_BlockingRespectsContext(t *testing.T) {
	release := make(chan struct{})
	bus := event.NewBus(event.BusConfig{QueueSize: 1})

	bus.Subscribe(func(event.Event) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var err error
	for range 5 {
		if err = bus.Publish(ctx, event.NewStarted("e", "s", "")); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, bus.Close())
}

func TestBus_KindFilter(t *testing.T) {
	bus := event.NewBus(event.BusConfig{QueueSize: 10})
	var c collector
	sub := bus.Subscribe(c.listen, event.KindFailed)
	require.NotNil(t, sub)
	assert.Equal(t, "sub-1", sub.ID())

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event.NewStarted("e1", "s", "")))
	require.NoError(t, bus.Publish(ctx, event.NewFailed("e1", errors.New("gave up"), time.Millisecond)))
	require.NoError(t, bus.Close())

	assert.Equal(t, []event.Kind{event.KindFailed}, c.kinds())
}

func TestBus_UnsubscribeDeliversQueued(t *testing.T) {
	release := make(chan struct{})
	bus := event.NewBus(event.BusConfig{QueueSize: 10})

	var received atomic.Int32
	sub := bus.Subscribe(func(event.Event) {
		<-release
		received.Add(1)
	})

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event.NewStarted("e1", "s", "")))
	require.NoError(t, bus.Publish(ctx, event.NewStarted("e2", "s", "")))
	sub.Unsubscribe()
	assert.Equal(t, 0, bus.Len())

	close(release)
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(2), received.Load())
}
