package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus is closed")

// Listener receives recovery events on the subscription's own goroutine.
type Listener func(Event)

// BusConfig tunes a LocalBus.
type BusConfig struct {
	// QueueSize is the number of undelivered events each subscription
	// holds. Default: 64.
	QueueSize int

	// MaxSubscribers caps live subscriptions. Zero means no cap.
	MaxSubscribers int

	// DropWhenFull makes Publish skip a subscription whose queue is full
	// instead of waiting for room.
	DropWhenFull bool

	// OnDrop observes events skipped under DropWhenFull.
	OnDrop func(evt Event, sub *Subscription)

	// OnPanic observes listener panics. The subscription stays active.
	OnPanic func(evt Event, sub *Subscription, recovered any)
}

// DefaultBusConfig is used for zero fields.
var DefaultBusConfig = BusConfig{QueueSize: 64}

// LocalBus fans recovery events out to in-process listeners. Each
// subscription sees events in publish order.
type LocalBus struct {
	cfg BusConfig

	// subs is replaced wholesale on every change so Publish never locks.
	subs   atomic.Pointer[[]*Subscription]
	mu     sync.Mutex
	seq    int
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewBus returns a running bus.
func NewBus(cfg BusConfig) *LocalBus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultBusConfig.QueueSize
	}
	b := &LocalBus{cfg: cfg, closed: make(chan struct{})}
	b.subs.Store(&[]*Subscription{})
	return b
}

func (b *LocalBus) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// Subscribe attaches l. With kinds given, only those kinds are delivered.
// It returns nil once the bus is closed or MaxSubscribers is reached.
func (b *LocalBus) Subscribe(l Listener, kinds ...Kind) *Subscription {
	if l == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.subs.Load()
	if b.isClosed() || (b.cfg.MaxSubscribers > 0 && len(current) >= b.cfg.MaxSubscribers) {
		return nil
	}

	b.seq++
	s := &Subscription{
		id:       fmt.Sprintf("sub-%d", b.seq),
		bus:      b,
		listener: l,
		kinds:    slices.Clone(kinds),
		queue:    make(chan Event, b.cfg.QueueSize),
		stopped:  make(chan struct{}),
	}
	next := append(slices.Clone(current), s)
	b.subs.Store(&next)

	b.wg.Add(1)
	go s.run()
	return s
}

// Publish queues evt for every matching subscription. Without
// DropWhenFull it waits for queue room, ctx or Close.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.isClosed() {
		return ErrBusClosed
	}

	for _, s := range *b.subs.Load() {
		if !s.wants(evt) {
			continue
		}
		if b.cfg.DropWhenFull {
			select {
			case s.queue <- evt:
			default:
				s.dropped.Add(1)
				if b.cfg.OnDrop != nil {
					b.cfg.OnDrop(evt, s)
				}
			}
			continue
		}
		select {
		case s.queue <- evt:
		case <-s.stopped:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return ErrBusClosed
		}
	}
	return nil
}

// Len returns the number of live subscriptions.
func (b *LocalBus) Len() int {
	return len(*b.subs.Load())
}

func (b *LocalBus) detach(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.subs.Load()
	i := slices.Index(current, s)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(current), i, i+1)
	b.subs.Store(&next)
}

// Close stops every subscription and waits until queued events have
// been handed to their listeners. Later calls do nothing.
func (b *LocalBus) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		close(b.closed)
		current := *b.subs.Load()
		b.subs.Store(&[]*Subscription{})
		b.mu.Unlock()

		for _, s := range current {
			s.stop()
		}
		b.wg.Wait()
	})
	return nil
}

// Subscription is one listener attached to a LocalBus.
type Subscription struct {
	id       string
	bus      *LocalBus
	listener Listener
	kinds    []Kind

	queue    chan Event
	stopped  chan struct{}
	stopOnce sync.Once

	paused  atomic.Bool
	dropped atomic.Uint64
}

// ID names the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Dropped counts events skipped because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Pause discards events until Resume, including ones already queued.
func (s *Subscription) Pause() { s.paused.Store(true) }

// Resume restarts delivery after Pause.
func (s *Subscription) Resume() { s.paused.Store(false) }

// Paused reports whether the subscription is discarding events.
func (s *Subscription) Paused() bool { return s.paused.Load() }

// Unsubscribe detaches the listener. Events already queued are still
// delivered. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.detach(s)
	s.stop()
}

func (s *Subscription) wants(evt Event) bool {
	if s.paused.Load() {
		return false
	}
	return len(s.kinds) == 0 || slices.Contains(s.kinds, evt.Kind)
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Subscription) run() {
	defer s.bus.wg.Done()
	for {
		select {
		case evt := <-s.queue:
			s.handle(evt)
		case <-s.stopped:
			s.flush()
			return
		}
	}
}

// flush delivers whatever was queued before stop.
func (s *Subscription) flush() {
	for {
		select {
		case evt := <-s.queue:
			s.handle(evt)
		default:
			return
		}
	}
}

func (s *Subscription) handle(evt Event) {
	if s.paused.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil && s.bus.cfg.OnPanic != nil {
			s.bus.cfg.OnPanic(evt, s, r)
		}
	}()
	s.listener(evt)
}
