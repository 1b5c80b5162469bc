package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Report counts the outcome of one Process call.
type Report struct {
	Processed int
	Failed    int
}

// Dispatcher queues signals and runs their handlers.
type Dispatcher struct {
	handlers *Registry
	store    Store
	logger   *slog.Logger
}

func NewDispatcher(handlers *Registry, store Store) *Dispatcher {
	return &Dispatcher{handlers: handlers, store: store, logger: slog.Default()}
}

// WithLogger replaces the logger. Nil is ignored.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.handlers
}

// Send queues signal for its target.
func (d *Dispatcher) Send(ctx context.Context, signal *Signal) error {
	if signal.TargetID == "" {
		return errors.New("target ID is required")
	}
	if signal.Name == "" {
		return errors.New("signal name is required")
	}
	if err := d.store.Enqueue(ctx, signal); err != nil {
		return fmt.Errorf("enqueue signal: %w", err)
	}
	d.logger.Debug("signal queued", attrs(signal)...)
	return nil
}

// Process delivers every pending signal for targetID. A failing signal
// is marked and counted; only store and context errors are returned.
func (d *Dispatcher) Process(ctx context.Context, targetID string) (Report, error) {
	pending, err := d.store.Dequeue(ctx, targetID)
	if err != nil {
		return Report{}, fmt.Errorf("dequeue signals: %w", err)
	}

	var report Report
	for _, sig := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := d.deliver(ctx, sig)
		d.record(ctx, sig, err)
		if err != nil {
			report.Failed++
			d.logger.Error("signal delivery failed", append(attrs(sig), "error", err)...)
			continue
		}
		report.Processed++
	}
	return report, nil
}

// deliver runs every handler for sig and joins their errors.
func (d *Dispatcher) deliver(ctx context.Context, sig *Signal) error {
	handlers := d.handlers.Handlers(sig.Name)
	if len(handlers) == 0 {
		return ErrNoHandler
	}
	errs := make([]error, 0, len(handlers))
	for _, h := range handlers {
		errs = append(errs, call(ctx, h, sig))
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) record(ctx context.Context, sig *Signal, err error) {
	var markErr error
	if err != nil {
		markErr = d.store.MarkFailed(ctx, sig.ID, err)
	} else {
		markErr = d.store.MarkProcessed(ctx, sig.ID)
	}
	if markErr != nil {
		d.logger.Error("signal status not saved", append(attrs(sig), "error", markErr)...)
	}
}

func call(ctx context.Context, h Handler, sig *Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, sig.TargetID, sig.Clone())
}

func attrs(sig *Signal) []any {
	return []any{
		slog.String("signal_id", sig.ID),
		slog.String("signal_name", sig.Name),
		slog.String("target_id", sig.TargetID),
	}
}
