package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentation scope for meters and tracers.
const scope = "recovery"

// Skip reasons passed to RecordSkipped.
const (
	SkipNotCritical = "not_critical"
	SkipInProgress  = "in_progress"
	SkipCooldown    = "cooldown"
	SkipNoStrategy  = "no_strategy"
)

// MetricsRecorder receives recovery measurements. NewMetricsRecorder
// reports through OpenTelemetry, NewPrometheusRecorder through a
// Prometheus registry, and NoopMetrics drops everything.
type MetricsRecorder interface {
	// RecordRecovery counts a run that reached at least one strategy.
	RecordRecovery(ctx context.Context, strategy string, success bool, duration time.Duration)

	// RecordSkipped counts a request turned away before any strategy ran.
	RecordSkipped(ctx context.Context, reason string)

	RecordStrategyExecution(ctx context.Context, strategy string, success bool, duration time.Duration)
}

// Option selects the OpenTelemetry providers used by NewMetricsRecorder
// and NewSpanManager. The global providers are the default.
type Option func(*providers)

type providers struct {
	meters  metric.MeterProvider
	tracers trace.TracerProvider
}

func resolve(opts []Option) providers {
	p := providers{}
	for _, opt := range opts {
		opt(&p)
	}
	if p.meters == nil {
		p.meters = otel.GetMeterProvider()
	}
	if p.tracers == nil {
		p.tracers = otel.GetTracerProvider()
	}
	return p
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *providers) { p.meters = mp }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *providers) { p.tracers = tp }
}

type otelMetrics struct {
	runs     metric.Int64Counter
	skips    metric.Int64Counter
	runTime  metric.Float64Histogram
	steps    metric.Int64Counter
	stepTime metric.Float64Histogram
}

func newOtelMetrics(mp metric.MeterProvider) (*otelMetrics, error) {
	meter := mp.Meter(scope)
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	millis := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		errs = append(errs, err)
		return h
	}

	m := &otelMetrics{
		runs:     counter("recovery.handled", "Recovery runs that executed strategies"),
		skips:    counter("recovery.skipped", "Recovery requests turned away"),
		runTime:  millis("recovery.latency_ms", "Recovery run latency"),
		steps:    counter("recovery.strategy.executions", "Strategy executions"),
		stepTime: millis("recovery.strategy.latency_ms", "Strategy execution latency"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder reports through OpenTelemetry. It falls back to
// NoopMetrics when the instruments cannot be created.
func NewMetricsRecorder(opts ...Option) MetricsRecorder {
	m, err := newOtelMetrics(resolve(opts).meters)
	if err != nil {
		slog.Warn("recovery metrics disabled", slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func outcome(strategy string, success bool) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", success),
	)
}

func (m *otelMetrics) RecordRecovery(ctx context.Context, strategy string, success bool, d time.Duration) {
	attrs := outcome(strategy, success)
	m.runs.Add(ctx, 1, attrs)
	m.runTime.Record(ctx, millis(d), attrs)
}

func (m *otelMetrics) RecordSkipped(ctx context.Context, reason string) {
	m.skips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *otelMetrics) RecordStrategyExecution(ctx context.Context, strategy string, success bool, d time.Duration) {
	attrs := outcome(strategy, success)
	m.steps.Add(ctx, 1, attrs)
	m.stepTime.Record(ctx, millis(d), attrs)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// MultiRecorder sends every measurement to each recorder in turn.
type MultiRecorder []MetricsRecorder

func (mr MultiRecorder) RecordRecovery(ctx context.Context, strategy string, success bool, d time.Duration) {
	for _, r := range mr {
		r.RecordRecovery(ctx, strategy, success, d)
	}
}

func (mr MultiRecorder) RecordSkipped(ctx context.Context, reason string) {
	for _, r := range mr {
		r.RecordSkipped(ctx, reason)
	}
}

func (mr MultiRecorder) RecordStrategyExecution(ctx context.Context, strategy string, success bool, d time.Duration) {
	for _, r := range mr {
		r.RecordStrategyExecution(ctx, strategy, success, d)
	}
}
