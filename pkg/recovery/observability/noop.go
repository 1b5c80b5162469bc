package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards measurements.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordRecovery(context.Context, string, bool, time.Duration) {}

func (NoopMetrics) RecordSkipped(context.Context, string) {}

func (NoopMetrics) RecordStrategyExecution(context.Context, string, bool, time.Duration) {}

// NoopSpanManager leaves the context alone and hands out spans that
// record nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

func (NoopSpanManager) StartRun(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartStep(ctx context.Context, _ string, _, _ int) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) Finish(trace.Span, error) {}

func (NoopSpanManager) Annotate(context.Context, string, ...attribute.KeyValue) {}
