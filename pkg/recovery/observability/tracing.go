package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager opens the spans of a recovery run: one per HandleError call
// and a child per strategy attempt.
type SpanManager interface {
	StartRun(ctx context.Context, errorID, category, severity string) (context.Context, trace.Span)
	StartStep(ctx context.Context, strategy string, priority, step int) (context.Context, trace.Span)

	// Finish ends span, marking it failed when err is non-nil.
	Finish(span trace.Span, err error)

	// Annotate adds an event to the span carried by ctx.
	Annotate(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type spanManager struct {
	tracer trace.Tracer
}

// NewSpanManager traces through OpenTelemetry, by default with the
// global tracer provider.
func NewSpanManager(opts ...Option) SpanManager {
	return spanManager{tracer: resolve(opts).tracers.Tracer(scope)}
}

func (m spanManager) StartRun(ctx context.Context, errorID, category, severity string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "recovery.handle", trace.WithAttributes(
		attribute.String("error.id", errorID),
		attribute.String("error.category", category),
		attribute.String("error.severity", severity),
	))
}

func (m spanManager) StartStep(ctx context.Context, strategy string, priority, step int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "recovery.strategy."+strategy, trace.WithAttributes(
		attribute.String("strategy.name", strategy),
		attribute.Int("strategy.priority", priority),
		attribute.Int("recovery.step", step),
	))
}

func (spanManager) Finish(span trace.Span, err error) {
	finish(span, err)
}

func (spanManager) Annotate(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func finish(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err == nil {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
