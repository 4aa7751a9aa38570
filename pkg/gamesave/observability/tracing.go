package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of all spans.
const TracerName = "gamesave"

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartSaveSpan starts a span for a checkpoint save.
	StartSaveSpan(ctx context.Context, episodeID string, stepNumber int64) (context.Context, trace.Span)

	// StartLoadSpan starts a span for a checkpoint load.
	StartLoadSpan(ctx context.Context, checkpointID string) (context.Context, trace.Span)

	// StartCleanupSpan starts a span for a retention pass.
	StartCleanupSpan(ctx context.Context, episodeID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager resolves its tracer from the global OTel tracer provider
// at construction. Configure the provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return NewSpanManagerWithProvider(otel.GetTracerProvider())
}

// NewSpanManagerWithProvider is NewSpanManager on an explicit provider.
func NewSpanManagerWithProvider(provider trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: provider.Tracer(TracerName)}
}

// StartSaveSpan starts a span for a checkpoint save.
func (m *otelSpanManager) StartSaveSpan(ctx context.Context, episodeID string, stepNumber int64) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "gamesave.save",
		trace.WithAttributes(
			attribute.String("episode.id", episodeID),
			attribute.Int64("step.number", stepNumber),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartLoadSpan starts a span for a checkpoint load.
func (m *otelSpanManager) StartLoadSpan(ctx context.Context, checkpointID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "gamesave.load",
		trace.WithAttributes(
			attribute.String("checkpoint.id", checkpointID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartCleanupSpan starts a span for a retention pass.
func (m *otelSpanManager) StartCleanupSpan(ctx context.Context, episodeID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "gamesave.cleanup",
		trace.WithAttributes(
			attribute.String("episode.id", episodeID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
