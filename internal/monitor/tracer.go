package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "testforge"

// Tracer wraps OpenTelemetry tracing for the orchestration engine.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("orchestrator.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for submission tracing.
var (
	AttrSubmissionID = attribute.Key("submission.id")
	AttrAccountID    = attribute.Key("submission.account_id")
	AttrCategory     = attribute.Key("submission.category")
	AttrMode         = attribute.Key("submission.economy_mode")
	AttrScore        = attribute.Key("submission.quality_score")
	AttrCreditsUsed  = attribute.Key("submission.credits_used")
)
