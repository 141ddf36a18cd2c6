package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voxlink"

// SessionIDKey tags spans with the ID of the live session they act on.
const SessionIDKey = attribute.Key("voxlink.session.id")

// Tracer returns the voxlink tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartSessionSpan starts an internal span named "session.<op>" for an
// operation on the session identified by sessionID. End it with [EndSpan].
func StartSessionSpan(ctx context.Context, op, sessionID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "session."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(SessionIDKey.String(sessionID)),
	)
}

// EndSpan records err on span, marking it failed, and ends it. A nil err
// leaves the status unset.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base with trace_id and span_id attached when ctx carries a
// span. A nil base selects slog.Default.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
