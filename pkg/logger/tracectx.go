package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// AttrsFromCtx returns trace_id and span_id of the span in ctx, local or
// remote. Spans that will not be exported are marked trace_sampled=false.
func AttrsFromCtx(ctx context.Context) []slog.Attr {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}

	attrs := []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
	if !sc.IsSampled() {
		attrs = append(attrs, slog.Bool("trace_sampled", false))
	}
	return attrs
}

// WithTrace adds the trace attributes of ctx to lg.
func WithTrace(ctx context.Context, lg *slog.Logger) *slog.Logger {
	attrs := AttrsFromCtx(ctx)
	if len(attrs) == 0 {
		return lg
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return lg.With(args...)
}
