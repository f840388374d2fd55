package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// traceAttrHandler decorates another slog.Handler and stamps trace_id and
// span_id onto every record whose context carries a valid span. The text and
// json formats thus emit the same correlation fields the otel pipeline does.
type traceAttrHandler struct {
	next slog.Handler
}

func withTraceAttrs(next slog.Handler) *traceAttrHandler {
	return &traceAttrHandler{next: next}
}

func (h *traceAttrHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceAttrHandler) Handle(ctx context.Context, record slog.Record) error {
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return h.next.Handle(ctx, record)
}

func (h *traceAttrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceAttrHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceAttrHandler) WithGroup(name string) slog.Handler {
	return &traceAttrHandler{next: h.next.WithGroup(name)}
}
