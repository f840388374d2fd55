package httpmw

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext extracts W3C trace context from Traceparent/Tracestate headers
// and adds trace_id/span_id to both the request log and the request context.
//
// This enables distributed tracing participation without creating spans:
//   - Reads trace context from incoming request headers
//   - Stores it in request context for downstream logging
//   - Sets request log attributes for immediate visibility
func TraceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		// Read the SpanContext (works without active span)
		spanCtx := trace.SpanContextFromContext(ctx)
		if spanCtx.IsValid() {
			SetLogAttrs(ctx,
				slog.String("trace_id", spanCtx.TraceID().String()),
				slog.String("span_id", spanCtx.SpanID().String()),
			)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
