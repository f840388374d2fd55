package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDContextKey is a context key for storing request IDs.
type RequestIDContextKey struct{}

// getRequestID reads the request ID from the X-Request-ID header or context,
// generating one if missing.
func getRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	if id, ok := r.Context().Value(RequestIDContextKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// RequestID assigns each callback hit a correlation ID, stores it in the
// request context, reflects it in the X-Request-ID response header and adds
// it to the request log. One authorization attempt can receive several hits
// (duplicates, stale redirects, probes); the ID keeps them apart in logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		ctx := context.WithValue(r.Context(), RequestIDContextKey{}, requestID)

		// Set early to ensure the header is present during recovery scenarios
		w.Header().Set("X-Request-ID", requestID)
		SetLogAttrs(ctx, slog.String("request_id", requestID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
