// Package httpmw provides the HTTP middleware chain applied to the loopback
// callback endpoint: request logging, request-ID correlation, trace-context
// extraction and panic recovery.
package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration.
// Query parameters, headers and bodies are never logged: callback requests
// carry authorization codes and state values that must stay out of logs.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Explicitly prevent logging headers/body to avoid leaking sensitive data
		LogRequestHeaders:  []string{},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
