package authflow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loopbacklabs/authflow/internal/httpmw"
)

// listenerShutdownGrace bounds how long in-flight callback requests may run
// after shutdown starts. Past the grace period connections are force-closed.
const listenerShutdownGrace = 5 * time.Second

// callbackResult is the write-once outcome of one authorization attempt:
// either an authorization code or an error, never both.
type callbackResult struct {
	code string
	err  error
}

// callbackListener is the short-lived loopback HTTP endpoint that catches the
// browser redirect for a single authorization attempt. It resolves the
// attempt at most once; any later redirect is answered at the HTTP layer but
// has no further effect.
type callbackListener struct {
	addr   string
	path   string
	state  string
	logger *slog.Logger

	server *http.Server
	group  *errgroup.Group

	resolveOnce  sync.Once
	shutdownOnce sync.Once
	results      chan callbackResult
	shutdownErr  error
}

func newCallbackListener(addr, path, state string, logger *slog.Logger) *callbackListener {
	return &callbackListener{
		addr:    addr,
		path:    path,
		state:   state,
		logger:  logger,
		results: make(chan callbackResult, 1),
	}
}

// start binds the loopback port synchronously, so bind failures (port in use,
// permission denied) surface to the caller immediately, then serves in the
// background. The caller must call shutdown to release the port.
func (l *callbackListener) start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}
	l.addr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+l.path, l.handleCallback)
	if l.path != "/" {
		mux.HandleFunc("GET /", l.handleRoot)
	}

	handler := httpmw.Chain(mux,
		httpmw.Logging(l.logger),
		httpmw.RequestID,
		httpmw.TraceContext,
		httpmw.Recovery,
	)

	l.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	l.group = &errgroup.Group{}
	l.group.Go(func() error {
		err := l.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Resolve so a waiting Authorize does not sit out its full
			// deadline on a dead listener.
			l.resolve(callbackResult{err: fmt.Errorf("callback server failed: %w", err)})
			return err
		}
		return nil
	})

	return nil
}

// shutdown stops accepting new connections, lets in-flight requests finish
// within the grace period, then force-closes. It is idempotent and waits for
// the serve goroutine to exit, so the port is released before it returns.
func (l *callbackListener) shutdown() error {
	l.shutdownOnce.Do(func() {
		graceCtx, cancel := context.WithTimeout(context.Background(), listenerShutdownGrace)
		defer cancel()

		if err := l.server.Shutdown(graceCtx); err != nil {
			_ = l.server.Close()
			l.shutdownErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := l.group.Wait(); err != nil && l.shutdownErr == nil {
			l.shutdownErr = err
		}
	})
	return l.shutdownErr
}

// resolve records the attempt outcome. Only the first call wins.
func (l *callbackListener) resolve(res callbackResult) {
	l.resolveOnce.Do(func() {
		l.results <- res
	})
}

func (l *callbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		authErr := &AuthorizationError{
			Code:        errCode,
			Description: query.Get("error_description"),
		}
		l.writeFailurePage(w, "The authorization request was not granted.")
		l.resolve(callbackResult{err: authErr})
		return
	}

	// A mismatched state is a forged, stale or confused redirect. Answer the
	// browser but keep the attempt open for a later legitimate redirect.
	if state := query.Get("state"); state != l.state {
		l.logger.WarnContext(r.Context(), "rejecting callback with mismatched state")
		l.writeFailurePage(w, "This redirect does not belong to the pending authorization request.")
		return
	}

	code := query.Get("code")
	if code == "" {
		l.logger.WarnContext(r.Context(), "rejecting callback without authorization code")
		l.writeFailurePage(w, "The redirect did not include an authorization code.")
		return
	}

	l.writeSuccessPage(w)
	l.resolve(callbackResult{code: code})
}

func (l *callbackListener) handleRoot(w http.ResponseWriter, _ *http.Request) {
	setSecurityHeaders(w)
	l.writePage(w, "Authorization pending",
		"The callback listener is running. Complete the authorization in your browser.")
}

func (l *callbackListener) writeSuccessPage(w http.ResponseWriter) {
	setSecurityHeaders(w)
	l.writePage(w, "Authorization complete",
		"You have authorized the application. You can close this window and return to it.")
}

func (l *callbackListener) writeFailurePage(w http.ResponseWriter, reason string) {
	setSecurityHeaders(w)
	w.WriteHeader(http.StatusBadRequest)
	l.writePage(w, "Authorization failed", reason)
}

func (l *callbackListener) writePage(w http.ResponseWriter, title, message string) {
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>%[1]s</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: sans-serif; margin: 40px; text-align: center; }
        .message { max-width: 600px; margin: 20px auto; padding: 20px; border: 1px solid #ccc; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>%[1]s</h1>
    <div class="message"><p>%[2]s</p></div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(message))

	if _, err := w.Write([]byte(page)); err != nil {
		l.logger.Warn("failed to write callback response page", "error", err)
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
}
