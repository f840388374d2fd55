package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/pkg/browser"
)

const (
	// DefaultTimeout bounds the wait for the browser redirect when the
	// configuration does not name a deadline.
	DefaultTimeout = 5 * time.Minute

	// stateBytes is the entropy of the anti-CSRF state value. 32 bytes
	// encode to 43 base64url characters.
	stateBytes = 32
)

// Config describes one authorization-code flow against a provider.
type Config struct {
	// ClientID and ClientSecret identify the application to the provider.
	// Both are required: the token endpoint authenticates with HTTP Basic
	// auth built from them.
	ClientID     string
	ClientSecret string

	// AuthURL is the provider's authorization endpoint; TokenURL its token
	// endpoint.
	AuthURL  string
	TokenURL string

	// RedirectURI must match the application's registration with the
	// provider. Its host and port decide where the loopback listener binds;
	// the port defaults to 80 or 443 by scheme when absent.
	RedirectURI string

	// Scopes to request. DefaultScopes when empty.
	Scopes []string

	// Timeout bounds the wait for the redirect. DefaultTimeout when zero.
	Timeout time.Duration

	// SkipBrowser disables launching the system browser. The authorization
	// URL is surfaced through OnAuthURL and the logger regardless.
	SkipBrowser bool

	// OnAuthURL, when set, receives the authorization URL just before the
	// flow starts waiting for the redirect.
	OnAuthURL func(authURL string)

	// HTTPClient overrides the client used for token endpoint requests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Flow orchestrates one interactive authorization-code attempt at a time:
// it builds the authorization URL around a fresh anti-CSRF state, runs the
// loopback callback listener for the duration of the attempt, validates the
// redirect and drives the token endpoint client.
type Flow struct {
	cfg    Config
	client *Client
	logger *slog.Logger

	listenAddr   string
	callbackPath string

	inFlight atomic.Bool
}

// NewFlow validates the configuration and derives the loopback listener
// address from the redirect URI. It fails with ErrInvalidConfig before any
// network or socket activity.
func NewFlow(cfg Config) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client ID is required", ErrInvalidConfig)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client secret is required", ErrInvalidConfig)
	}
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("%w: authorization URL is required", ErrInvalidConfig)
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("%w: token URL is required", ErrInvalidConfig)
	}

	redirect, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed redirect URI %q: %v", ErrInvalidConfig, cfg.RedirectURI, err)
	}
	if redirect.Scheme != "http" && redirect.Scheme != "https" {
		return nil, fmt.Errorf("%w: redirect URI %q must use http or https", ErrInvalidConfig, cfg.RedirectURI)
	}
	if redirect.Hostname() == "" {
		return nil, fmt.Errorf("%w: redirect URI %q has no host", ErrInvalidConfig, cfg.RedirectURI)
	}

	port := redirect.Port()
	if port == "" {
		port = "80"
		if redirect.Scheme == "https" {
			port = "443"
		}
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []ClientOption
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, WithHTTPClient(cfg.HTTPClient))
	}

	return &Flow{
		cfg:          cfg,
		client:       NewClient(cfg.ClientID, cfg.ClientSecret, cfg.TokenURL, clientOpts...),
		logger:       logger,
		listenAddr:   net.JoinHostPort(redirect.Hostname(), port),
		callbackPath: path,
	}, nil
}

// Client returns the flow's token endpoint client, e.g. for refreshing a
// persisted token without re-running the interactive flow.
func (f *Flow) Client() *Client {
	return f.client
}

// Authorize runs one complete authorization attempt: generate a fresh state,
// start the callback listener, direct the user's browser to the provider,
// wait for the redirect (bounded by the configured timeout and ctx), then
// exchange the returned code for a token.
//
// The listener is torn down and its port released on every return path. A
// Flow runs one attempt at a time; concurrent calls fail with
// ErrAuthorizationInProgress.
func (f *Flow) Authorize(ctx context.Context) (*Token, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		return nil, ErrAuthorizationInProgress
	}
	defer f.inFlight.Store(false)

	// Fresh per attempt, never reused.
	state, err := newState()
	if err != nil {
		return nil, err
	}

	authURL := AuthCodeURL(f.cfg.AuthURL, f.cfg.ClientID, f.cfg.RedirectURI, f.cfg.Scopes, state)

	listener := newCallbackListener(f.listenAddr, f.callbackPath, state, f.logger)
	if err := listener.start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := listener.shutdown(); err != nil {
			f.logger.WarnContext(ctx, "callback listener shutdown failed", "error", err)
		}
	}()

	f.logger.InfoContext(ctx, "waiting for authorization redirect",
		"listen_addr", f.listenAddr, "timeout", f.cfg.Timeout)
	if f.cfg.OnAuthURL != nil {
		f.cfg.OnAuthURL(authURL)
	}
	if !f.cfg.SkipBrowser {
		// Best effort: the URL has already been surfaced to the caller.
		if err := browser.OpenURL(authURL); err != nil {
			f.logger.WarnContext(ctx, "failed to open browser", "error", err)
		}
	}

	timer := time.NewTimer(f.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-listener.results:
		if res.err != nil {
			return nil, res.err
		}
		token, err := f.client.Exchange(ctx, res.code, f.cfg.RedirectURI)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		return token, nil

	case <-timer.C:
		return nil, fmt.Errorf("%w: no valid redirect within %s", ErrTimeout, f.cfg.Timeout)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// newState returns a fresh cryptographically random URL-safe state value.
func newState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
