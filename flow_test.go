package authflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type flowResult struct {
	token *Token
	err   error
}

// freePort asks the kernel for an unused loopback port. The listener is
// closed before the flow rebinds it, which is racy in theory but reliable
// for a test that needs a concrete redirect URI up front.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding a free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func newTestFlow(t *testing.T, tokenURL string, timeout time.Duration) (*Flow, string, chan string) {
	t.Helper()

	redirect := fmt.Sprintf("http://127.0.0.1:%d/callback", freePort(t))
	urlCh := make(chan string, 1)

	flow, err := NewFlow(Config{
		ClientID:     "cid",
		ClientSecret: "csec",
		AuthURL:      "https://provider.example/oauth/authorize",
		TokenURL:     tokenURL,
		RedirectURI:  redirect,
		Timeout:      timeout,
		SkipBrowser:  true,
		OnAuthURL:    func(authURL string) { urlCh <- authURL },
		Logger:       discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}
	return flow, redirect, urlCh
}

func awaitAuthURL(t *testing.T, urlCh chan string) *url.URL {
	t.Helper()

	select {
	case raw := <-urlCh:
		parsed, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid authorization URL %q: %v", raw, err)
		}
		return parsed
	case <-time.After(5 * time.Second):
		t.Fatal("authorization URL was never surfaced")
		return nil
	}
}

func TestFlowAuthorizeEndToEnd(t *testing.T) {
	var exchanges atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		if user, pass, _ := r.BasicAuth(); user != "cid" || pass != "csec" {
			t.Errorf("Basic auth = (%q, %q)", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		if got := r.PostForm.Get("code"); got != "abc123" {
			t.Errorf("code = %q, want %q", got, "abc123")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","expires_in":3600,"refresh_token":"r1"}`))
	}))
	defer tokenSrv.Close()

	flow, redirect, urlCh := newTestFlow(t, tokenSrv.URL, 10*time.Second)

	resCh := make(chan flowResult, 1)
	go func() {
		token, err := flow.Authorize(context.Background())
		resCh <- flowResult{token: token, err: err}
	}()

	authURL := awaitAuthURL(t, urlCh)
	query := authURL.Query()
	if got := query.Get("client_id"); got != "cid" {
		t.Errorf("client_id = %q", got)
	}
	if got := query.Get("redirect_uri"); got != redirect {
		t.Errorf("redirect_uri = %q, want %q", got, redirect)
	}
	state := query.Get("state")
	if len(state) < 43 {
		t.Errorf("state %q is %d chars, want at least 43", state, len(state))
	}

	resp, err := http.Get(fmt.Sprintf("%s?code=abc123&state=%s", redirect, state))
	if err != nil {
		t.Fatalf("simulated browser redirect failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("redirect status = %d, want 200", resp.StatusCode)
	}

	var res flowResult
	select {
	case res = <-resCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Authorize() did not return after the redirect")
	}
	if res.err != nil {
		t.Fatalf("Authorize() error = %v", res.err)
	}
	if res.token.AccessToken != "tok1" {
		t.Errorf("AccessToken = %q, want %q", res.token.AccessToken, "tok1")
	}
	if res.token.Expired() {
		t.Error("freshly obtained token reported as expired")
	}
	if got := exchanges.Load(); got != 1 {
		t.Errorf("token endpoint hit %d times, want 1", got)
	}
}

func TestFlowAuthorizeDenied(t *testing.T) {
	flow, redirect, urlCh := newTestFlow(t, "http://127.0.0.1:1/token", 10*time.Second)

	resCh := make(chan flowResult, 1)
	go func() {
		token, err := flow.Authorize(context.Background())
		resCh <- flowResult{token: token, err: err}
	}()

	state := awaitAuthURL(t, urlCh).Query().Get("state")
	resp, err := http.Get(fmt.Sprintf("%s?error=access_denied&error_description=nope&state=%s", redirect, state))
	if err != nil {
		t.Fatalf("simulated browser redirect failed: %v", err)
	}
	_ = resp.Body.Close()

	res := <-resCh
	var authErr *AuthorizationError
	if !errors.As(res.err, &authErr) {
		t.Fatalf("error type = %T (%v), want *AuthorizationError", res.err, res.err)
	}
	if authErr.Code != "access_denied" {
		t.Errorf("Code = %q, want %q", authErr.Code, "access_denied")
	}
}

func TestFlowAuthorizeStateMismatchKeepsWaiting(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	flow, redirect, urlCh := newTestFlow(t, tokenSrv.URL, 10*time.Second)

	resCh := make(chan flowResult, 1)
	go func() {
		token, err := flow.Authorize(context.Background())
		resCh <- flowResult{token: token, err: err}
	}()

	state := awaitAuthURL(t, urlCh).Query().Get("state")

	resp, err := http.Get(redirect + "?code=evil&state=not-the-state")
	if err != nil {
		t.Fatalf("forged redirect failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("forged redirect status = %d, want 400", resp.StatusCode)
	}

	select {
	case res := <-resCh:
		t.Fatalf("Authorize() resolved on a forged redirect: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}

	resp, err = http.Get(fmt.Sprintf("%s?code=abc123&state=%s", redirect, state))
	if err != nil {
		t.Fatalf("legitimate redirect failed: %v", err)
	}
	_ = resp.Body.Close()

	res := <-resCh
	if res.err != nil {
		t.Fatalf("Authorize() error = %v", res.err)
	}
	if res.token.AccessToken != "tok1" {
		t.Errorf("AccessToken = %q", res.token.AccessToken)
	}
}

func TestFlowAuthorizeTimeoutReleasesPort(t *testing.T) {
	flow, redirect, _ := newTestFlow(t, "http://127.0.0.1:1/token", 100*time.Millisecond)

	_, err := flow.Authorize(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Authorize() error = %v, want ErrTimeout", err)
	}

	parsed, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parsing redirect URI: %v", err)
	}
	ln, err := net.Listen("tcp", parsed.Host)
	if err != nil {
		t.Fatalf("port %s not released after timeout: %v", parsed.Host, err)
	}
	_ = ln.Close()
}

func TestFlowAuthorizeContextCancel(t *testing.T) {
	flow, _, urlCh := newTestFlow(t, "http://127.0.0.1:1/token", 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	resCh := make(chan flowResult, 1)
	go func() {
		token, err := flow.Authorize(ctx)
		resCh <- flowResult{token: token, err: err}
	}()

	awaitAuthURL(t, urlCh)
	cancel()

	res := <-resCh
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("Authorize() error = %v, want context.Canceled", res.err)
	}
}

func TestFlowConcurrentAuthorizeRejected(t *testing.T) {
	flow, _, urlCh := newTestFlow(t, "http://127.0.0.1:1/token", 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resCh := make(chan flowResult, 1)
	go func() {
		token, err := flow.Authorize(ctx)
		resCh <- flowResult{token: token, err: err}
	}()
	awaitAuthURL(t, urlCh)

	if _, err := flow.Authorize(context.Background()); !errors.Is(err, ErrAuthorizationInProgress) {
		t.Fatalf("second Authorize() error = %v, want ErrAuthorizationInProgress", err)
	}

	cancel()
	<-resCh
}

func TestFlowStatesAreUnique(t *testing.T) {
	first, err := newState()
	if err != nil {
		t.Fatalf("newState() error = %v", err)
	}
	second, err := newState()
	if err != nil {
		t.Fatalf("newState() error = %v", err)
	}
	if first == second {
		t.Error("consecutive states are identical")
	}
	if len(first) < 43 {
		t.Errorf("state %q is %d chars, want at least 43", first, len(first))
	}
	if strings.ContainsAny(first, "+/=") {
		t.Errorf("state %q is not URL-safe", first)
	}
}

func TestNewFlowValidation(t *testing.T) {
	valid := Config{
		ClientID:     "cid",
		ClientSecret: "csec",
		AuthURL:      "https://provider.example/authorize",
		TokenURL:     "https://provider.example/token",
		RedirectURI:  "http://localhost:8765/callback",
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing client ID", mutate: func(c *Config) { c.ClientID = "" }},
		{name: "missing client secret", mutate: func(c *Config) { c.ClientSecret = "" }},
		{name: "missing auth URL", mutate: func(c *Config) { c.AuthURL = "" }},
		{name: "missing token URL", mutate: func(c *Config) { c.TokenURL = "" }},
		{name: "malformed redirect URI", mutate: func(c *Config) { c.RedirectURI = "://bad" }},
		{name: "non-http redirect URI", mutate: func(c *Config) { c.RedirectURI = "ftp://localhost/cb" }},
		{name: "redirect URI without host", mutate: func(c *Config) { c.RedirectURI = "http:///callback" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewFlow(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewFlow() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewFlowDefaults(t *testing.T) {
	flow, err := NewFlow(Config{
		ClientID:     "cid",
		ClientSecret: "csec",
		AuthURL:      "https://provider.example/authorize",
		TokenURL:     "https://provider.example/token",
		RedirectURI:  "http://localhost/cb",
		Logger:       discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}

	if flow.listenAddr != "localhost:80" {
		t.Errorf("listenAddr = %q, want %q", flow.listenAddr, "localhost:80")
	}
	if flow.cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", flow.cfg.Timeout, DefaultTimeout)
	}
	if len(flow.cfg.Scopes) != 1 || flow.cfg.Scopes[0] != "view-user-profile" {
		t.Errorf("Scopes = %v, want DefaultScopes", flow.cfg.Scopes)
	}
	if flow.Client() == nil {
		t.Error("Client() = nil")
	}
}
