// Package authflow obtains user-scoped OAuth2 tokens through the
// authorization-code flow, coordinated entirely inside one process: it
// generates a CSRF-safe authorization request, directs the user's browser at
// it, catches the single redirect on a short-lived loopback listener,
// validates it and exchanges the authorization code at the token endpoint.
//
// # Interactive authorization
//
//	flow, err := authflow.NewFlow(authflow.Config{
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		AuthURL:      "https://provider.example/oauth/authorize",
//		TokenURL:     "https://provider.example/oauth/token",
//		RedirectURI:  "http://localhost:8765/callback",
//	})
//	token, err := flow.Authorize(ctx)
//
// Authorize blocks until the redirect arrives, the configured timeout
// elapses, or ctx is cancelled. Callers that must not block run it on a
// goroutine; the listener is torn down on every return path.
//
// # Reuse across restarts
//
// Tokens persist as owner-only JSON files (or OS keyring entries) through
// the tokenstore package, and the tokensource package turns a persisted
// token into an auto-refreshing oauth2.TokenSource:
//
//	store, _ := tokenstore.NewFileStore(path)
//	src, _ := tokensource.New(flow.Client(), store)
//	httpClient := oauth2.NewClient(ctx, src)
package authflow
