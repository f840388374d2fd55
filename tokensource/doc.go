// Package tokensource turns a persisted token into an auto-refreshing
// credential. Source implements oauth2.TokenSource, so it plugs directly
// into oauth2.Transport and oauth2.NewClient: API calls keep working across
// process restarts without re-prompting the user until the refresh token
// itself stops being honored.
package tokensource
