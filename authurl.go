package authflow

import (
	"golang.org/x/oauth2"
)

// DefaultScopes is requested when the caller does not name any scopes.
var DefaultScopes = []string{"view-user-profile"}

// AuthCodeURL renders the authorization endpoint URL the user must visit:
// response_type=code plus client_id, redirect_uri, the space-joined scopes
// and the caller-supplied anti-CSRF state. Pure string construction, no I/O;
// generating and retaining state is the Flow's job.
func AuthCodeURL(authURL, clientID, redirectURI string, scopes []string, state string) string {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	cfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: authURL,
		},
	}

	return cfg.AuthCodeURL(state)
}
