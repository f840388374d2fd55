package authflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig reports a malformed flow configuration. It is
	// returned before any network or socket activity takes place.
	ErrInvalidConfig = errors.New("invalid flow configuration")

	// ErrTimeout reports that no valid redirect arrived within the
	// configured deadline. The callback listener is always torn down and
	// its port released before this error is returned.
	ErrTimeout = errors.New("timed out waiting for authorization")

	// ErrAuthorizationInProgress reports a second Authorize call while an
	// attempt is still running. A Flow supports one attempt at a time;
	// callers must serialize or use separate Flow instances on distinct
	// ports.
	ErrAuthorizationInProgress = errors.New("an authorization attempt is already in progress")
)

// AuthorizationError reports that the provider resolved the redirect with an
// error instead of an authorization code, typically because the user denied
// access.
type AuthorizationError struct {
	// Code is the provider's error code, e.g. "access_denied".
	Code string

	// Description is the provider's human-readable error_description, if any.
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization denied: %s", e.Code)
}

// TokenEndpointError reports a non-2xx response from the token endpoint.
// Code and Description carry the provider's error document with client
// credentials scrubbed, so the error is safe to log and surface.
type TokenEndpointError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenEndpointError) Error() string {
	msg := fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	return msg
}

// MalformedResponseError reports a 2xx token endpoint response that could
// not be used, such as an undecodable body or a missing access_token.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed token response: " + e.Reason
}
