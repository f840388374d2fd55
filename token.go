package authflow

import (
	"time"

	"golang.org/x/oauth2"
)

const (
	// defaultTokenType is assumed when the token endpoint omits token_type.
	defaultTokenType = "Bearer"

	// defaultExpiresIn is assumed when the token endpoint omits expires_in.
	defaultExpiresIn = 3600

	// expirySkew is subtracted from the computed expiry to absorb clock
	// drift and request latency. A token this close to expiring is treated
	// as already expired.
	expirySkew = 30 * time.Second
)

// Token is a user-scoped bearer credential issued by the token endpoint.
// It is immutable after construction and serializes to a single JSON
// document for persistence (see the tokenstore package).
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ApplyDefaults fills fields the issuer or a persisted file may omit.
// TokenType defaults to "Bearer" and CreatedAt is stamped once, at first
// materialization. ExpiresIn is left untouched: zero means the token never
// expires (response decoding supplies its own default, see Client).
func (t *Token) ApplyDefaults(now time.Time) {
	if t.TokenType == "" {
		t.TokenType = defaultTokenType
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}

// Expired reports whether the token's lifetime has elapsed, with a small
// skew buffer. Tokens without a known lifetime never expire.
func (t *Token) Expired() bool {
	if t.ExpiresIn <= 0 {
		return false
	}
	return time.Now().After(t.Expiry().Add(-expirySkew))
}

// Expiry returns the instant the token stops being valid, or the zero time
// if the lifetime is unknown.
func (t *Token) Expiry() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// OAuth2 converts the token for use with golang.org/x/oauth2 transports.
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry(),
	}
}
