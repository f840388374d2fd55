package tokenstore

import (
	"context"

	"github.com/loopbacklabs/authflow"
)

// Store reads and writes tokens to persistent storage.
type Store interface {
	// Load returns the stored token, or (nil, nil) when no usable token
	// exists. Absence is a normal state, not an error.
	Load(ctx context.Context) (*authflow.Token, error)

	// Save persists the token, replacing any previous one.
	Save(ctx context.Context, token *authflow.Token) error

	// Clear removes the stored token. Clearing an empty store is not an
	// error.
	Clear(ctx context.Context) error
}
