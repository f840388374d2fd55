package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/loopbacklabs/authflow"
)

// KeyringStore persists the token JSON document in OS-native secure
// credential storage (macOS Keychain, Windows Credential Manager, or Linux
// Secret Service).
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore under the given service and user
// identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Load returns the stored token, or (nil, nil) when the keyring has no
// usable entry.
func (k *KeyringStore) Load(ctx context.Context) (*authflow.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Missing entries and backend read failures both degrade to "no token".
	data, err := keyring.Get(k.service, k.user)
	if err != nil {
		return nil, nil
	}

	var token authflow.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, nil
	}
	if token.AccessToken == "" {
		return nil, nil
	}

	token.ApplyDefaults(time.Now())
	return &token, nil
}

// Save persists the token, overwriting any existing entry.
func (k *KeyringStore) Save(ctx context.Context, token *authflow.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("refusing to save token without access token")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("serializing token: %w", err)
	}

	return keyring.Set(k.service, k.user, string(data))
}

// Clear removes the keyring entry. A missing entry is not an error.
func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
