package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/loopbacklabs/authflow"
	"github.com/loopbacklabs/authflow/tokenstore"
)

// ErrNoToken reports that the store holds no usable credential and the
// cached one (if any) cannot be refreshed. Interactive authorization is
// required to proceed.
var ErrNoToken = errors.New("no usable stored token, interactive authorization required")

// Source serves valid access tokens from a persisted credential. The store
// is read lazily on first use; an expired token is refreshed through the
// token endpoint and the rotated credential written back, so the refresh
// survives the next restart.
type Source struct {
	client *authflow.Client
	store  tokenstore.Store

	mu      sync.Mutex
	current *authflow.Token
	loaded  bool
}

// Compile-time check to ensure Source implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Source)(nil)

// New creates a Source backed by the given token endpoint client and store.
// No I/O is performed until the first token request.
func New(client *authflow.Client, store tokenstore.Store) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("missing token endpoint client")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	return &Source{
		client: client,
		store:  store,
	}, nil
}

// Token implements oauth2.TokenSource. The interface carries no context
// (legacy limitation), so storage and refresh I/O run on a background
// context.
func (s *Source) Token() (*oauth2.Token, error) {
	token, err := s.Current(context.Background())
	if err != nil {
		return nil, err
	}
	return token.OAuth2(), nil
}

// Current returns a non-expired token, refreshing and persisting as needed.
// Concurrent callers serialize; at most one refresh runs at a time.
func (s *Source) Current(ctx context.Context) (*authflow.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		stored, err := s.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading stored token: %w", err)
		}
		s.current = stored
		s.loaded = true
	}

	if s.current != nil && !s.current.Expired() {
		return s.current, nil
	}

	if s.current == nil || s.current.RefreshToken == "" {
		return nil, ErrNoToken
	}

	fresh, err := s.client.Refresh(ctx, s.current.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	// Providers may omit the refresh token when it is not rotated.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = s.current.RefreshToken
	}
	s.current = fresh

	if err := s.store.Save(ctx, fresh); err != nil {
		// The fresh token is still usable; losing the write only costs a
		// re-refresh after the next restart.
		slog.ErrorContext(ctx, "failed to persist refreshed token", "error", err)
	}

	return s.current, nil
}

// Seed replaces the cached credential with a newly obtained token and
// persists it, typically right after an interactive authorization.
func (s *Source) Seed(ctx context.Context, token *authflow.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("cannot seed with an empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = token
	s.loaded = true

	if err := s.store.Save(ctx, token); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}
	return nil
}
