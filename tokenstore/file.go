package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/loopbacklabs/authflow"
)

// FileStore persists one token as a JSON document at a fixed path. Writes go
// through a temp file created with owner-only permissions and an atomic
// rename, so the file is never observable partially written or with loose
// permissions.
type FileStore struct {
	filePath string
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent
// directories with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Load returns the stored token. An absent or unreadable file, invalid JSON
// or a document without an access token all resolve to (nil, nil): there is
// no usable token, which is not an error.
func (f *FileStore) Load(ctx context.Context) (*authflow.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, nil
	}

	var token authflow.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, nil
	}
	if token.AccessToken == "" {
		return nil, nil
	}

	token.ApplyDefaults(time.Now())
	return &token, nil
}

// Save atomically writes the token. os.CreateTemp creates the file 0600, so
// it is owner-only from the moment it exists; the rename publishes it whole.
func (f *FileStore) Save(ctx context.Context, token *authflow.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("refusing to save token without access token")
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing token: %w", err)
	}

	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempName, f.filePath)
}

// Clear deletes the token file. A missing file is not an error.
func (f *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
