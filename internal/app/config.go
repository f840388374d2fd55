// Package app holds the authflow binary's configuration model.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/loopbacklabs/authflow"
	"github.com/loopbacklabs/authflow/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOtel LogFormat = "otel"
)

// TokenStorageType represents the storage backends supported for tokens.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat   = LogFormatText
	DefaultConfigRedirectURI = "http://localhost:8765/callback"
	DefaultConfigStorage     = TokenStorageTypeFile
	DefaultKeyringService    = "authflow-token"
)

// ProviderConfig names the OAuth2 provider and the application's
// registration with it.
type ProviderConfig struct {
	AuthURL  string `json:"auth_url" validate:"required,url"`
	TokenURL string `json:"token_url" validate:"required,url"`

	ClientID string `json:"client_id" validate:"required"`
	// ClientSecret may be left empty in the config file; the login command
	// prompts for it interactively so it never has to live on disk.
	ClientSecret string `json:"client_secret,omitempty"`

	RedirectURI string        `json:"redirect_uri" validate:"required,url"`
	Scopes      []string      `json:"scopes,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// StorageConfig describes where tokens persist.
type StorageConfig struct {
	Type TokenStorageType `json:"type" validate:"required,oneof=file keyring"`

	// Storage-specific settings (mutually exclusive based on Type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewTokenStore creates a token store from the storage configuration.
func (s *StorageConfig) NewTokenStore() (tokenstore.Store, error) {
	switch s.Type {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(s.File)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(DefaultKeyringService, s.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// Config holds the binary's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json otel"`
	Provider  ProviderConfig `json:"provider"`
	Storage   StorageConfig  `json:"storage"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Provider.RedirectURI == "" {
		c.Provider.RedirectURI = DefaultConfigRedirectURI
	}
	if len(c.Provider.Scopes) == 0 {
		c.Provider.Scopes = authflow.DefaultScopes
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = authflow.DefaultTimeout
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorage
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(configDir, "authflow", "token.json")
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// FlowConfig maps the provider section onto the library's flow configuration.
func (c *Config) FlowConfig() authflow.Config {
	return authflow.Config{
		ClientID:     c.Provider.ClientID,
		ClientSecret: c.Provider.ClientSecret,
		AuthURL:      c.Provider.AuthURL,
		TokenURL:     c.Provider.TokenURL,
		RedirectURI:  c.Provider.RedirectURI,
		Scopes:       c.Provider.Scopes,
		Timeout:      c.Provider.Timeout,
	}
}
