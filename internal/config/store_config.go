package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	tokenFileVar    = "TOKEN_FILE"
	tokenSealKeyVar = "TOKEN_SEAL_KEY"
)

type StoreConfig interface {
	GetTokenFile() string
	GetTokenSealKey() (*[32]byte, error)
}

type Store struct{}

var _ StoreConfig = Store{}

// GetTokenFile returns the credential file path. Checks TOKEN_FILE first,
// then falls back to $XDG_CONFIG_HOME/admin-console/tokens.json.
func (Store) GetTokenFile() string {
	if path := os.Getenv(tokenFileVar); path != "" {
		return path
	}

	configDirectory := os.Getenv("XDG_CONFIG_HOME")
	if configDirectory == "" {
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "admin-console-tokens.json")
		}
		configDirectory = filepath.Join(homeDirectory, ".config")
	}
	return filepath.Join(configDirectory, "admin-console", "tokens.json")
}

// GetTokenSealKey returns nil when no key is configured.
func (Store) GetTokenSealKey() (*[32]byte, error) {
	raw := os.Getenv(tokenSealKeyVar)
	if raw == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not hex: %w", tokenSealKeyVar, err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", tokenSealKeyVar, len(decoded))
	}
	var key [32]byte
	copy(key[:], decoded)
	return &key, nil
}
