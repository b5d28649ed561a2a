package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ringline/console/pkg/sdk"
)

// Store backends selectable through CONSOLE_STORE / --store.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// DefaultDir returns ~/.console.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".console"), nil
}

// Open returns the credential store of the given kind rooted at dir. An empty
// dir means DefaultDir.
func Open(kind, dir string) (sdk.CredentialStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	switch kind {
	case "", StoreFile:
		return NewFileStore(dir)
	case StoreSQLite:
		return NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("unknown credential store %q (expected %s or %s)", kind, StoreFile, StoreSQLite)
	}
}
