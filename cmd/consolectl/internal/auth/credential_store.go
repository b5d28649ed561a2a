package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ringline/console/pkg/sdk"
)

const credentialsFile = "credentials.json"

// document is the on-disk layout of credentials.json, keyed like the browser store.
type document struct {
	AccessToken  string        `json:"console.accessToken,omitempty"`
	RefreshToken string        `json:"console.refreshToken,omitempty"`
	Identity     *sdk.Identity `json:"console.identity,omitempty"`
}

// FileStore implements sdk.CredentialStore using a JSON file.
// This is the CLI's default credential persistence implementation.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// Ensure FileStore implements sdk.CredentialStore at compile time.
var _ sdk.CredentialStore = (*FileStore)(nil)

// NewFileStore creates a FileStore keeping credentials.json under dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return &FileStore{path: filepath.Join(dir, credentialsFile)}, nil
}

// Path returns the credentials file location.
func (s *FileStore) Path() string {
	return s.path
}

// LoadCredentials loads the credentials from the file.
func (s *FileStore) LoadCredentials() (*sdk.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if doc.AccessToken == "" && doc.RefreshToken == "" {
		return nil, nil
	}
	return &sdk.Credentials{AccessToken: doc.AccessToken, RefreshToken: doc.RefreshToken}, nil
}

// SaveCredentials saves the credentials to the file, keeping the stored refresh
// token when credentials carries none.
func (s *FileStore) SaveCredentials(credentials *sdk.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}

	var prev *sdk.Credentials
	if doc.RefreshToken != "" {
		prev = &sdk.Credentials{AccessToken: doc.AccessToken, RefreshToken: doc.RefreshToken}
	}
	merged, err := sdk.MergeCredentials(prev, credentials)
	if err != nil {
		return err
	}
	doc.AccessToken = merged.AccessToken
	doc.RefreshToken = merged.RefreshToken
	return s.write(doc)
}

// DeleteCredentials removes both tokens. The file goes once nothing is left in it.
func (s *FileStore) DeleteCredentials() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.AccessToken, doc.RefreshToken = "", ""
	return s.write(doc)
}

func (s *FileStore) LoadIdentity() (*sdk.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Identity, nil
}

func (s *FileStore) SaveIdentity(identity *sdk.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Identity = identity
	return s.write(doc)
}

func (s *FileStore) DeleteIdentity() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Identity = nil
	return s.write(doc)
}

func (s *FileStore) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return &doc, nil
}

// write replaces the file atomically (temp file + rename), or removes it when
// doc is empty.
func (s *FileStore) write(doc *document) error {
	if doc.AccessToken == "" && doc.RefreshToken == "" && doc.Identity == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove credentials file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), credentialsFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp credentials file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to restrict credentials file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}
