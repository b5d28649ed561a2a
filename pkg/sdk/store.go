package sdk

import "sync"

// Fixed keys under which durable stores persist the session.
const (
	KeyAccessToken  = "console.accessToken"
	KeyRefreshToken = "console.refreshToken"
	KeyIdentity     = "console.identity"
)

// CredentialStore persists the bearer credentials and the cached identity snapshot.
// It is pure storage: no network, no policy. Implementations must be safe for
// concurrent use and must return copies.
type CredentialStore interface {
	// LoadCredentials returns the stored credentials, or (nil, nil) when absent.
	LoadCredentials() (*Credentials, error)
	// SaveCredentials stores credentials. An empty RefreshToken keeps the stored one.
	// Returns ErrIncompleteCredentials when no refresh token would remain.
	SaveCredentials(credentials *Credentials) error
	// DeleteCredentials removes the credentials. Deleting nothing is not an error.
	DeleteCredentials() error

	// LoadIdentity returns the cached identity, or (nil, nil) when absent.
	LoadIdentity() (*Identity, error)
	// SaveIdentity replaces the cached identity.
	SaveIdentity(identity *Identity) error
	// DeleteIdentity removes the cached identity. Deleting nothing is not an error.
	DeleteIdentity() error
}

// MergeCredentials applies next on top of prev, keeping prev's refresh token when
// next carries none. Durable stores use it so every backend shares the rule.
func MergeCredentials(prev, next *Credentials) (*Credentials, error) {
	if next == nil || next.AccessToken == "" {
		return nil, ErrIncompleteCredentials
	}
	merged := next.clone()
	if merged.RefreshToken == "" && prev != nil {
		merged.RefreshToken = prev.RefreshToken
	}
	if !merged.Complete() {
		return nil, ErrIncompleteCredentials
	}
	return merged, nil
}

// MemoryStore is an in-process CredentialStore.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials *Credentials
	identity    *Identity
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadCredentials() (*Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.credentials.clone(), nil
}

func (m *MemoryStore) SaveCredentials(credentials *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged, err := MergeCredentials(m.credentials, credentials)
	if err != nil {
		return err
	}
	m.credentials = merged
	return nil
}

func (m *MemoryStore) DeleteCredentials() error {
	m.mu.Lock()
	m.credentials = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadIdentity() (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity.clone(), nil
}

func (m *MemoryStore) SaveIdentity(identity *Identity) error {
	m.mu.Lock()
	m.identity = identity.clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteIdentity() error {
	m.mu.Lock()
	m.identity = nil
	m.mu.Unlock()
	return nil
}

// clearSession removes credentials and identity, returning the first failure.
func clearSession(store CredentialStore) error {
	credErr := store.DeleteCredentials()
	idErr := store.DeleteIdentity()
	if credErr != nil {
		return credErr
	}
	return idErr
}
