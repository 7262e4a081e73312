// Package client is a Go client for the link saver API. It keeps a
// session alive across access token expiry by refreshing and replaying
// failed requests transparently.
package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TokenPair holds the session credentials.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// CredentialStore persists session credentials and the pending link a
// user tried to save before signing in.
type CredentialStore interface {
	Tokens() TokenPair
	SetTokens(pair TokenPair) error
	Clear() error

	PendingLink() string
	SetPendingLink(url string) error
	ClearPendingLink() error
}

// MemoryStore is an in-memory CredentialStore for tests and short-lived
// programs.
type MemoryStore struct {
	mu      sync.Mutex
	tokens  TokenPair
	pending string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Tokens() TokenPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

func (m *MemoryStore) SetTokens(pair TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = pair
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = TokenPair{}
	return nil
}

func (m *MemoryStore) PendingLink() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *MemoryStore) SetPendingLink(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = url
	return nil
}

func (m *MemoryStore) ClearPendingLink() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = ""
	return nil
}

type fileState struct {
	Tokens      TokenPair `json:"tokens"`
	PendingLink string    `json:"pendingLink,omitempty"`
}

// FileStore persists credentials as JSON in a single file. Writes go
// through a temp file and rename so a crash never leaves a torn file.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// NewFileStore loads (or initializes) a store at path. A missing file is
// not an error; the store starts empty.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return s, nil
}

func (f *FileStore) Tokens() TokenPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Tokens
}

func (f *FileStore) SetTokens(pair TokenPair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Tokens = pair
	return f.save()
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Tokens = TokenPair{}
	return f.save()
}

func (f *FileStore) PendingLink() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.PendingLink
}

func (f *FileStore) SetPendingLink(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.PendingLink = url
	return f.save()
}

func (f *FileStore) ClearPendingLink() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.PendingLink = ""
	return f.save()
}

func (f *FileStore) save() error {
	data, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
