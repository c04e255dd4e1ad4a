package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore holds the session token between runs
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokens stores the token in a file readable only by the owner
type FileTokens struct {
	Path string
}

// Load returns the stored token, or "" when there is none
func (f *FileTokens) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil // No token file is fine
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes token to the file, creating its directory
func (f *FileTokens) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return err
	}
	return os.WriteFile(f.Path, []byte(token), 0600)
}

// Clear removes the token file
func (f *FileTokens) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryTokens keeps the token in memory only
type MemoryTokens struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokens creates a MemoryTokens holding token
func NewMemoryTokens(token string) *MemoryTokens {
	return &MemoryTokens{token: token}
}

func (m *MemoryTokens) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryTokens) Save(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokens) Clear() error {
	return m.Save("")
}
