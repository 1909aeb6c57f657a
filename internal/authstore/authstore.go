// Package authstore persists the authenticated user between CLI sessions,
// so a verified token does not have to be re-checked on every invocation.
package authstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/statichq/gitcms/internal/backend"
)

// record is the on-disk shape. The token is stored deliberately; the file
// is created owner-readable only.
type record struct {
	BackendName string `json:"backendName"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	Token       string `json:"token"`
}

// FileStore keeps the user record in a JSON file.
type FileStore struct {
	path string
}

// NewFile creates a file-backed auth store at the given path.
func NewFile(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the stored user, returning (nil, nil) when no file exists.
func (s *FileStore) Load() (*backend.User, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth store: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse auth store: %w", err)
	}
	return &backend.User{
		BackendName: rec.BackendName,
		Login:       rec.Login,
		Name:        rec.Name,
		Token:       rec.Token,
	}, nil
}

// Save writes the user record, creating parent directories as needed.
func (s *FileStore) Save(u *backend.User) error {
	raw, err := json.Marshal(record{
		BackendName: u.BackendName,
		Login:       u.Login,
		Name:        u.Name,
		Token:       u.Token,
	})
	if err != nil {
		return fmt.Errorf("serialize auth store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create auth store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write auth store: %w", err)
	}
	return nil
}

// Clear removes the stored record. A missing file is not an error.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear auth store: %w", err)
	}
	return nil
}
