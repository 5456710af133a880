// Package creds persists the session's credential blob. The blob is
// opaque to the gateway; only the load/save contract matters.
package creds

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is an opaque credential blob store.
type Store interface {
	// Load returns the stored blob, or nil when nothing has been saved.
	Load() ([]byte, error)
	Save(blob []byte) error
}

// FileStore keeps the blob in a single file under the session directory.
type FileStore struct {
	path string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "credentials.json")}
}

func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return data, nil
}

// Save writes the blob atomically: a partial write never clobbers the
// previous credentials.
func (s *FileStore) Save(blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to commit credentials: %w", err)
	}
	return nil
}
