package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Compile-time interface check.
var _ DocStore = (*FileStore)(nil)

// FileStore persists each document as an indented JSON file under a base
// directory. Writes go through a temp file followed by a rename so a crash
// mid-write never leaves a truncated document behind.
// Safe for concurrent use.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Load implements DocStore.
func (fs *FileStore) Load(_ context.Context, key string, v any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path, err := fs.pathFor(key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode %q: %w", path, err)
	}
	return nil
}

// Save implements DocStore.
func (fs *FileStore) Save(_ context.Context, key string, v any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path, err := fs.pathFor(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write temp for %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename %q: %w", key, err)
	}
	return nil
}

// pathFor maps a document key to a file path, rejecting keys that would
// escape the base directory.
func (fs *FileStore) pathFor(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("store: invalid document key %q", key)
	}
	return filepath.Join(fs.dir, key+".json"), nil
}
