package localstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const (
	fileSuffix = ".json"
	lockSuffix = ".lock"
)

// FileStore keeps one file per key under a base directory. Writes go through
// a temporary file and a rename, guarded by an advisory lock so that two
// consoles on the same machine do not interleave.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory when needed
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create local state directory '%s': %w", basePath, err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Path returns the file backing key
func (f *FileStore) Path(key string) string {
	return filepath.Join(f.basePath, sanitizeKey(key)+fileSuffix)
}

// Get reads the value for key
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	lock := flock.New(f.Path(key) + lockSuffix)
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock local state '%s': %w", key, err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read local state '%s': %w", key, err)
	}
	return data, nil
}

// Put writes the value for key atomically
func (f *FileStore) Put(_ context.Context, key string, value []byte) error {
	path := f.Path(key)
	lock := flock.New(path + lockSuffix)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock local state '%s': %w", key, err)
	}
	defer func() { _ = lock.Unlock() }()

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, value, 0600); err != nil {
		return fmt.Errorf("failed to write temporary local state '%s': %w", key, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename local state '%s': %w", key, err)
	}
	return nil
}

// Delete removes the file for key
func (f *FileStore) Delete(_ context.Context, key string) error {
	path := f.Path(key)
	lock := flock.New(path + lockSuffix)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock local state '%s': %w", key, err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete local state '%s': %w", key, err)
	}
	return nil
}

// Close is a no-op
func (*FileStore) Close() error { return nil }

// sanitizeKey keeps keys inside the base directory
func sanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "_"
	}
	return s
}
