package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/router-for-me/authflow/sdk/authflow"
)

// FileStore persists the fingerprint as a JSON file readable only by the current user.
// It lets a login started by one process be completed by another.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath returns the fingerprint file for profile under the user's config directory.
func DefaultFilePath(profile string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	if profile == "" {
		profile = "default"
	}
	return filepath.Join(dir, "authflow", profile, authflow.DefaultStorageKey+".json"), nil
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Get implements authflow.FingerprintStore.
func (s *FileStore) Get(_ context.Context) (*authflow.Fingerprint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file store %s: %w", s.path, authflow.ErrFingerprintNotFound)
		}
		return nil, fmt.Errorf("file store: read %s: %w", s.path, err)
	}
	return authflow.DecodeFingerprint(data)
}

// Set implements authflow.FingerprintStore. The file is replaced atomically.
func (s *FileStore) Set(_ context.Context, fingerprint *authflow.Fingerprint) error {
	data, err := authflow.EncodeFingerprint(fingerprint)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("file store: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fingerprint-*")
	if err != nil {
		return fmt.Errorf("file store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: chmod: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

// Clear implements authflow.FingerprintClearer. A missing file is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file store: remove %s: %w", s.path, err)
	}
	return nil
}
