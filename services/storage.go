package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"race-prediction-api/config"
)

// BlobStore persists opaque file bytes by path. Paths are namespaced per user
// so an account cascade can drop everything under one prefix.
type BlobStore interface {
	Put(path string, r io.Reader) error
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
	DeleteAll(prefix string) error
}

// DiskStore is the local-disk BlobStore rooted at a configured directory.
type DiskStore struct {
	root string
}

func NewDiskStore(cfg config.StorageConfig) (*DiskStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &DiskStore{root: cfg.Dir}, nil
}

func (s *DiskStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *DiskStore) Put(path string, r io.Reader) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob dir: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (s *DiskStore) Open(path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Delete(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *DiskStore) DeleteAll(prefix string) error {
	full, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to delete blobs under %q: %w", prefix, err)
	}
	return nil
}
