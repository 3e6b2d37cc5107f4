// Package fs implements filesystem-based snapshot storage.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

// FSCacheStore keeps one file per owner under a base directory.
//
// Writes go to a temporary file in the same directory and are renamed into
// place, so readers never see a partially written snapshot.
type FSCacheStore struct {
	basePath string
}

// NewFSCacheStore creates a filesystem cache rooted at basePath, creating the
// directory if it doesn't exist.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Directory holding the snapshot files
//
// Returns:
//   - *FSCacheStore: Initialized store
//   - error: Returns error if directory creation fails or context is cancelled
func NewFSCacheStore(ctx context.Context, basePath string) (*FSCacheStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if basePath == "" {
		return nil, fmt.Errorf("filesystem cache: path is required")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FSCacheStore{basePath: basePath}, nil
}

func (s *FSCacheStore) filePath(owner uuid.UUID) string {
	return filepath.Join(s.basePath, cache.FileName(owner))
}

// Save implements cache.Store.
func (s *FSCacheStore) Save(ctx context.Context, owner uuid.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.filePath(owner)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	return nil
}

// Load implements cache.Store.
func (s *FSCacheStore) Load(ctx context.Context, owner uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.filePath(owner))
	if errors.Is(err, os.ErrNotExist) {
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Delete implements cache.Store.
func (s *FSCacheStore) Delete(ctx context.Context, owner uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.filePath(owner))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Close implements cache.Store.
func (s *FSCacheStore) Close() error {
	return nil
}
