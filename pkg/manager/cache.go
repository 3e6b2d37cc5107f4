package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

// SaveCache serializes the store and hands the snapshot to backend, keyed by
// the store's owner.
func (m *Manager) SaveCache(ctx context.Context, backend cache.Store) error {
	var buf bytes.Buffer
	if err := m.store.Save(&buf); err != nil {
		return fmt.Errorf("serialize inventory: %w", err)
	}
	if err := backend.Save(ctx, m.store.Owner(), buf.Bytes()); err != nil {
		return fmt.Errorf("save inventory cache: %w", err)
	}

	stats := m.store.Stats()
	logger.Info("Saved inventory cache: %d folders, %d items, %d parked (%d bytes)",
		stats.Folders, stats.Items, stats.Unresolved, buf.Len())
	return nil
}

// LoadCache replaces the store contents with the snapshot held by backend.
//
// Returns:
//   - bool: false when backend holds no snapshot for the owner
//   - error: Backend failures and snapshot decoding errors
func (m *Manager) LoadCache(ctx context.Context, backend cache.Store) (bool, error) {
	data, err := backend.Load(ctx, m.store.Owner())
	if errors.Is(err, cache.ErrCacheMiss) {
		logger.Debug("No inventory cache for %s", m.store.Owner())
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load inventory cache: %w", err)
	}

	if err := m.observe("restore", func() error { return m.store.Restore(bytes.NewReader(data)) }); err != nil {
		return false, fmt.Errorf("restore inventory cache: %w", err)
	}

	stats := m.store.Stats()
	logger.Info("Loaded inventory cache: %d folders, %d items, %d parked",
		stats.Folders, stats.Items, stats.Unresolved)
	return true, nil
}
