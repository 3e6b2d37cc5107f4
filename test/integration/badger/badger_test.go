//go:build integration

package badger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/manager"
	"github.com/marmos91/gridinv/pkg/protocol"
	cacheBadger "github.com/marmos91/gridinv/pkg/store/cache/badger"
)

// discardTransport accepts and drops every message.
type discardTransport struct{}

func (discardTransport) Send(context.Context, protocol.Message) error { return nil }

// TestBadgerCacheStore_Integration verifies that inventory snapshots survive
// closing and reopening an on-disk BadgerDB cache.
//
// Prerequisites:
//   - None (BadgerDB is embedded, no external services needed)
//   - Run with: go test -tags=integration ./test/integration/badger/...
func TestBadgerCacheStore_Integration(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	owner := uuid.New()
	root, objects, box := uuid.New(), uuid.New(), uuid.New()

	open := func(t *testing.T) *cacheBadger.BadgerCacheStore {
		t.Helper()
		store, err := cacheBadger.NewBadgerCacheStore(ctx, cacheBadger.BadgerCacheStoreConfig{
			DBPath:      dbPath,
			Compression: true,
		})
		if err != nil {
			t.Fatalf("Failed to open BadgerCacheStore: %v", err)
		}
		return store
	}

	t.Run("SaveSnapshot", func(t *testing.T) {
		backend := open(t)
		defer backend.Close()

		m, err := manager.New(manager.Options{Transport: discardTransport{}, AgentID: owner})
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		defer m.Close()

		store := m.Store()
		if err := store.Add(inventory.NewFolder(root, uuid.Nil, owner, "My Inventory", inventory.FolderTypeRoot)); err != nil {
			t.Fatalf("Add root failed: %v", err)
		}
		store.SetInventoryRoot(root)
		if err := store.Add(inventory.NewFolder(objects, root, owner, "Objects", inventory.FolderTypeObject)); err != nil {
			t.Fatalf("Add folder failed: %v", err)
		}
		if err := store.Add(inventory.NewItem(box, objects, owner, "Box", inventory.AssetTypeObject, inventory.InventoryTypeObject)); err != nil {
			t.Fatalf("Add item failed: %v", err)
		}

		if err := m.SaveCache(ctx, backend); err != nil {
			t.Fatalf("SaveCache failed: %v", err)
		}
	})

	t.Run("SnapshotSurvivesRestart", func(t *testing.T) {
		backend := open(t)
		defer backend.Close()

		m, err := manager.New(manager.Options{Transport: discardTransport{}, AgentID: owner})
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		defer m.Close()

		loaded, err := m.LoadCache(ctx, backend)
		if err != nil {
			t.Fatalf("LoadCache failed: %v", err)
		}
		if !loaded {
			t.Fatal("Expected a cached snapshot after reopening")
		}

		path, err := m.Store().Path(box)
		if err != nil {
			t.Fatalf("Path failed: %v", err)
		}
		if path != "Objects/Box" {
			t.Errorf("Expected path 'Objects/Box', got %q", path)
		}
		if m.Store().InventoryRoot() != root {
			t.Errorf("Expected inventory root %s, got %s", root, m.Store().InventoryRoot())
		}
	})

	t.Run("OwnersListed", func(t *testing.T) {
		backend := open(t)
		defer backend.Close()

		owners, err := backend.Owners(ctx)
		if err != nil {
			t.Fatalf("Owners failed: %v", err)
		}
		if len(owners) != 1 || owners[0] != owner {
			t.Errorf("Expected [%s], got %v", owner, owners)
		}
	})

	t.Run("DeleteSurvivesRestart", func(t *testing.T) {
		backend := open(t)
		if err := backend.Delete(ctx, owner); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		backend.Close()

		backend = open(t)
		defer backend.Close()

		m, err := manager.New(manager.Options{Transport: discardTransport{}, AgentID: owner})
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		defer m.Close()

		loaded, err := m.LoadCache(ctx, backend)
		if err != nil {
			t.Fatalf("LoadCache failed: %v", err)
		}
		if loaded {
			t.Error("Expected no snapshot after delete")
		}
	})
}
