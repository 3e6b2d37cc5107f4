package e2e

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/test/e2e/framework"
)

// runOnAllConfigs is a helper that runs a test on all configurations
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	for _, config := range AllConfigurations() {
		t.Run(config.Name, func(t *testing.T) {
			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}

// runOnS3Configs runs a test on the S3 configurations, skipping when
// Localstack is not reachable
func runOnS3Configs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping S3 tests in short mode")
	}
	if !CheckLocalstackAvailable(t) {
		t.Skip("Localstack not available")
	}

	helper := NewLocalstackHelper(t)
	defer helper.Cleanup()

	for _, config := range S3Configurations() {
		SetupS3Config(t, config, helper)
		t.Run(config.Name, func(t *testing.T) {
			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}

// seededInventory names the nodes of the tree built by seedInventory
type seededInventory struct {
	Objects   uuid.UUID
	Notecards uuid.UUID
	Clothes   uuid.UUID
	Shirts    uuid.UUID
	Trash     uuid.UUID
	Box       uuid.UUID
	Welcome   uuid.UUID
	RedShirt  uuid.UUID
	Junk      uuid.UUID
}

// seedInventory builds a small server-side inventory:
//
//	My Inventory/
//	  Objects/ [object]      Box
//	  Notecards/ [notecard]  Welcome
//	  Clothes/
//	    Shirts/              Red Shirt
//	  Trash/ [trash]         Junk
func seedInventory(grid *framework.TestGrid) seededInventory {
	var s seededInventory
	root := grid.Root()

	s.Objects = grid.Folder(root, "Objects", inventory.FolderTypeObject)
	s.Notecards = grid.Folder(root, "Notecards", inventory.FolderTypeNotecard)
	s.Clothes = grid.Folder(root, "Clothes", inventory.FolderTypeNone)
	s.Shirts = grid.Folder(s.Clothes, "Shirts", inventory.FolderTypeNone)
	s.Trash = grid.Folder(root, "Trash", inventory.FolderTypeTrash)

	s.Box = grid.Item(s.Objects, "Box")
	s.Welcome = grid.Item(s.Notecards, "Welcome")
	s.RedShirt = grid.Item(s.Shirts, "Red Shirt")
	s.Junk = grid.Item(s.Trash, "Junk")
	return s
}
