package inventory

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triple struct {
	ID     uuid.UUID
	Name   string
	Parent uuid.UUID
}

func triples(store *Store) []triple {
	var out []triple
	store.Walk(func(node Node, _ int) bool {
		base := node.Base()
		out = append(out, triple{base.ID, base.Name, base.ParentID})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func buildSampleTree(t *testing.T) (*Store, uuid.UUID) {
	t.Helper()
	store, root := newRootedStore(t)
	library := uuid.New()
	require.NoError(t, store.Add(NewFolder(library, uuid.Nil, uuid.New(), "Library", FolderTypeRoot)))
	store.SetLibraryRoot(library)

	objects := uuid.New()
	require.NoError(t, store.Add(NewFolder(objects, root, testOwner, "Objects", FolderTypeObject)))
	_, err := store.ReconcileDescendants(objects, 7, 2, nil, nil)
	require.NoError(t, err)

	hat := NewItem(uuid.New(), objects, testOwner, "Hat", AssetTypeObject, InventoryTypeAttachment)
	hat.AssetID = uuid.New()
	hat.CreatorID = uuid.New()
	hat.Description = "a fine hat"
	hat.SalePrice = 10
	hat.SaleType = SaleCopy
	hat.CreationDate = time.Unix(1700000000, 0).UTC()
	hat.Permissions = Permissions{Base: PermissionAll, Owner: PermissionModify | PermissionCopy, NextOwner: PermissionCopy}
	SetAttachmentPoint(hat, 2)
	require.NoError(t, store.Add(hat))

	require.NoError(t, store.Add(item(uuid.New(), objects, "Notes")))
	require.NoError(t, store.Add(item(uuid.New(), library, "Welcome")))
	return store, hat.ID
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, hatID := buildSampleTree(t)

	var buf bytes.Buffer
	require.NoError(t, store.Save(&buf))

	restored := NewStore(testOwner)
	require.NoError(t, restored.Restore(bytes.NewReader(buf.Bytes())))

	assert.Equal(t, triples(store), triples(restored))
	assert.Equal(t, store.Stats(), restored.Stats())
	assert.Equal(t, store.InventoryRoot(), restored.InventoryRoot())
	assert.Equal(t, store.LibraryRoot(), restored.LibraryRoot())

	original, _ := store.GetItem(hatID)
	hat, ok := restored.GetItem(hatID)
	require.True(t, ok)
	assert.Equal(t, original.AssetID, hat.AssetID)
	assert.Equal(t, original.CreatorID, hat.CreatorID)
	assert.Equal(t, original.Description, hat.Description)
	assert.Equal(t, original.Permissions, hat.Permissions)
	assert.Equal(t, original.SaleType, hat.SaleType)
	assert.Equal(t, original.SalePrice, hat.SalePrice)
	assert.True(t, original.CreationDate.Equal(hat.CreationDate))
	assert.Equal(t, KindAttachment, hat.Kind)
	assert.Equal(t, uint8(2), AttachmentPoint(hat))

	objects := restored.FindFolderForType(FolderTypeObject)
	folder, ok := restored.GetFolder(objects)
	require.True(t, ok)
	assert.Equal(t, int32(7), folder.Version)
	assert.Equal(t, int32(2), folder.DescendentCount)

	// The restored store keeps reconciling
	_, err := restored.ReconcileDescendants(objects, 6, 0, nil, nil)
	require.NoError(t, err)
	folder, _ = restored.GetFolder(objects)
	assert.Equal(t, int32(7), folder.Version)
}

func TestSnapshotLeavesOutParkedNodes(t *testing.T) {
	store, root := newRootedStore(t)
	orphan := uuid.New()
	require.NoError(t, store.Add(item(uuid.New(), root, "kept")))
	require.NoError(t, store.Add(item(orphan, uuid.New(), "orphan")))

	var buf bytes.Buffer
	require.NoError(t, store.Save(&buf))
	assert.True(t, store.IsParked(orphan))

	restored := NewStore(testOwner)
	require.NoError(t, restored.Restore(&buf))
	assert.Equal(t, Stats{Folders: 1, Items: 1}, restored.Stats())
}

func TestSnapshotRestoreErrors(t *testing.T) {
	store, _ := buildSampleTree(t)
	var buf bytes.Buffer
	require.NoError(t, store.Save(&buf))
	data := buf.Bytes()

	t.Run("OwnerMismatch", func(t *testing.T) {
		other := NewStore(uuid.New())
		err := other.Restore(bytes.NewReader(data))
		assert.True(t, IsErrorCode(err, ErrOwnerMismatch))
	})

	t.Run("NilOwnerAdoptsSnapshotOwner", func(t *testing.T) {
		viewer := NewStore(uuid.Nil)
		require.NoError(t, viewer.Restore(bytes.NewReader(data)))
		assert.Equal(t, testOwner, viewer.Owner())
	})

	t.Run("BadMagic", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[0] = 'X'
		err := NewStore(testOwner).Restore(bytes.NewReader(corrupt))
		assert.True(t, IsErrorCode(err, ErrCorruptSnapshot))
	})

	t.Run("TruncatedKeepsCurrentContents", func(t *testing.T) {
		target, root := newRootedStore(t)
		err := target.Restore(bytes.NewReader(data[:len(data)/2]))
		assert.True(t, IsErrorCode(err, ErrCorruptSnapshot))
		assert.True(t, target.Contains(root))
	})

	t.Run("Empty", func(t *testing.T) {
		err := NewStore(testOwner).Restore(bytes.NewReader(nil))
		assert.True(t, IsErrorCode(err, ErrCorruptSnapshot))
	})
}
