package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/ratelimiter"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test fixtures
// ============================================================================

// fakeTransport records sent messages and optionally answers them.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []protocol.Message
	err    error
	onSend func(msg protocol.Message)
}

func (f *fakeTransport) Send(ctx context.Context, msg protocol.Message) error {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, msg)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return nil
}

func (f *fakeTransport) setHook(fn func(msg protocol.Message)) {
	f.mu.Lock()
	f.onSend = fn
	f.mu.Unlock()
}

func (f *fakeTransport) messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.sent...)
}

func (f *fakeTransport) last() protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// fixture is a manager over a store holding the inventory root.
type fixture struct {
	m         *Manager
	transport *fakeTransport
	owner     uuid.UUID
	root      uuid.UUID
}

func newFixture(t *testing.T, configure ...func(*Options)) *fixture {
	t.Helper()

	owner := uuid.New()
	root := uuid.New()
	transport := &fakeTransport{}

	opts := Options{
		Transport:      transport,
		AgentID:        owner,
		SessionID:      uuid.New(),
		AgentName:      "Test Resident",
		DefaultTimeout: time.Second,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	store := m.Store()
	store.SetInventoryRoot(root)
	require.NoError(t, store.Add(inventory.NewFolder(root, uuid.Nil, owner, "My Inventory", inventory.FolderTypeRoot)))

	return &fixture{m: m, transport: transport, owner: owner, root: root}
}

func (fx *fixture) addFolder(t *testing.T, parent uuid.UUID, name string, ptype inventory.FolderType) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, fx.m.Store().Add(inventory.NewFolder(id, parent, fx.owner, name, ptype)))
	return id
}

func (fx *fixture) addItem(t *testing.T, parent uuid.UUID, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	item := inventory.NewItem(id, parent, fx.owner, name, inventory.AssetTypeNotecard, inventory.InventoryTypeNotecard)
	require.NoError(t, fx.m.Store().Add(item))
	return id
}

func itemData(id, folder, owner uuid.UUID, name string) protocol.ItemData {
	return protocol.ItemData{
		ItemID:      id,
		FolderID:    folder,
		OwnerID:     owner,
		Name:        name,
		Type:        inventory.AssetTypeNotecard,
		InvType:     inventory.InventoryTypeNotecard,
		Permissions: inventory.FullPermissions(),
	}
}

// ============================================================================
// Construction
// ============================================================================

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	agent := uuid.New()
	m, err := New(Options{Transport: &fakeTransport{}, AgentID: agent})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, agent, m.Store().Owner())
	assert.Equal(t, agent, m.Session().AgentID)
	assert.Equal(t, DefaultTimeout, m.defaultTimeout)
	assert.Equal(t, 0, m.PendingCallbacks())
}

func TestSendAfterClose(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.m.Close())

	err := fx.m.RequestTaskInventory(context.Background(), 42)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSendFailureIsWrapped(t *testing.T) {
	fx := newFixture(t)
	boom := errors.New("link down")
	fx.transport.err = boom

	err := fx.m.RequestTaskInventory(context.Background(), 42)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "RequestTaskInventory")
}

func TestRateLimiterHonoursContext(t *testing.T) {
	fx := newFixture(t, func(o *Options) { o.Limiter = ratelimiter.New(1, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fx.m.RequestTaskInventory(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fx.transport.messages())
}

// ============================================================================
// Local operations
// ============================================================================

func TestCreateFolder(t *testing.T) {
	fx := newFixture(t)

	id, err := fx.m.CreateFolder(context.Background(), fx.root, "Projects", inventory.FolderTypeNone)
	require.NoError(t, err)

	folder, ok := fx.m.Store().GetFolder(id)
	require.True(t, ok, "folder is inserted before the server confirms it")
	assert.Equal(t, "Projects", folder.Name)

	msg, ok := fx.transport.last().(*protocol.CreateInventoryFolder)
	require.True(t, ok)
	assert.Equal(t, id, msg.FolderID)
	assert.Equal(t, fx.root, msg.ParentID)
	assert.Equal(t, inventory.FolderTypeNone, msg.FolderType)
	assert.Equal(t, fx.owner, msg.AgentID)
}

func TestCreateFolderSendFailureRemovesFolder(t *testing.T) {
	fx := newFixture(t)
	before := fx.m.Store().Stats().Folders

	fx.transport.err = errors.New("circuit down")
	id, err := fx.m.CreateFolder(context.Background(), fx.root, "Projects", inventory.FolderTypeNone)
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, before, fx.m.Store().Stats().Folders, "unsent folder must not stay in the store")

	contents, err := fx.m.Store().Contents(fx.root)
	require.NoError(t, err)
	assert.Empty(t, contents)
}

func TestCreateFolderDefaultName(t *testing.T) {
	fx := newFixture(t)

	id, err := fx.m.CreateFolder(context.Background(), fx.root, "", inventory.FolderTypeTrash)
	require.NoError(t, err)

	folder, ok := fx.m.Store().GetFolder(id)
	require.True(t, ok)
	assert.Equal(t, inventory.FolderTypeTrash.String(), folder.Name)
}

func TestMoveAndRenameItem(t *testing.T) {
	fx := newFixture(t)
	a := fx.addFolder(t, fx.root, "A", inventory.FolderTypeNone)
	b := fx.addFolder(t, fx.root, "B", inventory.FolderTypeNone)
	item := fx.addItem(t, a, "Note")

	require.NoError(t, fx.m.MoveItem(context.Background(), item, b, ""))
	parent, ok := fx.m.Store().Parent(item)
	require.True(t, ok)
	assert.Equal(t, b, parent.ID)

	msg := fx.transport.last().(*protocol.MoveInventoryItem)
	require.Len(t, msg.Moves, 1)
	assert.Equal(t, protocol.ItemMove{ItemID: item, FolderID: b}, msg.Moves[0])

	require.NoError(t, fx.m.RenameItem(context.Background(), item, "Renamed"))
	stored, _ := fx.m.Store().GetItem(item)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, b, stored.ParentID)

	err := fx.m.RenameItem(context.Background(), uuid.New(), "x")
	assert.True(t, inventory.IsErrorCode(err, inventory.ErrNodeNotKnown))
}

func TestMoveFolderRejectsCycle(t *testing.T) {
	fx := newFixture(t)
	a := fx.addFolder(t, fx.root, "A", inventory.FolderTypeNone)
	b := fx.addFolder(t, a, "B", inventory.FolderTypeNone)

	err := fx.m.MoveFolder(context.Background(), a, b, "")
	assert.True(t, inventory.IsErrorCode(err, inventory.ErrInvalidArgument))
	assert.Empty(t, fx.transport.messages(), "nothing is sent for a rejected move")
}

func TestMoveFolderWithRename(t *testing.T) {
	fx := newFixture(t)
	a := fx.addFolder(t, fx.root, "A", inventory.FolderTypeNone)
	b := fx.addFolder(t, fx.root, "B", inventory.FolderTypeNone)

	require.NoError(t, fx.m.MoveFolder(context.Background(), b, a, "Inner"))

	msg, ok := fx.transport.last().(*protocol.UpdateInventoryFolder)
	require.True(t, ok)
	require.Len(t, msg.Folders, 1)
	assert.Equal(t, a, msg.Folders[0].ParentID)
	assert.Equal(t, "Inner", msg.Folders[0].Name)

	path, err := fx.m.Store().Path(b)
	require.NoError(t, err)
	assert.Equal(t, "A/Inner", path)

	require.NoError(t, fx.m.RenameFolder(context.Background(), a, "Outer"))
	path, _ = fx.m.Store().Path(b)
	assert.Equal(t, "Outer/Inner", path)
}

func TestRemoveOperations(t *testing.T) {
	fx := newFixture(t)
	folder := fx.addFolder(t, fx.root, "Box", inventory.FolderTypeNone)
	inner := fx.addItem(t, folder, "Inner")
	loose := fx.addItem(t, fx.root, "Loose")

	require.NoError(t, fx.m.RemoveItems(context.Background(), loose))
	assert.False(t, fx.m.Store().Contains(loose))
	assert.IsType(t, &protocol.RemoveInventoryItem{}, fx.transport.last())

	require.NoError(t, fx.m.RemoveFolders(context.Background(), folder))
	assert.False(t, fx.m.Store().Contains(folder))
	assert.False(t, fx.m.Store().Contains(inner), "removal cascades")
	assert.IsType(t, &protocol.RemoveInventoryFolder{}, fx.transport.last())

	sent := len(fx.transport.messages())
	require.NoError(t, fx.m.RemoveItems(context.Background()))
	require.NoError(t, fx.m.RemoveObjects(context.Background(), nil, nil))
	assert.Len(t, fx.transport.messages(), sent, "empty removals send nothing")

	unknown := uuid.New()
	require.NoError(t, fx.m.RemoveObjects(context.Background(), []uuid.UUID{unknown}, nil))
	msg := fx.transport.last().(*protocol.RemoveInventoryObjects)
	assert.Equal(t, []uuid.UUID{unknown}, msg.FolderIDs)
}

func TestEmptyTrash(t *testing.T) {
	fx := newFixture(t)

	err := fx.m.EmptyTrash(context.Background())
	assert.True(t, inventory.IsErrorCode(err, inventory.ErrFolderNotKnown))

	trash := fx.addFolder(t, fx.root, "Trash", inventory.FolderTypeTrash)
	junk := fx.addFolder(t, trash, "Junk", inventory.FolderTypeNone)
	fx.addItem(t, junk, "Old")
	fx.addItem(t, trash, "Older")

	require.NoError(t, fx.m.EmptyTrash(context.Background()))

	count, ok := fx.m.Store().ChildCount(trash)
	require.True(t, ok, "the trash folder itself stays")
	assert.Equal(t, 0, count)

	msg := fx.transport.last().(*protocol.PurgeInventoryDescendents)
	assert.Equal(t, trash, msg.FolderID)
	assert.Equal(t, 2, fx.m.Store().Stats().Folders)
}

func TestUpdateItem(t *testing.T) {
	fx := newFixture(t)
	id := fx.addItem(t, fx.root, "Note")

	item, _ := fx.m.Store().GetItem(id)
	item.Description = "edited"
	require.NoError(t, fx.m.UpdateItem(context.Background(), item))

	stored, _ := fx.m.Store().GetItem(id)
	assert.Equal(t, "edited", stored.Description)

	msg := fx.transport.last().(*protocol.UpdateInventoryItem)
	require.Len(t, msg.Items, 1)
	assert.Equal(t, uint32(0), msg.Items[0].CallbackID)
	assert.Equal(t, "edited", msg.Items[0].Description)

	assert.Error(t, fx.m.UpdateItem(context.Background(), nil))
}

// ============================================================================
// Inbound handling
// ============================================================================

func TestHandleDescendents(t *testing.T) {
	fx := newFixture(t)
	child := uuid.New()
	item := uuid.New()

	var updated []uuid.UUID
	unsubscribe := fx.m.OnFolderUpdated(func(id uuid.UUID) { updated = append(updated, id) })
	defer unsubscribe()

	fx.m.HandleMessage(context.Background(), &protocol.InventoryDescendents{
		FolderID:    fx.root,
		OwnerID:     fx.owner,
		Version:     3,
		Descendents: 2,
		Folders: []protocol.FolderData{
			{FolderID: child, ParentID: fx.root, OwnerID: fx.owner, Name: "Child", Type: inventory.FolderTypeNone, Version: inventory.FolderVersionUnknown},
		},
		Items: []protocol.ItemData{itemData(item, child, fx.owner, "Note")},
	})

	assert.Equal(t, []uuid.UUID{fx.root}, updated)
	path, err := fx.m.Store().Path(item)
	require.NoError(t, err)
	assert.Equal(t, "Child/Note", path)

	root, _ := fx.m.Store().GetFolder(fx.root)
	assert.Equal(t, int32(3), root.Version)

	// Older report arrives late
	fx.m.HandleMessage(context.Background(), &protocol.InventoryDescendents{
		FolderID: fx.root,
		Version:  2,
		Folders:  []protocol.FolderData{{FolderID: uuid.New(), ParentID: fx.root, Name: "Stale"}},
	})
	assert.Len(t, updated, 1)
	count, _ := fx.m.Store().ChildCount(fx.root)
	assert.Equal(t, 1, count)
}

func TestHandleDescendentsOfUnknownFolder(t *testing.T) {
	fx := newFixture(t)
	unknown := uuid.New()
	item := uuid.New()

	fx.m.HandleMessage(context.Background(), &protocol.InventoryDescendents{
		FolderID: unknown,
		Version:  1,
		Items:    []protocol.ItemData{itemData(item, unknown, fx.owner, "Early")},
	})
	assert.True(t, fx.m.Store().IsParked(item))

	fx.m.HandleMessage(context.Background(), &protocol.BulkUpdateInventory{
		Folders: []protocol.FolderData{{FolderID: unknown, ParentID: fx.root, OwnerID: fx.owner, Name: "Late"}},
	})
	path, err := fx.m.Store().Path(item)
	require.NoError(t, err)
	assert.Equal(t, "Late/Early", path)
}

func TestFolderOnItemChannelIsSkipped(t *testing.T) {
	fx := newFixture(t)
	id := uuid.New()

	received := 0
	defer fx.m.OnItemReceived(func(*inventory.Item) { received++ })()

	data := itemData(id, fx.root, fx.owner, "Sneaky")
	data.InvType = inventory.InventoryTypeCategory
	fx.m.HandleMessage(context.Background(), &protocol.FetchInventoryReply{Items: []protocol.ItemData{data}})

	assert.False(t, fx.m.Store().Contains(id))
	assert.Equal(t, 0, received)
}

func TestHandleMovedAndRemoved(t *testing.T) {
	fx := newFixture(t)
	a := fx.addFolder(t, fx.root, "A", inventory.FolderTypeNone)
	item := fx.addItem(t, fx.root, "Note")

	fx.m.HandleMessage(context.Background(), &protocol.InventoryMoved{
		Moves: []protocol.InventoryMove{
			{ItemID: item, FolderID: a, NewName: "Moved"},
			{ItemID: uuid.New(), FolderID: a},
		},
	})
	path, err := fx.m.Store().Path(item)
	require.NoError(t, err)
	assert.Equal(t, "A/Moved", path)

	fx.m.HandleMessage(context.Background(), &protocol.InventoryRemoved{
		FolderIDs: []uuid.UUID{a},
		ItemIDs:   []uuid.UUID{uuid.New()},
	})
	assert.False(t, fx.m.Store().Contains(a))
	assert.False(t, fx.m.Store().Contains(item))
}

func TestHandleSaveAssetIntoInventory(t *testing.T) {
	fx := newFixture(t)
	item := fx.addItem(t, fx.root, "Script")
	asset := uuid.New()

	fx.m.HandleMessage(context.Background(), &protocol.SaveAssetIntoInventory{ItemID: item, NewAssetID: asset})

	stored, _ := fx.m.Store().GetItem(item)
	assert.Equal(t, asset, stored.AssetID)

	// Unknown items are ignored
	fx.m.HandleMessage(context.Background(), &protocol.SaveAssetIntoInventory{ItemID: uuid.New(), NewAssetID: asset})
}

func TestTaskNotifications(t *testing.T) {
	fx := newFixture(t)

	var replies []TaskInventoryReply
	defer fx.m.OnTaskInventoryReply(func(r TaskInventoryReply) { replies = append(replies, r) })()
	var taskItems []TaskItem
	defer fx.m.OnTaskItemReceived(func(i TaskItem) { taskItems = append(taskItems, i) })()

	task := uuid.New()
	fx.m.HandleMessage(context.Background(), &protocol.ReplyTaskInventory{TaskID: task, Serial: 7, Filename: "inventory_abc.tmp"})
	require.Len(t, replies, 1)
	assert.Equal(t, TaskInventoryReply{TaskID: task, Serial: 7, Filename: "inventory_abc.tmp"}, replies[0])

	item := uuid.New()
	fx.m.HandleMessage(context.Background(), &protocol.BulkUpdateInventory{
		TransactionID: uuid.New(),
		Items:         []protocol.ItemData{itemData(item, fx.root, fx.owner, "From box")},
	})
	require.Len(t, taskItems, 1)
	assert.Equal(t, item, taskItems[0].ItemID)
	assert.Equal(t, fx.root, taskItems[0].FolderID)
	assert.True(t, fx.m.Store().Contains(item))

	// Without a transaction id the bulk item is not a task delivery
	fx.m.HandleMessage(context.Background(), &protocol.BulkUpdateInventory{
		Items: []protocol.ItemData{itemData(uuid.New(), fx.root, fx.owner, "Plain")},
	})
	assert.Len(t, taskItems, 1)
}

func TestUnrelatedMessagesIgnored(t *testing.T) {
	fx := newFixture(t)
	fx.m.HandleMessage(context.Background(), &protocol.ImprovedInstantMessage{Dialog: protocol.DialogMessageFromAgent})
	fx.m.HandleMessage(context.Background(), &protocol.FetchInventory{})
	fx.m.HandleMessage(context.Background(), nil)
	assert.Empty(t, fx.transport.messages())
}
