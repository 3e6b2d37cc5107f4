package manager

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// FetchItem
// ============================================================================

func TestFetchItemCompletes(t *testing.T) {
	fx := newFixture(t)
	id := uuid.New()

	fx.transport.setHook(func(msg protocol.Message) {
		req, ok := msg.(*protocol.FetchInventory)
		if !ok {
			return
		}
		go fx.m.HandleMessage(context.Background(), &protocol.FetchInventoryReply{
			AgentID: fx.owner,
			Items:   []protocol.ItemData{itemData(req.Items[0].ItemID, fx.root, fx.owner, "Fetched")},
		})
	})

	item, ok := fx.m.FetchItem(context.Background(), id, fx.owner, time.Second)
	require.True(t, ok)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, "Fetched", item.Name)
	assert.True(t, fx.m.Store().Contains(id))
	assert.Equal(t, 0, fx.m.PendingCallbacks())
}

func TestFetchItemIgnoresOtherItems(t *testing.T) {
	fx := newFixture(t)

	fx.transport.setHook(func(msg protocol.Message) {
		fx.m.HandleMessage(context.Background(), &protocol.FetchInventoryReply{
			Items: []protocol.ItemData{itemData(uuid.New(), fx.root, fx.owner, "Other")},
		})
	})

	_, ok := fx.m.FetchItem(context.Background(), uuid.New(), fx.owner, 30*time.Millisecond)
	assert.False(t, ok)
}

func TestFetchItemTimeoutIsNotAnError(t *testing.T) {
	fx := newFixture(t)

	start := time.Now()
	item, ok := fx.m.FetchItem(context.Background(), uuid.New(), fx.owner, 50*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, item)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond, "the wait honours its deadline")
	assert.Len(t, fx.transport.messages(), 1, "the request is still sent")
}

func TestFetchItemCancelled(t *testing.T) {
	fx := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, ok := fx.m.FetchItem(ctx, uuid.New(), fx.owner, 10*time.Second)
	assert.False(t, ok)
	assert.Equal(t, 0, fx.m.PendingCallbacks())
}

// Many concurrent waits that all time out leave nothing registered.
func TestConcurrentFetchTimeoutsDeregister(t *testing.T) {
	fx := newFixture(t)

	const callers = 1000
	var wg sync.WaitGroup
	var found atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := fx.m.FetchItem(context.Background(), uuid.New(), fx.owner, 50*time.Millisecond); ok {
				found.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), found.Load())
	assert.Equal(t, 0, fx.m.PendingCallbacks())
	assert.Equal(t, 0, fx.m.itemReceived.Len())
	assert.Len(t, fx.transport.messages(), callers)
}

// ============================================================================
// FolderContents
// ============================================================================

func TestFolderContentsCompletes(t *testing.T) {
	fx := newFixture(t)
	item := uuid.New()

	fx.transport.setHook(func(msg protocol.Message) {
		req, ok := msg.(*protocol.FetchInventoryDescendents)
		if !ok {
			return
		}
		assert.True(t, req.FetchFolders)
		assert.True(t, req.FetchItems)
		go fx.m.HandleMessage(context.Background(), &protocol.InventoryDescendents{
			FolderID:    req.FolderID,
			Version:     1,
			Descendents: 1,
			Items:       []protocol.ItemData{itemData(item, req.FolderID, fx.owner, "Note")},
		})
	})

	nodes, err := fx.m.FolderContents(context.Background(), fx.root, fx.owner, true, true, protocol.SortByName, time.Second)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, item, inventory.IDOf(nodes[0]))
	assert.Equal(t, 0, fx.m.PendingCallbacks())
}

func TestFolderContentsTimeout(t *testing.T) {
	fx := newFixture(t)

	nodes, err := fx.m.FolderContents(context.Background(), fx.root, fx.owner, true, true, protocol.SortByName, 30*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, nodes)
	assert.Equal(t, 0, fx.m.folderUpdated.Len())
}

// ============================================================================
// Callback ids
// ============================================================================

func createdItem(req *protocol.CreateInventoryItem, id, owner uuid.UUID) protocol.ItemData {
	data := itemData(id, req.FolderID, owner, req.Name)
	data.CallbackID = req.CallbackID
	data.Type = req.AssetType
	data.InvType = req.InvType
	return data
}

func TestCreateItemCallbacksAreMultiplexed(t *testing.T) {
	fx := newFixture(t)

	results := make(map[string]uuid.UUID)
	var mu sync.Mutex
	callbackFor := func(name string) ItemCreatedCallback {
		return func(success bool, item *inventory.Item) {
			require.True(t, success)
			mu.Lock()
			results[name] = item.ID
			mu.Unlock()
		}
	}

	for _, name := range []string{"first", "second"} {
		require.NoError(t, fx.m.RequestCreateItem(context.Background(), CreateItemRequest{
			ParentID:      fx.root,
			Name:          name,
			AssetType:     inventory.AssetTypeNotecard,
			InventoryType: inventory.InventoryTypeNotecard,
		}, callbackFor(name)))
	}
	assert.Equal(t, 2, fx.m.PendingCallbacks())

	sent := fx.transport.messages()
	require.Len(t, sent, 2)
	first := sent[0].(*protocol.CreateInventoryItem)
	second := sent[1].(*protocol.CreateInventoryItem)
	assert.NotEqual(t, first.CallbackID, second.CallbackID)
	assert.NotZero(t, first.CallbackID)

	firstID, secondID := uuid.New(), uuid.New()

	// Replies arrive out of order
	reply := &protocol.UpdateCreateInventoryItem{
		SimApproved: true,
		Items:       []protocol.ItemData{createdItem(second, secondID, fx.owner)},
	}
	fx.m.HandleMessage(context.Background(), reply)
	fx.m.HandleMessage(context.Background(), &protocol.UpdateCreateInventoryItem{
		SimApproved: true,
		Items:       []protocol.ItemData{createdItem(first, firstID, fx.owner)},
	})

	assert.Equal(t, map[string]uuid.UUID{"first": firstID, "second": secondID}, results)
	assert.Equal(t, 0, fx.m.PendingCallbacks())

	// A duplicate reply only updates the store
	fx.m.HandleMessage(context.Background(), reply)
	assert.Len(t, results, 2)
	assert.True(t, fx.m.Store().Contains(secondID))
}

func TestCallbackIDsWrapAndSkipPending(t *testing.T) {
	fx := newFixture(t)
	noop := func(bool, *inventory.Item) {}

	fx.m.mu.Lock()
	fx.m.nextCallback = 0
	fx.m.mu.Unlock()
	one := fx.m.registerCallback(noop)
	require.Equal(t, uint32(1), one)

	fx.m.mu.Lock()
	fx.m.nextCallback = math.MaxUint32 - 1
	fx.m.mu.Unlock()

	assert.Equal(t, uint32(math.MaxUint32), fx.m.registerCallback(noop))
	assert.Equal(t, uint32(2), fx.m.registerCallback(noop), "0 is reserved and 1 is still pending")
	assert.Equal(t, uint32(0), fx.m.registerCallback(nil), "no callback, no id")
	assert.Equal(t, 3, fx.m.PendingCallbacks())
}

func TestPanickingCallbackIsRecovered(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.m.RequestCreateItem(context.Background(), CreateItemRequest{
		ParentID: fx.root,
		Name:     "boom",
	}, func(bool, *inventory.Item) { panic("listener bug") }))

	req := fx.transport.last().(*protocol.CreateInventoryItem)
	id := uuid.New()
	assert.NotPanics(t, func() {
		fx.m.HandleMessage(context.Background(), &protocol.UpdateCreateInventoryItem{
			SimApproved: true,
			Items:       []protocol.ItemData{createdItem(req, id, fx.owner)},
		})
	})
	assert.True(t, fx.m.Store().Contains(id))
	assert.Equal(t, 0, fx.m.PendingCallbacks())
}

func TestCreateItemBounded(t *testing.T) {
	fx := newFixture(t)
	id := uuid.New()

	fx.transport.setHook(func(msg protocol.Message) {
		req, ok := msg.(*protocol.CreateInventoryItem)
		if !ok {
			return
		}
		go fx.m.HandleMessage(context.Background(), &protocol.UpdateCreateInventoryItem{
			SimApproved:   true,
			TransactionID: req.TransactionID,
			Items:         []protocol.ItemData{createdItem(req, id, fx.owner)},
		})
	})

	item, ok := fx.m.CreateItem(context.Background(), CreateItemRequest{
		ParentID:      fx.root,
		Name:          "Shopping list",
		AssetType:     inventory.AssetTypeNotecard,
		InventoryType: inventory.InventoryTypeNotecard,
		NextOwnerMask: inventory.PermissionCopy,
	}, time.Second)
	require.True(t, ok)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, "Shopping list", item.Name)
	assert.Equal(t, 0, fx.m.PendingCallbacks())
}

func TestCreateItemRejected(t *testing.T) {
	fx := newFixture(t)

	fx.transport.setHook(func(msg protocol.Message) {
		req, ok := msg.(*protocol.CreateInventoryItem)
		if !ok {
			return
		}
		go fx.m.HandleMessage(context.Background(), &protocol.UpdateCreateInventoryItem{
			SimApproved: false,
			Items:       []protocol.ItemData{createdItem(req, uuid.New(), fx.owner)},
		})
	})

	start := time.Now()
	item, ok := fx.m.CreateItem(context.Background(), CreateItemRequest{ParentID: fx.root, Name: "nope"}, 5*time.Second)
	assert.False(t, ok)
	assert.Nil(t, item)
	assert.Less(t, time.Since(start), 5*time.Second, "rejection ends the wait early")
	assert.Equal(t, 0, fx.m.Store().Stats().Items)
}

func TestCreateItemTimeoutDeregisters(t *testing.T) {
	fx := newFixture(t)

	_, ok := fx.m.CreateItem(context.Background(), CreateItemRequest{ParentID: fx.root, Name: "lost"}, 20*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, 0, fx.m.PendingCallbacks())
}

func TestCopyItemBounded(t *testing.T) {
	fx := newFixture(t)
	source := fx.addItem(t, fx.root, "Original")
	target := fx.addFolder(t, fx.root, "Copies", inventory.FolderTypeNone)
	copyID := uuid.New()

	fx.transport.setHook(func(msg protocol.Message) {
		req, ok := msg.(*protocol.CopyInventoryItem)
		if !ok {
			return
		}
		entry := req.Items[0]
		data := itemData(copyID, entry.NewFolderID, fx.owner, entry.NewName)
		data.CallbackID = entry.CallbackID
		go fx.m.HandleMessage(context.Background(), &protocol.BulkUpdateInventory{
			TransactionID: uuid.New(),
			Items:         []protocol.ItemData{data},
		})
	})

	var taskItems int
	defer fx.m.OnTaskItemReceived(func(TaskItem) { taskItems++ })()

	item, ok := fx.m.CopyItem(context.Background(), source, target, "", time.Second)
	require.True(t, ok)
	assert.Equal(t, copyID, item.ID)
	assert.Equal(t, "Original", item.Name, "the copy keeps the original name")
	assert.Equal(t, target, item.ParentID)
	assert.Equal(t, 0, taskItems, "a correlated copy is not a task delivery")

	req := fx.transport.last().(*protocol.CopyInventoryItem)
	assert.Equal(t, fx.owner, req.Items[0].OldAgentID)
	assert.Equal(t, source, req.Items[0].OldItemID)
}

func TestCreateLink(t *testing.T) {
	fx := newFixture(t)
	folder := fx.addFolder(t, fx.root, "Outfit", inventory.FolderTypeOutfit)
	item := fx.addItem(t, fx.root, "Shirt")

	target, _ := fx.m.Store().Get(item)
	require.NoError(t, fx.m.CreateLink(context.Background(), folder, target, "", "", nil))
	link := fx.transport.last().(*protocol.LinkInventoryItem)
	assert.Equal(t, inventory.AssetTypeLink, link.AssetType)
	assert.Equal(t, inventory.InventoryTypeNotecard, link.InvType)
	assert.Equal(t, item, link.OldItemID)
	assert.Equal(t, "Shirt", link.Name)
	assert.Equal(t, uint32(0), link.CallbackID)

	folderNode, _ := fx.m.Store().Get(folder)
	require.NoError(t, fx.m.CreateLink(context.Background(), fx.root, folderNode, "Outfit link", "", func(bool, *inventory.Item) {}))
	link = fx.transport.last().(*protocol.LinkInventoryItem)
	assert.Equal(t, inventory.AssetTypeLinkFolder, link.AssetType)
	assert.Equal(t, inventory.InventoryTypeCategory, link.InvType)
	assert.NotZero(t, link.CallbackID)
	assert.Equal(t, 1, fx.m.PendingCallbacks())

	assert.Error(t, fx.m.CreateLink(context.Background(), folder, nil, "", "", nil))
}

func TestRequestUpdateItemEcho(t *testing.T) {
	fx := newFixture(t)
	id := fx.addItem(t, fx.root, "Note")

	item, _ := fx.m.Store().GetItem(id)
	item.Name = "Renamed note"

	confirmed := make(chan *inventory.Item, 1)
	require.NoError(t, fx.m.RequestUpdateItem(context.Background(), item, func(ok bool, item *inventory.Item) {
		if ok {
			confirmed <- item
		}
	}))

	req := fx.transport.last().(*protocol.UpdateInventoryItem)
	fx.m.HandleMessage(context.Background(), &protocol.UpdateCreateInventoryItem{
		SimApproved: true,
		Items:       req.Items,
	})

	select {
	case echoed := <-confirmed:
		assert.Equal(t, "Renamed note", echoed.Name)
	default:
		t.Fatal("update echo did not resolve the callback")
	}
}

func TestSendFailureReleasesCallback(t *testing.T) {
	fx := newFixture(t)
	fx.transport.err = assert.AnError

	err := fx.m.RequestCreateItem(context.Background(), CreateItemRequest{ParentID: fx.root}, func(bool, *inventory.Item) {})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, fx.m.PendingCallbacks())
}
