package manager

import (
	"context"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
)

// HandleMessage applies one decoded inbound message. The transport calls it
// for every message it receives; unrelated message types are ignored.
//
// Malformed records are logged and skipped; the rest of the message is still
// applied.
func (m *Manager) HandleMessage(ctx context.Context, msg protocol.Message) {
	switch msg := msg.(type) {
	case *protocol.InventoryDescendents:
		m.handleDescendents(msg)
	case *protocol.FetchInventoryReply:
		m.handleFetchReply(msg)
	case *protocol.UpdateCreateInventoryItem:
		m.handleUpdateCreate(msg)
	case *protocol.BulkUpdateInventory:
		m.handleBulkUpdate(msg)
	case *protocol.InventoryMoved:
		m.handleMoved(msg)
	case *protocol.InventoryRemoved:
		m.handleRemoved(msg)
	case *protocol.SaveAssetIntoInventory:
		m.handleSaveAsset(msg)
	case *protocol.ReplyTaskInventory:
		m.taskInventoryReply.Emit(TaskInventoryReply{
			TaskID:   msg.TaskID,
			Serial:   msg.Serial,
			Filename: msg.Filename,
		})
	case *protocol.ImprovedInstantMessage:
		if msg.IsOffer() {
			m.handleOffer(ctx, msg)
		}
	case nil:
		logger.Debug("Ignoring nil inventory message")
	default:
		logger.Debug("Ignoring %s message", msg.Type())
	}
}

// onStoreEvent turns store events into folder notifications and advances
// path searches. It runs after the store lock is released.
func (m *Manager) onStoreEvent(event inventory.Event) {
	if event.Kind != inventory.EventFolderUpdated {
		return
	}
	folderID := inventory.IDOf(event.Node)
	m.folderUpdated.Emit(folderID)
	m.advanceSearches(folderID)
}

func (m *Manager) handleDescendents(msg *protocol.InventoryDescendents) {
	folders := make([]*inventory.Folder, 0, len(msg.Folders))
	for _, data := range msg.Folders {
		folders = append(folders, data.ToFolder())
	}
	items := make([]*inventory.Item, 0, len(msg.Items))
	for _, data := range msg.Items {
		if data.IsFolder() {
			logger.Error("Folder %s delivered as an item in descendents of %s, skipping", data.ItemID, msg.FolderID)
			continue
		}
		items = append(items, data.ToItem())
	}

	var applied bool
	err := m.observe("reconcile", func() error {
		var err error
		applied, err = m.store.ReconcileDescendants(msg.FolderID, msg.Version, msg.Descendents, folders, items)
		return err
	})
	switch {
	case err != nil && inventory.IsErrorCode(err, inventory.ErrFolderNotKnown):
		logger.Debug("Descendents of unknown folder %s parked (%d folders, %d items)", msg.FolderID, len(folders), len(items))
	case err != nil:
		logger.Warn("Failed to apply descendents of %s: %v", msg.FolderID, err)
	case !applied:
		m.metrics.RecordStaleReport()
	}
}

// addItem stores an item block and returns the stored copy.
func (m *Manager) addItem(data protocol.ItemData, channel string) (*inventory.Item, bool) {
	if data.IsFolder() {
		logger.Error("Folder %s delivered through %s, skipping", data.ItemID, channel)
		return nil, false
	}

	item := data.ToItem()
	if err := m.observe("add", func() error { return m.store.Add(item) }); err != nil {
		logger.Error("Failed to store item %s from %s: %v", data.ItemID, channel, err)
		return nil, false
	}

	if stored, ok := m.store.GetItem(item.ID); ok {
		return stored, true
	}
	// Parked until its folder arrives
	return item, true
}

func (m *Manager) handleFetchReply(msg *protocol.FetchInventoryReply) {
	for _, data := range msg.Items {
		if item, ok := m.addItem(data, "FetchInventoryReply"); ok {
			m.itemReceived.Emit(item)
		}
	}
}

func (m *Manager) handleUpdateCreate(msg *protocol.UpdateCreateInventoryItem) {
	for _, data := range msg.Items {
		if !msg.SimApproved {
			logger.Warn("Server rejected item %q (callback %d)", data.Name, data.CallbackID)
			m.resolveCallback(data.CallbackID, false, nil)
			continue
		}

		item, ok := m.addItem(data, "UpdateCreateInventoryItem")
		if !ok {
			m.resolveCallback(data.CallbackID, false, nil)
			continue
		}
		m.resolveCallback(data.CallbackID, true, item)
		m.itemReceived.Emit(item)
	}
}

func (m *Manager) handleBulkUpdate(msg *protocol.BulkUpdateInventory) {
	for _, data := range msg.Folders {
		if data.FolderID == uuid.Nil {
			continue
		}
		folder := data.ToFolder()
		if err := m.observe("add", func() error { return m.store.Add(folder) }); err != nil {
			logger.Error("Failed to store folder %s from BulkUpdateInventory: %v", data.FolderID, err)
		}
	}

	for _, data := range msg.Items {
		if data.ItemID == uuid.Nil {
			continue
		}
		item, ok := m.addItem(data, "BulkUpdateInventory")
		if !ok {
			m.resolveCallback(data.CallbackID, false, nil)
			continue
		}

		resolved := m.resolveCallback(data.CallbackID, true, item)
		m.itemReceived.Emit(item)

		if !resolved && data.CallbackID == 0 && msg.TransactionID != uuid.Nil {
			m.taskItemReceived.Emit(TaskItem{
				ItemID:        item.ID,
				FolderID:      item.ParentID,
				CreatorID:     item.CreatorID,
				AssetID:       item.AssetID,
				InventoryType: item.InventoryType,
			})
		}
	}
}

func (m *Manager) handleMoved(msg *protocol.InventoryMoved) {
	for _, move := range msg.Moves {
		err := m.observe("move", func() error { return m.store.MoveByID(move.ItemID, move.FolderID, move.NewName) })
		switch {
		case err == nil:
		case inventory.IsErrorCode(err, inventory.ErrNodeNotKnown):
			logger.Debug("Move of unknown node %s ignored", move.ItemID)
		default:
			logger.Warn("Failed to move %s to %s: %v", move.ItemID, move.FolderID, err)
		}
	}
}

func (m *Manager) handleRemoved(msg *protocol.InventoryRemoved) {
	ids := make([]uuid.UUID, 0, len(msg.FolderIDs)+len(msg.ItemIDs))
	ids = append(ids, msg.FolderIDs...)
	ids = append(ids, msg.ItemIDs...)

	for _, id := range ids {
		err := m.observe("remove", func() error { return m.store.Remove(id) })
		if err != nil && inventory.IsErrorCode(err, inventory.ErrNodeNotKnown) {
			logger.Debug("Removal of unknown node %s ignored", id)
		} else if err != nil {
			logger.Warn("Failed to remove %s: %v", id, err)
		}
	}
}

func (m *Manager) handleSaveAsset(msg *protocol.SaveAssetIntoInventory) {
	item, ok := m.store.GetItem(msg.ItemID)
	if !ok {
		logger.Debug("New asset %s for unknown item %s ignored", msg.NewAssetID, msg.ItemID)
		return
	}
	item.AssetID = msg.NewAssetID
	if err := m.observe("add", func() error { return m.store.Add(item) }); err != nil {
		logger.Warn("Failed to update asset of item %s: %v", msg.ItemID, err)
	}
}
