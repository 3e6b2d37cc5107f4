package manager

import (
	"context"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/callback"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
)

// ItemCreatedCallback receives the outcome of a create, copy, link or update
// request. item is nil when success is false.
type ItemCreatedCallback func(success bool, item *inventory.Item)

// registerCallback stores cb under a fresh callback id. Ids come from a
// wrapping counter; 0 means "no callback" and ids still pending are skipped.
func (m *Manager) registerCallback(cb ItemCreatedCallback) uint32 {
	if cb == nil {
		return 0
	}

	m.mu.Lock()
	var id uint32
	for {
		m.nextCallback++
		id = m.nextCallback
		if id == 0 {
			continue
		}
		if _, taken := m.callbacks[id]; !taken {
			break
		}
	}
	m.callbacks[id] = cb
	m.mu.Unlock()

	m.reportPending()
	return id
}

// popCallback removes and returns the callback registered under id.
func (m *Manager) popCallback(id uint32) (ItemCreatedCallback, bool) {
	if id == 0 {
		return nil, false
	}

	m.mu.Lock()
	cb, ok := m.callbacks[id]
	if ok {
		delete(m.callbacks, id)
	}
	m.mu.Unlock()

	if ok {
		m.reportPending()
	}
	return cb, ok
}

// resolveCallback pops id and invokes its callback under a recover guard.
func (m *Manager) resolveCallback(id uint32, success bool, item *inventory.Item) bool {
	cb, ok := m.popCallback(id)
	if !ok {
		return false
	}
	callback.Guard("item created", func() { cb(success, item) })
	return true
}

// ============================================================================
// Requests answered by callback id
// ============================================================================

// CreateItemRequest describes an item to create.
type CreateItemRequest struct {
	ParentID      uuid.UUID
	Name          string
	Description   string
	AssetType     inventory.AssetType
	InventoryType inventory.InventoryType
	WearableType  inventory.WearableType
	NextOwnerMask inventory.PermissionMask

	// TransactionID ties the item to an asset upload; a random id when nil
	TransactionID uuid.UUID
}

// RequestCreateItem asks the server to create an item. cb runs once with the
// server's confirmation; it never runs if no confirmation arrives.
func (m *Manager) RequestCreateItem(ctx context.Context, req CreateItemRequest, cb ItemCreatedCallback) error {
	_, err := m.requestCreateItem(ctx, req, cb)
	return err
}

func (m *Manager) requestCreateItem(ctx context.Context, req CreateItemRequest, cb ItemCreatedCallback) (uint32, error) {
	if req.TransactionID == uuid.Nil {
		req.TransactionID = uuid.New()
	}

	id := m.registerCallback(cb)
	err := m.send(ctx, &protocol.CreateInventoryItem{
		Session:       m.session,
		CallbackID:    id,
		FolderID:      req.ParentID,
		TransactionID: req.TransactionID,
		NextOwnerMask: req.NextOwnerMask,
		AssetType:     req.AssetType,
		InvType:       req.InventoryType,
		WearableType:  req.WearableType,
		Name:          req.Name,
		Description:   req.Description,
	})
	if err != nil {
		m.popCallback(id)
		return 0, err
	}
	return id, nil
}

// RequestCopyItem asks the server to copy an item into newParentID. An empty
// newName keeps the original name.
func (m *Manager) RequestCopyItem(ctx context.Context, itemID, newParentID uuid.UUID, newName string, cb ItemCreatedCallback) error {
	_, err := m.requestCopyItem(ctx, itemID, newParentID, newName, cb)
	return err
}

func (m *Manager) requestCopyItem(ctx context.Context, itemID, newParentID uuid.UUID, newName string, cb ItemCreatedCallback) (uint32, error) {
	oldOwner := m.store.Owner()
	if item, ok := m.store.GetItem(itemID); ok {
		oldOwner = item.OwnerID
		if newName == "" {
			newName = item.Name
		}
	}

	id := m.registerCallback(cb)
	err := m.send(ctx, &protocol.CopyInventoryItem{
		Session: m.session,
		Items: []protocol.CopyItem{{
			CallbackID:  id,
			OldAgentID:  oldOwner,
			OldItemID:   itemID,
			NewFolderID: newParentID,
			NewName:     newName,
		}},
	})
	if err != nil {
		m.popCallback(id)
		return 0, err
	}
	return id, nil
}

// CreateLink creates a link to target inside folderID.
func (m *Manager) CreateLink(ctx context.Context, folderID uuid.UUID, target inventory.Node, name, description string, cb ItemCreatedCallback) error {
	if target == nil {
		return &inventory.StoreError{Code: inventory.ErrInvalidArgument, Message: "nil link target"}
	}

	assetType := inventory.AssetTypeLink
	invType := inventory.InventoryTypeUnknown
	switch t := target.(type) {
	case *inventory.Folder:
		assetType = inventory.AssetTypeLinkFolder
		invType = inventory.InventoryTypeCategory
	case *inventory.Item:
		invType = t.InventoryType
	}
	if name == "" {
		name = inventory.NameOf(target)
	}

	id := m.registerCallback(cb)
	err := m.send(ctx, &protocol.LinkInventoryItem{
		Session:       m.session,
		CallbackID:    id,
		FolderID:      folderID,
		TransactionID: uuid.New(),
		OldItemID:     inventory.IDOf(target),
		AssetType:     assetType,
		InvType:       invType,
		Name:          name,
		Description:   description,
	})
	if err != nil {
		m.popCallback(id)
	}
	return err
}

// RequestUpdateItem stores local edits to an item and pushes them to the
// server. cb, if not nil, runs when the server echoes the update.
func (m *Manager) RequestUpdateItem(ctx context.Context, item *inventory.Item, cb ItemCreatedCallback) error {
	if item == nil {
		return &inventory.StoreError{Code: inventory.ErrInvalidArgument, Message: "nil item"}
	}
	if err := m.observe("add", func() error { return m.store.Add(item) }); err != nil {
		return err
	}

	data := protocol.ItemDataFrom(item)
	data.CallbackID = m.registerCallback(cb)
	err := m.send(ctx, &protocol.UpdateInventoryItem{
		Session:       m.session,
		TransactionID: uuid.New(),
		Items:         []protocol.ItemData{data},
	})
	if err != nil {
		m.popCallback(data.CallbackID)
	}
	return err
}
