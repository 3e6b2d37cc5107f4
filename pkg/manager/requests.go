package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/caps"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
)

// ============================================================================
// Fetching
// ============================================================================

// RequestFetchInventory asks the server for the full record of one item.
// The reply is applied by HandleMessage and announced through OnItemReceived.
//
// When FetchInventory2 (FetchLib2 for library items) is advertised the
// request goes over HTTP on a background goroutine; the reply is applied
// exactly as if it had arrived as a message.
func (m *Manager) RequestFetchInventory(ctx context.Context, itemID, ownerID uuid.UUID) error {
	if ownerID == uuid.Nil {
		ownerID = m.store.Owner()
	}

	capName := caps.FetchInventory2
	if m.isLibrary(ownerID) {
		capName = caps.FetchLib2
	}
	if url, ok := m.capability(capName); ok {
		if m.ctx.Err() != nil {
			return ErrClosed
		}
		items := []protocol.FetchItem{{OwnerID: ownerID, ItemID: itemID}}
		m.goBackground(func(ctx context.Context) {
			start := time.Now()
			reply, err := m.capsClient.FetchItems(ctx, url, m.session.AgentID, items)
			m.metrics.RecordCapabilityRequest(capName, time.Since(start), err)
			if err != nil {
				logSendFailure(fmt.Sprintf("%s for item %s", capName, itemID), err)
				return
			}
			m.HandleMessage(ctx, reply)
		})
		return nil
	}

	return m.send(ctx, &protocol.FetchInventory{
		Session: m.session,
		Items:   []protocol.FetchItem{{OwnerID: ownerID, ItemID: itemID}},
	})
}

// RequestFolderContents asks the server for the children of a folder. The
// reply is reconciled by HandleMessage and announced through OnFolderUpdated.
//
// When FetchInventoryDescendents2 (FetchLibDescendents2 for library
// folders) is advertised the request goes over HTTP on a background
// goroutine.
//
// Parameters:
//   - folderID, ownerID: Folder to list and its owner
//   - folders, items: Which kinds of children to list
//   - order: protocol.SortByName, protocol.SortByDate, ...
func (m *Manager) RequestFolderContents(ctx context.Context, folderID, ownerID uuid.UUID, folders, items bool, order int32) error {
	if ownerID == uuid.Nil {
		ownerID = m.store.Owner()
	}

	capName := caps.FetchInventoryDescendents2
	if m.isLibrary(ownerID) {
		capName = caps.FetchLibDescendents2
	}
	if url, ok := m.capability(capName); ok {
		if m.ctx.Err() != nil {
			return ErrClosed
		}
		request := []caps.FolderRequest{{
			FolderID:     folderID,
			OwnerID:      ownerID,
			SortOrder:    order,
			FetchFolders: folders,
			FetchItems:   items,
		}}
		m.goBackground(func(ctx context.Context) {
			start := time.Now()
			replies, err := m.capsClient.FetchDescendents(ctx, url, request)
			m.metrics.RecordCapabilityRequest(capName, time.Since(start), err)
			if err != nil {
				logSendFailure(fmt.Sprintf("%s for folder %s", capName, folderID), err)
				return
			}
			for _, reply := range replies {
				m.HandleMessage(ctx, reply)
			}
		})
		return nil
	}

	return m.send(ctx, &protocol.FetchInventoryDescendents{
		Session:      m.session,
		FolderID:     folderID,
		OwnerID:      ownerID,
		SortOrder:    order,
		FetchFolders: folders,
		FetchItems:   items,
	})
}

// RequestTaskInventory asks an in-world object for its contents listing.
// The answer is announced through OnTaskInventoryReply.
func (m *Manager) RequestTaskInventory(ctx context.Context, localID uint32) error {
	return m.send(ctx, &protocol.RequestTaskInventory{
		Session: m.session,
		LocalID: localID,
	})
}

// ============================================================================
// Folders
// ============================================================================

// CreateFolder creates a folder under parentID and returns its id.
//
// The folder is inserted into the store immediately, before the server has
// confirmed it, and removed again if the request cannot be sent. An empty name defaults to the preferred type's name.
func (m *Manager) CreateFolder(ctx context.Context, parentID uuid.UUID, name string, preferredType inventory.FolderType) (uuid.UUID, error) {
	if name == "" {
		if preferredType == inventory.FolderTypeNone {
			name = "New Folder"
		} else {
			name = preferredType.String()
		}
	}

	id := uuid.New()
	folder := inventory.NewFolder(id, parentID, m.store.Owner(), name, preferredType)
	folder.Version = 1

	if err := m.observe("add", func() error { return m.store.Add(folder) }); err != nil {
		return uuid.Nil, fmt.Errorf("create folder %q: %w", name, err)
	}

	err := m.send(ctx, &protocol.CreateInventoryFolder{
		Session:    m.session,
		FolderID:   id,
		ParentID:   parentID,
		FolderType: preferredType,
		Name:       name,
	})
	if err != nil {
		m.removeLocal([]uuid.UUID{id})
		return uuid.Nil, err
	}
	return id, nil
}

// MoveFolder moves a folder under newParentID, renaming it when newName is
// not empty.
func (m *Manager) MoveFolder(ctx context.Context, folderID, newParentID uuid.UUID, newName string) error {
	if err := m.moveLocal(folderID, newParentID, newName); err != nil {
		return err
	}

	if newName != "" {
		folder, ok := m.store.GetFolder(folderID)
		if !ok {
			folder = inventory.NewFolder(folderID, newParentID, m.store.Owner(), newName, inventory.FolderTypeNone)
		}
		return m.send(ctx, &protocol.UpdateInventoryFolder{
			Session: m.session,
			Folders: []protocol.FolderData{protocol.FolderDataFrom(folder)},
		})
	}

	return m.send(ctx, &protocol.MoveInventoryFolder{
		Session: m.session,
		Moves:   []protocol.FolderMove{{FolderID: folderID, ParentID: newParentID}},
	})
}

// RenameFolder renames a folder in place.
func (m *Manager) RenameFolder(ctx context.Context, folderID uuid.UUID, name string) error {
	folder, ok := m.store.GetFolder(folderID)
	if !ok {
		return &inventory.StoreError{Code: inventory.ErrFolderNotKnown, Message: "cannot rename unknown folder", ID: folderID}
	}
	return m.MoveFolder(ctx, folderID, folder.ParentID, name)
}

// RemoveFolders deletes folders and everything below them.
func (m *Manager) RemoveFolders(ctx context.Context, folderIDs ...uuid.UUID) error {
	if len(folderIDs) == 0 {
		return nil
	}
	m.removeLocal(folderIDs)
	return m.send(ctx, &protocol.RemoveInventoryFolder{
		Session:   m.session,
		FolderIDs: folderIDs,
	})
}

// RemoveDescendants empties a folder, keeping the folder itself.
func (m *Manager) RemoveDescendants(ctx context.Context, folderID uuid.UUID) error {
	if contents, err := m.store.Contents(folderID); err == nil {
		ids := make([]uuid.UUID, 0, len(contents))
		for _, node := range contents {
			ids = append(ids, inventory.IDOf(node))
		}
		m.removeLocal(ids)
	}

	return m.send(ctx, &protocol.PurgeInventoryDescendents{
		Session:  m.session,
		FolderID: folderID,
	})
}

// EmptyTrash purges the Trash system folder.
func (m *Manager) EmptyTrash(ctx context.Context) error {
	return m.emptySystemFolder(ctx, inventory.FolderTypeTrash)
}

// EmptyLostAndFound purges the Lost And Found system folder.
func (m *Manager) EmptyLostAndFound(ctx context.Context) error {
	return m.emptySystemFolder(ctx, inventory.FolderTypeLostAndFound)
}

func (m *Manager) emptySystemFolder(ctx context.Context, t inventory.FolderType) error {
	folderID := m.store.FindFolderForType(t)
	if folderID == uuid.Nil || folderID == m.store.InventoryRoot() {
		return &inventory.StoreError{
			Code:    inventory.ErrFolderNotKnown,
			Message: fmt.Sprintf("no %s folder known", t),
		}
	}
	return m.RemoveDescendants(ctx, folderID)
}

// ============================================================================
// Items
// ============================================================================

// MoveItem moves an item into folderID, renaming it when newName is not
// empty.
func (m *Manager) MoveItem(ctx context.Context, itemID, folderID uuid.UUID, newName string) error {
	if err := m.moveLocal(itemID, folderID, newName); err != nil {
		return err
	}
	return m.send(ctx, &protocol.MoveInventoryItem{
		Session: m.session,
		Moves:   []protocol.ItemMove{{ItemID: itemID, FolderID: folderID, NewName: newName}},
	})
}

// RenameItem renames an item in place.
func (m *Manager) RenameItem(ctx context.Context, itemID uuid.UUID, name string) error {
	item, ok := m.store.GetItem(itemID)
	if !ok {
		return &inventory.StoreError{Code: inventory.ErrNodeNotKnown, Message: "cannot rename unknown item", ID: itemID}
	}
	return m.MoveItem(ctx, itemID, item.ParentID, name)
}

// RemoveItems deletes items.
func (m *Manager) RemoveItems(ctx context.Context, itemIDs ...uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	m.removeLocal(itemIDs)
	return m.send(ctx, &protocol.RemoveInventoryItem{
		Session: m.session,
		ItemIDs: itemIDs,
	})
}

// RemoveObjects deletes folders and items in one request.
func (m *Manager) RemoveObjects(ctx context.Context, folderIDs, itemIDs []uuid.UUID) error {
	if len(folderIDs) == 0 && len(itemIDs) == 0 {
		return nil
	}
	m.removeLocal(folderIDs)
	m.removeLocal(itemIDs)
	return m.send(ctx, &protocol.RemoveInventoryObjects{
		Session:   m.session,
		FolderIDs: folderIDs,
		ItemIDs:   itemIDs,
	})
}

// UpdateItem stores local edits to an item and pushes them to the server.
func (m *Manager) UpdateItem(ctx context.Context, item *inventory.Item) error {
	return m.RequestUpdateItem(ctx, item, nil)
}

// ============================================================================
// Local mirrors
// ============================================================================

// moveLocal applies a move to the store. Nodes the store has not seen are
// left to the server's notification.
func (m *Manager) moveLocal(id, newParentID uuid.UUID, newName string) error {
	err := m.observe("move", func() error { return m.store.MoveByID(id, newParentID, newName) })
	if err == nil || inventory.IsErrorCode(err, inventory.ErrNodeNotKnown) {
		return nil
	}
	return fmt.Errorf("move %s: %w", id, err)
}

func (m *Manager) removeLocal(ids []uuid.UUID) {
	for _, id := range ids {
		err := m.observe("remove", func() error { return m.store.Remove(id) })
		if err != nil && !inventory.IsErrorCode(err, inventory.ErrNodeNotKnown) {
			logger.Warn("Local removal of %s failed: %v", id, err)
		}
	}
}
