package inventory

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/logger"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// Snapshot layout (XDR, RFC 4506):
//
//	header  snapshotHeader
//	records [header.Count]snapshotRecord, depth first from the top folder
//
// Parents always precede their children, so restoring needs no resolution.
const (
	snapshotVersion uint32 = 1

	recordFolder uint32 = 0
	recordItem   uint32 = 1
)

var snapshotMagic = [4]byte{'G', 'I', 'N', 'V'}

type snapshotHeader struct {
	Magic         [4]byte
	Version       uint32
	Owner         uuid.UUID
	InventoryRoot uuid.UUID
	LibraryRoot   uuid.UUID
	Count         uint32
}

type snapshotRecord struct {
	Kind     uint32
	ID       uuid.UUID
	ParentID uuid.UUID
	OwnerID  uuid.UUID
	Name     string

	// Folder fields
	PreferredType   int32
	Version         int32
	DescendentCount int32

	// Item fields
	AssetID       uuid.UUID
	CreatorID     uuid.UUID
	GroupID       uuid.UUID
	LastOwnerID   uuid.UUID
	TransactionID uuid.UUID
	GroupOwned    bool
	BaseMask      uint32
	OwnerMask     uint32
	GroupMask     uint32
	EveryoneMask  uint32
	NextOwnerMask uint32
	AssetType     int32
	InventoryType int32
	ItemKind      uint32
	Flags         uint32
	SaleType      uint32
	SalePrice     int32
	CreationDate  int64
	Description   string
}

// Save writes a snapshot of the linked tree to w.
//
// Parked nodes are first given another chance to link; nodes still waiting
// for a parent are left out of the snapshot (and stay parked in the store)
// with a warning.
//
// Parameters:
//   - w: Destination of the snapshot
//
// Returns:
//   - error: Encoding or write failure
func (store *Store) Save(w io.Writer) error {
	store.mu.Lock()
	var events []Event
	store.resolveParkedLocked(&events)
	if dropped := len(store.parked); dropped > 0 {
		logger.Warn("Saving inventory snapshot without %d unresolved nodes", dropped)
	}

	header := snapshotHeader{
		Magic:         snapshotMagic,
		Version:       snapshotVersion,
		Owner:         store.owner,
		InventoryRoot: store.inventoryRoot,
		LibraryRoot:   store.libraryRoot,
	}
	nodes, _ := store.walkLocked()
	store.mu.Unlock()

	store.dispatch(events)

	header.Count = uint32(len(nodes))

	buf := bufio.NewWriter(w)
	if _, err := xdr.Marshal(buf, &header); err != nil {
		return fmt.Errorf("failed to encode snapshot header: %w", err)
	}
	for _, node := range nodes {
		record := toRecord(node)
		if _, err := xdr.Marshal(buf, &record); err != nil {
			return fmt.Errorf("failed to encode node %s: %w", node.Base().ID, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	logger.Debug("Saved inventory snapshot for %s: %d nodes", header.Owner, header.Count)
	return nil
}

// resolveParkedLocked links every parked node whose parent has become a
// linked folder.
func (store *Store) resolveParkedLocked(events *[]Event) {
	for parentID := range store.unresolved {
		parent, ok := store.folders[parentID]
		if !ok {
			continue
		}
		orphans := store.unresolved[parentID]
		delete(store.unresolved, parentID)
		children := parent.childMap()
		for id, orphan := range orphans {
			delete(store.parked, id)
			children[id] = orphan
			orphan.Base().attach(parentID)
			store.linkLocked(orphan, events)
		}
	}
}

// Restore replaces the store contents with a snapshot read from r.
//
// A store created for uuid.Nil adopts the snapshot's owner; otherwise the
// snapshot must belong to the store's owner. The current contents are kept
// when the snapshot cannot be read.
//
// Returns:
//   - error: ErrOwnerMismatch for another agent's snapshot,
//     ErrCorruptSnapshot for undecodable data
func (store *Store) Restore(r io.Reader) error {
	reader := bufio.NewReader(r)

	var header snapshotHeader
	if _, err := xdr.Unmarshal(reader, &header); err != nil {
		return newError(ErrCorruptSnapshot, uuid.Nil, fmt.Sprintf("cannot decode snapshot header: %v", err))
	}
	if header.Magic != snapshotMagic {
		return newError(ErrCorruptSnapshot, uuid.Nil, "not an inventory snapshot")
	}
	if header.Version != snapshotVersion {
		return newError(ErrCorruptSnapshot, uuid.Nil, fmt.Sprintf("unsupported snapshot version %d", header.Version))
	}

	owner := store.Owner()
	if owner != uuid.Nil && header.Owner != owner {
		return newError(ErrOwnerMismatch, header.Owner, "snapshot belongs to another agent")
	}

	top := NewFolder(uuid.Nil, uuid.Nil, header.Owner, "", FolderTypeNone)
	top.attach(uuid.Nil)
	folders := map[uuid.UUID]*Folder{uuid.Nil: top}
	items := make(map[uuid.UUID]*Item)

	for i := uint32(0); i < header.Count; i++ {
		var record snapshotRecord
		if _, err := xdr.Unmarshal(reader, &record); err != nil {
			return newError(ErrCorruptSnapshot, uuid.Nil, fmt.Sprintf("cannot decode node %d of %d: %v", i+1, header.Count, err))
		}

		node, err := fromRecord(&record)
		if err != nil {
			return err
		}
		id := node.Base().ID
		if _, dup := folders[id]; dup {
			return newError(ErrCorruptSnapshot, id, "duplicate node in snapshot")
		}
		if _, dup := items[id]; dup {
			return newError(ErrCorruptSnapshot, id, "duplicate node in snapshot")
		}

		parent, ok := folders[record.ParentID]
		if !ok {
			return newError(ErrCorruptSnapshot, id, "snapshot node precedes its parent")
		}
		parent.childMap()[id] = node
		node.Base().attach(record.ParentID)

		switch n := node.(type) {
		case *Folder:
			folders[id] = n
		case *Item:
			items[id] = n
		}
	}

	store.mu.Lock()
	store.owner = header.Owner
	store.top = top
	store.folders = folders
	store.items = items
	store.unresolved = make(map[uuid.UUID]map[uuid.UUID]Node)
	store.parked = make(map[uuid.UUID]uuid.UUID)
	store.inventoryRoot = header.InventoryRoot
	store.libraryRoot = header.LibraryRoot
	store.mu.Unlock()

	logger.Debug("Restored inventory snapshot for %s: %d folders, %d items", header.Owner, len(folders)-1, len(items))
	return nil
}

func toRecord(node Node) snapshotRecord {
	base := node.Base()
	record := snapshotRecord{
		ID:       base.ID,
		ParentID: base.ParentID,
		OwnerID:  base.OwnerID,
		Name:     base.Name,
	}

	switch n := node.(type) {
	case *Folder:
		record.Kind = recordFolder
		record.PreferredType = int32(n.PreferredType)
		record.Version = n.Version
		record.DescendentCount = n.DescendentCount
	case *Item:
		record.Kind = recordItem
		record.AssetID = n.AssetID
		record.CreatorID = n.CreatorID
		record.GroupID = n.GroupID
		record.LastOwnerID = n.LastOwnerID
		record.TransactionID = n.TransactionID
		record.GroupOwned = n.GroupOwned
		record.BaseMask = uint32(n.Permissions.Base)
		record.OwnerMask = uint32(n.Permissions.Owner)
		record.GroupMask = uint32(n.Permissions.Group)
		record.EveryoneMask = uint32(n.Permissions.Everyone)
		record.NextOwnerMask = uint32(n.Permissions.NextOwner)
		record.AssetType = int32(n.AssetType)
		record.InventoryType = int32(n.InventoryType)
		record.ItemKind = uint32(n.Kind)
		record.Flags = n.Flags
		record.SaleType = uint32(n.SaleType)
		record.SalePrice = n.SalePrice
		if !n.CreationDate.IsZero() {
			record.CreationDate = n.CreationDate.Unix()
		}
		record.Description = n.Description
	}
	return record
}

func fromRecord(record *snapshotRecord) (Node, error) {
	switch record.Kind {
	case recordFolder:
		folder := NewFolder(record.ID, record.ParentID, record.OwnerID, record.Name, FolderType(record.PreferredType))
		folder.Version = record.Version
		folder.DescendentCount = record.DescendentCount
		return folder, nil

	case recordItem:
		item := NewItem(record.ID, record.ParentID, record.OwnerID, record.Name,
			AssetType(record.AssetType), InventoryType(record.InventoryType))
		item.AssetID = record.AssetID
		item.CreatorID = record.CreatorID
		item.GroupID = record.GroupID
		item.LastOwnerID = record.LastOwnerID
		item.TransactionID = record.TransactionID
		item.GroupOwned = record.GroupOwned
		item.Permissions = Permissions{
			Base:      PermissionMask(record.BaseMask),
			Owner:     PermissionMask(record.OwnerMask),
			Group:     PermissionMask(record.GroupMask),
			Everyone:  PermissionMask(record.EveryoneMask),
			NextOwner: PermissionMask(record.NextOwnerMask),
		}
		item.Kind = ItemKind(record.ItemKind)
		item.Flags = record.Flags
		item.SaleType = SaleType(record.SaleType)
		item.SalePrice = record.SalePrice
		if record.CreationDate != 0 {
			item.CreationDate = time.Unix(record.CreationDate, 0).UTC()
		}
		item.Description = record.Description
		return item, nil

	default:
		return nil, newError(ErrCorruptSnapshot, record.ID, fmt.Sprintf("unknown record kind %d", record.Kind))
	}
}
