package protocol

import (
	"context"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/inventory"
)

// MessageType tags every decoded message exchanged with the grid.
type MessageType int

const (
	// Outbound requests
	TypeFetchInventory MessageType = iota + 1
	TypeFetchInventoryDescendents
	TypeCreateInventoryFolder
	TypeUpdateInventoryFolder
	TypeMoveInventoryFolder
	TypeMoveInventoryItem
	TypeRemoveInventoryFolder
	TypeRemoveInventoryItem
	TypeRemoveInventoryObjects
	TypePurgeInventoryDescendents
	TypeCreateInventoryItem
	TypeCopyInventoryItem
	TypeLinkInventoryItem
	TypeUpdateInventoryItem
	TypeRequestTaskInventory

	// Inbound replies and notifications
	TypeInventoryDescendents
	TypeFetchInventoryReply
	TypeUpdateCreateInventoryItem
	TypeBulkUpdateInventory
	TypeInventoryMoved
	TypeInventoryRemoved
	TypeReplyTaskInventory
	TypeSaveAssetIntoInventory

	// Both directions
	TypeImprovedInstantMessage
)

var messageTypeNames = map[MessageType]string{
	TypeFetchInventory:            "FetchInventory",
	TypeFetchInventoryDescendents: "FetchInventoryDescendents",
	TypeCreateInventoryFolder:     "CreateInventoryFolder",
	TypeUpdateInventoryFolder:     "UpdateInventoryFolder",
	TypeMoveInventoryFolder:       "MoveInventoryFolder",
	TypeMoveInventoryItem:         "MoveInventoryItem",
	TypeRemoveInventoryFolder:     "RemoveInventoryFolder",
	TypeRemoveInventoryItem:       "RemoveInventoryItem",
	TypeRemoveInventoryObjects:    "RemoveInventoryObjects",
	TypePurgeInventoryDescendents: "PurgeInventoryDescendents",
	TypeCreateInventoryItem:       "CreateInventoryItem",
	TypeCopyInventoryItem:         "CopyInventoryItem",
	TypeLinkInventoryItem:         "LinkInventoryItem",
	TypeUpdateInventoryItem:       "UpdateInventoryItem",
	TypeRequestTaskInventory:      "RequestTaskInventory",
	TypeInventoryDescendents:      "InventoryDescendents",
	TypeFetchInventoryReply:       "FetchInventoryReply",
	TypeUpdateCreateInventoryItem: "UpdateCreateInventoryItem",
	TypeBulkUpdateInventory:       "BulkUpdateInventory",
	TypeInventoryMoved:            "InventoryMoved",
	TypeInventoryRemoved:          "InventoryRemoved",
	TypeReplyTaskInventory:        "ReplyTaskInventory",
	TypeSaveAssetIntoInventory:    "SaveAssetIntoInventory",
	TypeImprovedInstantMessage:    "ImprovedInstantMessage",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Message is a decoded message. The wire encoding is the transport's job.
type Message interface {
	Type() MessageType
}

// Transport sends decoded requests to the grid. Replies come back
// asynchronously through the client's inbound message handler; Send does not
// wait for them.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Session identifies the sender of every agent-scoped request.
type Session struct {
	AgentID   uuid.UUID
	SessionID uuid.UUID
}

// ============================================================================
// Outbound requests
// ============================================================================

// FetchItem names one item of a FetchInventory request.
type FetchItem struct {
	OwnerID uuid.UUID
	ItemID  uuid.UUID
}

// FetchInventory asks for the full record of individual items.
type FetchInventory struct {
	Session
	Items []FetchItem
}

func (*FetchInventory) Type() MessageType { return TypeFetchInventory }

// SortOrder flags for FetchInventoryDescendents.
const (
	SortByName       int32 = 0
	SortByDate       int32 = 1
	SortFoldersFirst int32 = 2
	SortSystemTop    int32 = 4
)

// FetchInventoryDescendents asks for the children of one folder.
type FetchInventoryDescendents struct {
	Session
	FolderID     uuid.UUID
	OwnerID      uuid.UUID
	SortOrder    int32
	FetchFolders bool
	FetchItems   bool
}

func (*FetchInventoryDescendents) Type() MessageType { return TypeFetchInventoryDescendents }

// CreateInventoryFolder creates a folder with a client-chosen id.
type CreateInventoryFolder struct {
	Session
	FolderID   uuid.UUID
	ParentID   uuid.UUID
	FolderType inventory.FolderType
	Name       string
}

func (*CreateInventoryFolder) Type() MessageType { return TypeCreateInventoryFolder }

// UpdateInventoryFolder renames or reparents folders.
type UpdateInventoryFolder struct {
	Session
	Folders []FolderData
}

func (*UpdateInventoryFolder) Type() MessageType { return TypeUpdateInventoryFolder }

// FolderMove is one entry of a MoveInventoryFolder request.
type FolderMove struct {
	FolderID uuid.UUID
	ParentID uuid.UUID
}

// MoveInventoryFolder reparents folders.
type MoveInventoryFolder struct {
	Session
	Stamp bool
	Moves []FolderMove
}

func (*MoveInventoryFolder) Type() MessageType { return TypeMoveInventoryFolder }

// ItemMove is one entry of a MoveInventoryItem request. NewName is empty
// when the item keeps its name.
type ItemMove struct {
	ItemID   uuid.UUID
	FolderID uuid.UUID
	NewName  string
}

// MoveInventoryItem reparents and optionally renames items.
type MoveInventoryItem struct {
	Session
	Stamp bool
	Moves []ItemMove
}

func (*MoveInventoryItem) Type() MessageType { return TypeMoveInventoryItem }

// RemoveInventoryFolder deletes folders and their contents.
type RemoveInventoryFolder struct {
	Session
	FolderIDs []uuid.UUID
}

func (*RemoveInventoryFolder) Type() MessageType { return TypeRemoveInventoryFolder }

// RemoveInventoryItem deletes items.
type RemoveInventoryItem struct {
	Session
	ItemIDs []uuid.UUID
}

func (*RemoveInventoryItem) Type() MessageType { return TypeRemoveInventoryItem }

// RemoveInventoryObjects deletes folders and items in one request.
type RemoveInventoryObjects struct {
	Session
	FolderIDs []uuid.UUID
	ItemIDs   []uuid.UUID
}

func (*RemoveInventoryObjects) Type() MessageType { return TypeRemoveInventoryObjects }

// PurgeInventoryDescendents empties a folder, keeping the folder itself.
type PurgeInventoryDescendents struct {
	Session
	FolderID uuid.UUID
}

func (*PurgeInventoryDescendents) Type() MessageType { return TypePurgeInventoryDescendents }

// CreateInventoryItem creates an item; the server answers with an
// UpdateCreateInventoryItem echoing CallbackID.
type CreateInventoryItem struct {
	Session
	CallbackID    uint32
	FolderID      uuid.UUID
	TransactionID uuid.UUID
	NextOwnerMask inventory.PermissionMask
	AssetType     inventory.AssetType
	InvType       inventory.InventoryType
	WearableType  inventory.WearableType
	Name          string
	Description   string
}

func (*CreateInventoryItem) Type() MessageType { return TypeCreateInventoryItem }

// CopyItem is one entry of a CopyInventoryItem request.
type CopyItem struct {
	CallbackID  uint32
	OldAgentID  uuid.UUID
	OldItemID   uuid.UUID
	NewFolderID uuid.UUID
	NewName     string
}

// CopyInventoryItem copies items; replies arrive as bulk updates echoing
// each CallbackID.
type CopyInventoryItem struct {
	Session
	Items []CopyItem
}

func (*CopyInventoryItem) Type() MessageType { return TypeCopyInventoryItem }

// LinkInventoryItem creates a link to an item or folder.
type LinkInventoryItem struct {
	Session
	CallbackID    uint32
	FolderID      uuid.UUID
	TransactionID uuid.UUID
	OldItemID     uuid.UUID
	AssetType     inventory.AssetType
	InvType       inventory.InventoryType
	Name          string
	Description   string
}

func (*LinkInventoryItem) Type() MessageType { return TypeLinkInventoryItem }

// UpdateInventoryItem pushes local item edits to the server.
type UpdateInventoryItem struct {
	Session
	TransactionID uuid.UUID
	Items         []ItemData
}

func (*UpdateInventoryItem) Type() MessageType { return TypeUpdateInventoryItem }

// RequestTaskInventory asks an in-world object for its contents listing.
type RequestTaskInventory struct {
	Session
	LocalID uint32
}

func (*RequestTaskInventory) Type() MessageType { return TypeRequestTaskInventory }

// ============================================================================
// Inbound replies and notifications
// ============================================================================

// InventoryDescendents reports (part of) the children of a folder.
type InventoryDescendents struct {
	AgentID     uuid.UUID
	FolderID    uuid.UUID
	OwnerID     uuid.UUID
	Version     int32
	Descendents int32
	Folders     []FolderData
	Items       []ItemData
}

func (*InventoryDescendents) Type() MessageType { return TypeInventoryDescendents }

// FetchInventoryReply answers FetchInventory.
type FetchInventoryReply struct {
	AgentID uuid.UUID
	Items   []ItemData
}

func (*FetchInventoryReply) Type() MessageType { return TypeFetchInventoryReply }

// UpdateCreateInventoryItem confirms a created or updated item.
type UpdateCreateInventoryItem struct {
	AgentID       uuid.UUID
	SimApproved   bool
	TransactionID uuid.UUID
	Items         []ItemData
}

func (*UpdateCreateInventoryItem) Type() MessageType { return TypeUpdateCreateInventoryItem }

// BulkUpdateInventory delivers folders and items in one message: copies,
// accepted offers and items moved out of in-world objects.
type BulkUpdateInventory struct {
	AgentID       uuid.UUID
	TransactionID uuid.UUID
	Folders       []FolderData
	Items         []ItemData
}

func (*BulkUpdateInventory) Type() MessageType { return TypeBulkUpdateInventory }

// InventoryMove is one entry of an InventoryMoved notification.
type InventoryMove struct {
	ItemID   uuid.UUID
	FolderID uuid.UUID
	NewName  string
}

// InventoryMoved notifies that nodes were moved (and possibly renamed) on
// the server.
type InventoryMoved struct {
	AgentID uuid.UUID
	Moves   []InventoryMove
}

func (*InventoryMoved) Type() MessageType { return TypeInventoryMoved }

// InventoryRemoved notifies that nodes were deleted on the server.
type InventoryRemoved struct {
	AgentID   uuid.UUID
	FolderIDs []uuid.UUID
	ItemIDs   []uuid.UUID
}

func (*InventoryRemoved) Type() MessageType { return TypeInventoryRemoved }

// ReplyTaskInventory names the transfer file holding an object's contents.
type ReplyTaskInventory struct {
	TaskID   uuid.UUID
	Serial   int16
	Filename string
}

func (*ReplyTaskInventory) Type() MessageType { return TypeReplyTaskInventory }

// SaveAssetIntoInventory reports that an item now points at a new asset.
type SaveAssetIntoInventory struct {
	AgentID    uuid.UUID
	ItemID     uuid.UUID
	NewAssetID uuid.UUID
}

func (*SaveAssetIntoInventory) Type() MessageType { return TypeSaveAssetIntoInventory }
