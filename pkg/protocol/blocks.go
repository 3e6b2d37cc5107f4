package protocol

import (
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/inventory"
)

// FolderData is the folder block shared by descendant reports, bulk updates
// and folder updates.
type FolderData struct {
	FolderID uuid.UUID
	ParentID uuid.UUID
	OwnerID  uuid.UUID
	Name     string
	Type     inventory.FolderType

	// Version is inventory.FolderVersionUnknown when the message does not
	// carry one
	Version         int32
	DescendentCount int32
}

// ToFolder converts the block into a node.
func (d FolderData) ToFolder() *inventory.Folder {
	folder := inventory.NewFolder(d.FolderID, d.ParentID, d.OwnerID, d.Name, d.Type)
	folder.Version = d.Version
	folder.DescendentCount = d.DescendentCount
	return folder
}

// FolderDataFrom builds the block describing folder.
func FolderDataFrom(folder *inventory.Folder) FolderData {
	return FolderData{
		FolderID:        folder.ID,
		ParentID:        folder.ParentID,
		OwnerID:         folder.OwnerID,
		Name:            folder.Name,
		Type:            folder.PreferredType,
		Version:         folder.Version,
		DescendentCount: folder.DescendentCount,
	}
}

// ItemData is the full item block carried by fetch replies, create/copy
// confirmations and bulk updates.
type ItemData struct {
	// CallbackID echoes the id of the create/copy/link request the item
	// answers, 0 when the item is not a reply to such a request
	CallbackID uint32

	ItemID        uuid.UUID
	FolderID      uuid.UUID
	OwnerID       uuid.UUID
	CreatorID     uuid.UUID
	GroupID       uuid.UUID
	LastOwnerID   uuid.UUID
	AssetID       uuid.UUID
	TransactionID uuid.UUID
	GroupOwned    bool

	Permissions inventory.Permissions
	Type        inventory.AssetType
	InvType     inventory.InventoryType
	Flags       uint32

	SaleType     inventory.SaleType
	SalePrice    int32
	Name         string
	Description  string
	CreationDate time.Time
}

// IsFolder reports whether the block actually describes a folder. Some
// channels reserved for items occasionally deliver folders this way.
func (d ItemData) IsFolder() bool {
	return d.InvType.IsFolder() || d.Type == inventory.AssetTypeFolder
}

// ToItem converts the block into a node.
func (d ItemData) ToItem() *inventory.Item {
	item := inventory.NewItem(d.ItemID, d.FolderID, d.OwnerID, d.Name, d.Type, d.InvType)
	item.CreatorID = d.CreatorID
	item.GroupID = d.GroupID
	item.LastOwnerID = d.LastOwnerID
	item.AssetID = d.AssetID
	item.TransactionID = d.TransactionID
	item.GroupOwned = d.GroupOwned
	item.Permissions = d.Permissions
	item.Flags = d.Flags
	item.SaleType = d.SaleType
	item.SalePrice = d.SalePrice
	item.Description = d.Description
	item.CreationDate = d.CreationDate
	return item
}

// ItemDataFrom builds the block describing item.
func ItemDataFrom(item *inventory.Item) ItemData {
	return ItemData{
		ItemID:        item.ID,
		FolderID:      item.ParentID,
		OwnerID:       item.OwnerID,
		CreatorID:     item.CreatorID,
		GroupID:       item.GroupID,
		LastOwnerID:   item.LastOwnerID,
		AssetID:       item.AssetID,
		TransactionID: item.TransactionID,
		GroupOwned:    item.GroupOwned,
		Permissions:   item.Permissions,
		Type:          item.AssetType,
		InvType:       item.InventoryType,
		Flags:         item.Flags,
		SaleType:      item.SaleType,
		SalePrice:     item.SalePrice,
		Name:          item.Name,
		Description:   item.Description,
		CreationDate:  item.CreationDate,
	}
}
