package caps

import (
	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
	"github.com/marmos91/gridinv/pkg/protocol/llsd"
)

// FolderFromLLSD decodes a category map. Servers name the id either
// category_id or folder_id; owner is used when the map has no owner_id.
func FolderFromLLSD(m map[string]any, owner uuid.UUID) protocol.FolderData {
	id := llsd.AsUUID(m["category_id"])
	if id == uuid.Nil {
		id = llsd.AsUUID(m["folder_id"])
	}
	ownerID := llsd.AsUUID(m["agent_id"])
	if ownerID == uuid.Nil {
		ownerID = llsd.AsUUID(m["owner_id"])
	}
	if ownerID == uuid.Nil {
		ownerID = owner
	}

	preferred, ok := m["type_default"]
	if !ok {
		preferred = m["preferred_type"]
	}

	version := inventory.FolderVersionUnknown
	if v, ok := m["version"]; ok {
		version = llsd.AsInt(v)
	}

	return protocol.FolderData{
		FolderID:        id,
		ParentID:        llsd.AsUUID(m["parent_id"]),
		OwnerID:         ownerID,
		Name:            llsd.AsString(m["name"]),
		Type:            inventory.FolderType(llsd.AsInt(preferred)),
		Version:         version,
		DescendentCount: llsd.AsInt(m["descendents"]),
	}
}

// ItemFromLLSD decodes an item map.
func ItemFromLLSD(m map[string]any) protocol.ItemData {
	perms := llsd.AsMap(m["permissions"])
	sale := llsd.AsMap(m["sale_info"])

	assetID := llsd.AsUUID(m["asset_id"])
	if assetID == uuid.Nil {
		assetID = llsd.AsUUID(m["linked_id"])
	}

	return protocol.ItemData{
		CallbackID:    llsd.AsUint(m["callback_id"]),
		ItemID:        llsd.AsUUID(m["item_id"]),
		FolderID:      llsd.AsUUID(m["parent_id"]),
		OwnerID:       llsd.AsUUID(perms["owner_id"]),
		CreatorID:     llsd.AsUUID(perms["creator_id"]),
		GroupID:       llsd.AsUUID(perms["group_id"]),
		LastOwnerID:   llsd.AsUUID(perms["last_owner_id"]),
		AssetID:       assetID,
		TransactionID: llsd.AsUUID(m["transaction_id"]),
		GroupOwned:    llsd.AsBool(perms["is_owner_group"]),
		Permissions: inventory.Permissions{
			Base:      inventory.PermissionMask(llsd.AsUint(perms["base_mask"])),
			Owner:     inventory.PermissionMask(llsd.AsUint(perms["owner_mask"])),
			Group:     inventory.PermissionMask(llsd.AsUint(perms["group_mask"])),
			Everyone:  inventory.PermissionMask(llsd.AsUint(perms["everyone_mask"])),
			NextOwner: inventory.PermissionMask(llsd.AsUint(perms["next_owner_mask"])),
		},
		Type:         inventory.AssetType(llsd.AsInt(m["type"])),
		InvType:      inventory.InventoryType(llsd.AsInt(m["inv_type"])),
		Flags:        llsd.AsUint(m["flags"]),
		SaleType:     inventory.SaleType(llsd.AsInt(sale["sale_type"])),
		SalePrice:    llsd.AsInt(sale["sale_price"]),
		Name:         llsd.AsString(m["name"]),
		Description:  llsd.AsString(m["desc"]),
		CreationDate: llsd.AsDate(m["created_at"]),
	}
}

// ItemToLLSD encodes an item map in the layout ItemFromLLSD reads.
func ItemToLLSD(d protocol.ItemData) map[string]any {
	return map[string]any{
		"item_id":    d.ItemID,
		"parent_id":  d.FolderID,
		"asset_id":   d.AssetID,
		"name":       d.Name,
		"desc":       d.Description,
		"type":       int32(d.Type),
		"inv_type":   int32(d.InvType),
		"flags":      d.Flags,
		"created_at": int32(createdAt(d)),
		"permissions": map[string]any{
			"base_mask":       uint32(d.Permissions.Base),
			"owner_mask":      uint32(d.Permissions.Owner),
			"group_mask":      uint32(d.Permissions.Group),
			"everyone_mask":   uint32(d.Permissions.Everyone),
			"next_owner_mask": uint32(d.Permissions.NextOwner),
			"creator_id":      d.CreatorID,
			"owner_id":        d.OwnerID,
			"last_owner_id":   d.LastOwnerID,
			"group_id":        d.GroupID,
			"is_owner_group":  d.GroupOwned,
		},
		"sale_info": map[string]any{
			"sale_type":  int32(d.SaleType),
			"sale_price": d.SalePrice,
		},
	}
}

func createdAt(d protocol.ItemData) int64 {
	if d.CreationDate.IsZero() {
		return 0
	}
	return d.CreationDate.Unix()
}
