package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/caps"
	"github.com/marmos91/gridinv/pkg/inventory"
)

// AssetUpload describes an item created from uploaded asset data.
type AssetUpload struct {
	FolderID      uuid.UUID
	Name          string
	Description   string
	AssetType     inventory.AssetType
	InventoryType inventory.InventoryType
	Permissions   inventory.Permissions
}

// CreateItemFromAsset uploads asset data and creates an item pointing at it
// through NewFileAgentInventory. The new item is then fetched so that it
// reaches the store.
//
// Returns:
//   - caps.UploadResult: New asset and item ids
//   - error: ErrNotSupported if the capability is not advertised, or the
//     upload failure
func (m *Manager) CreateItemFromAsset(ctx context.Context, upload AssetUpload, data []byte) (caps.UploadResult, error) {
	request := map[string]any{
		"folder_id":            upload.FolderID,
		"asset_type":           upload.AssetType.String(),
		"inventory_type":       upload.InventoryType.String(),
		"name":                 upload.Name,
		"description":          upload.Description,
		"next_owner_mask":      uint32(upload.Permissions.NextOwner),
		"group_mask":           uint32(upload.Permissions.Group),
		"everyone_mask":        uint32(upload.Permissions.Everyone),
		"expected_upload_cost": 0,
	}

	result, err := m.upload(ctx, caps.NewFileAgentInventory, request, data)
	if err != nil {
		return caps.UploadResult{}, err
	}

	if result.ItemID != uuid.Nil {
		if err := m.RequestFetchInventory(ctx, result.ItemID, m.store.Owner()); err != nil {
			logSendFailure("fetch uploaded item", err)
		}
	}
	return result, nil
}

// UpdateNotecard replaces the asset of a notecard item.
func (m *Manager) UpdateNotecard(ctx context.Context, itemID uuid.UUID, data []byte) (uuid.UUID, error) {
	return m.updateAsset(ctx, caps.UpdateNotecardAgentInventory, itemID, data)
}

// UpdateScript replaces the asset of a script item.
func (m *Manager) UpdateScript(ctx context.Context, itemID uuid.UUID, data []byte) (uuid.UUID, error) {
	return m.updateAsset(ctx, caps.UpdateScriptAgent, itemID, data)
}

// UpdateGesture replaces the asset of a gesture item.
func (m *Manager) UpdateGesture(ctx context.Context, itemID uuid.UUID, data []byte) (uuid.UUID, error) {
	return m.updateAsset(ctx, caps.UpdateGestureAgentInventory, itemID, data)
}

// updateAsset uploads new data for an existing item and records the new
// asset id locally.
func (m *Manager) updateAsset(ctx context.Context, capName string, itemID uuid.UUID, data []byte) (uuid.UUID, error) {
	result, err := m.upload(ctx, capName, map[string]any{"item_id": itemID}, data)
	if err != nil {
		return uuid.Nil, err
	}

	if item, ok := m.store.GetItem(itemID); ok && result.AssetID != uuid.Nil {
		item.AssetID = result.AssetID
		if err := m.observe("add", func() error { return m.store.Add(item) }); err != nil {
			return result.AssetID, fmt.Errorf("record new asset of %s: %w", itemID, err)
		}
	}
	return result.AssetID, nil
}

func (m *Manager) upload(ctx context.Context, capName string, request map[string]any, data []byte) (caps.UploadResult, error) {
	url, ok := m.capability(capName)
	if !ok {
		return caps.UploadResult{}, notSupported(capName)
	}

	start := time.Now()
	result, err := m.capsClient.UploadAsset(ctx, url, request, data)
	m.metrics.RecordCapabilityRequest(capName, time.Since(start), err)
	if err != nil {
		return caps.UploadResult{}, fmt.Errorf("%s: %w", capName, err)
	}
	return result, nil
}
