package manager

import (
	"context"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/callback"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/protocol"
)

// TaskItem describes an item delivered from an in-world object.
type TaskItem struct {
	ItemID        uuid.UUID
	FolderID      uuid.UUID
	CreatorID     uuid.UUID
	AssetID       uuid.UUID
	InventoryType inventory.InventoryType
}

// TaskInventoryReply names the transfer file holding an object's contents.
type TaskInventoryReply struct {
	TaskID   uuid.UUID
	Serial   int16
	Filename string
}

// Offer is an inventory offer received as an instant message.
type Offer struct {
	FromAgentID   uuid.UUID
	FromAgentName string

	// FromTask is true when an in-world object made the offer
	FromTask bool

	AssetType inventory.AssetType
	ObjectID  uuid.UUID
	Message   string

	// SuggestedFolder is the system folder for AssetType, the inventory
	// root when there is none
	SuggestedFolder uuid.UUID
}

// OfferDecision answers an Offer. A nil Destination on accept files the
// object in the suggested folder.
type OfferDecision struct {
	Accept      bool
	Destination uuid.UUID
}

// OnFolderUpdated registers fn for every applied descendants report.
func (m *Manager) OnFolderUpdated(fn func(folderID uuid.UUID)) func() {
	return m.folderUpdated.Add(fn)
}

// OnItemReceived registers fn for every item delivered by a fetch reply,
// a create confirmation or a bulk update. fn must not modify the item.
func (m *Manager) OnItemReceived(fn func(item *inventory.Item)) func() {
	return m.itemReceived.Add(fn)
}

// OnTaskItemReceived registers fn for items delivered from in-world objects.
func (m *Manager) OnTaskItemReceived(fn func(TaskItem)) func() {
	return m.taskItemReceived.Add(fn)
}

// OnTaskInventoryReply registers fn for object contents listings.
func (m *Manager) OnTaskInventoryReply(fn func(TaskInventoryReply)) func() {
	return m.taskInventoryReply.Add(fn)
}

// SetObjectOfferedHandler installs the function deciding inventory offers.
// Without a handler offers are left unanswered. Passing nil removes it.
func (m *Manager) SetObjectOfferedHandler(fn func(Offer) OfferDecision) {
	m.mu.Lock()
	m.offerHandler = fn
	m.mu.Unlock()
}

func (m *Manager) handleOffer(ctx context.Context, msg *protocol.ImprovedInstantMessage) {
	assetType, objectID, ok := msg.OfferedObject()
	if !ok {
		logger.Error("Malformed inventory offer from %s", msg.FromAgentID)
		return
	}

	m.mu.Lock()
	handler := m.offerHandler
	m.mu.Unlock()
	if handler == nil {
		logger.Debug("Inventory offer %s from %s left unanswered", objectID, msg.FromAgentID)
		return
	}

	offer := Offer{
		FromAgentID:     msg.FromAgentID,
		FromAgentName:   msg.FromAgentName,
		FromTask:        msg.Dialog == protocol.DialogTaskInventoryOffered,
		AssetType:       assetType,
		ObjectID:        objectID,
		Message:         msg.Message,
		SuggestedFolder: m.store.FindFolderForType(inventory.FolderTypeForAsset(assetType)),
	}

	var decision OfferDecision
	if recovered := callback.Guard("object offered", func() { decision = handler(offer) }); recovered != nil {
		return
	}

	destination := decision.Destination
	if decision.Accept && destination == uuid.Nil {
		destination = offer.SuggestedFolder
	}

	reply := protocol.OfferReply(m.session, msg, decision.Accept, destination, m.agentName)
	if err := m.send(ctx, reply); err != nil {
		logSendFailure("offer reply", err)
		return
	}

	if decision.Accept && !offer.FromTask {
		if err := m.moveLocal(objectID, destination, ""); err != nil {
			logger.Warn("Failed to file accepted offer %s: %v", objectID, err)
		}
	}
}
