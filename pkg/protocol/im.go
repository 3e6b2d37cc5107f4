package protocol

import (
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/inventory"
)

// InstantMessageDialog is the dialog kind of an instant message. Only the
// inventory offer dialogs are interpreted by this library.
type InstantMessageDialog uint8

const (
	DialogMessageFromAgent      InstantMessageDialog = 0
	DialogInventoryOffered      InstantMessageDialog = 4
	DialogInventoryAccepted     InstantMessageDialog = 5
	DialogInventoryDeclined     InstantMessageDialog = 6
	DialogTaskInventoryOffered  InstantMessageDialog = 9
	DialogTaskInventoryAccepted InstantMessageDialog = 10
	DialogTaskInventoryDeclined InstantMessageDialog = 11
)

// ImprovedInstantMessage is an instant message in either direction.
type ImprovedInstantMessage struct {
	Session
	FromAgentID   uuid.UUID
	FromAgentName string
	ToAgentID     uuid.UUID
	FromGroup     bool
	Offline       bool
	Dialog        InstantMessageDialog

	// ID is the message session id; offers are answered with the same id
	ID           uuid.UUID
	RegionID     uuid.UUID
	Timestamp    time.Time
	Message      string
	BinaryBucket []byte
}

func (*ImprovedInstantMessage) Type() MessageType { return TypeImprovedInstantMessage }

// IsOffer reports whether the message offers inventory.
func (m *ImprovedInstantMessage) IsOffer() bool {
	return m.Dialog == DialogInventoryOffered || m.Dialog == DialogTaskInventoryOffered
}

// OfferedObject decodes the binary bucket of an offer.
//
// Agent offers carry the asset type followed by the offered node id. Offers
// from objects carry only the asset type; the node id is the message id.
//
// Returns:
//   - assetType, objectID: What is offered
//   - ok: false if the message is not an offer or the bucket is malformed
func (m *ImprovedInstantMessage) OfferedObject() (assetType inventory.AssetType, objectID uuid.UUID, ok bool) {
	switch m.Dialog {
	case DialogInventoryOffered:
		if len(m.BinaryBucket) < 17 {
			return inventory.AssetTypeUnknown, uuid.Nil, false
		}
		id, err := uuid.FromBytes(m.BinaryBucket[1:17])
		if err != nil {
			return inventory.AssetTypeUnknown, uuid.Nil, false
		}
		return inventory.AssetType(int8(m.BinaryBucket[0])), id, true

	case DialogTaskInventoryOffered:
		if len(m.BinaryBucket) < 1 {
			return inventory.AssetTypeUnknown, uuid.Nil, false
		}
		return inventory.AssetType(int8(m.BinaryBucket[0])), m.ID, true

	default:
		return inventory.AssetTypeUnknown, uuid.Nil, false
	}
}

// OfferReply builds the accept or decline answer to an offer. An accepted
// offer names the destination folder in the binary bucket.
func OfferReply(session Session, offer *ImprovedInstantMessage, accept bool, destination uuid.UUID, name string) *ImprovedInstantMessage {
	reply := &ImprovedInstantMessage{
		Session:       session,
		FromAgentID:   session.AgentID,
		FromAgentName: name,
		ToAgentID:     offer.FromAgentID,
		ID:            offer.ID,
		RegionID:      offer.RegionID,
		Timestamp:     time.Now(),
	}

	fromTask := offer.Dialog == DialogTaskInventoryOffered
	switch {
	case accept && fromTask:
		reply.Dialog = DialogTaskInventoryAccepted
	case accept:
		reply.Dialog = DialogInventoryAccepted
	case fromTask:
		reply.Dialog = DialogTaskInventoryDeclined
	default:
		reply.Dialog = DialogInventoryDeclined
	}

	if accept {
		bucket := make([]byte, 16)
		copy(bucket, destination[:])
		reply.BinaryBucket = bucket
	}
	return reply
}
