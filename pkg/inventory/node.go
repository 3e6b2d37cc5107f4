package inventory

import (
	"time"

	"github.com/google/uuid"
)

// FolderVersionUnknown is the version of a folder whose descendants have
// never been reported by the server.
const FolderVersionUnknown int32 = -1

// ============================================================================
// Node
// ============================================================================

// Node is one entry of the inventory tree: either a *Folder or an *Item.
//
// The set of implementations is closed; callers switch on the concrete type:
//
//	switch n := node.(type) {
//	case *inventory.Folder:
//	case *inventory.Item:
//	}
type Node interface {
	// Base returns the fields shared by every node variant.
	Base() *NodeBase

	// Clone returns a detached copy of the node: no children and no link
	// state. Clones are safe to hand to other goroutines.
	Clone() Node

	node()
}

// NodeBase holds identity, name, owner and parent linkage common to folders
// and items.
//
// ParentID is the declared parent, which may reference a folder the store
// has not seen yet. The folder the node is actually attached to is tracked
// separately by the store and is never exposed as a pointer: it is resolved
// through the store's folder table on demand.
type NodeBase struct {
	ID       uuid.UUID
	Name     string
	OwnerID  uuid.UUID
	ParentID uuid.UUID

	// attachedTo is the folder whose children contain this node.
	// Meaningful only when attached is true (the synthetic top folder
	// has id uuid.Nil).
	attachedTo uuid.UUID
	attached   bool
}

// Base implements Node.
func (b *NodeBase) Base() *NodeBase { return b }

// AttachedTo returns the folder currently holding the node, if any.
func (b *NodeBase) AttachedTo() (uuid.UUID, bool) {
	return b.attachedTo, b.attached
}

func (b *NodeBase) attach(parent uuid.UUID) {
	b.attachedTo = parent
	b.attached = true
}

func (b *NodeBase) detach() {
	b.attachedTo = uuid.Nil
	b.attached = false
}

// ============================================================================
// Folder
// ============================================================================

// Folder is an internal node of the tree.
//
// Version is bumped by the server on every structural change and is used to
// reject descendant reports that arrive out of order. DescendentCount is the
// server's count of direct children, which may exceed the number of children
// materialized locally when only part of the folder has been fetched.
type Folder struct {
	NodeBase

	PreferredType   FolderType
	Version         int32
	DescendentCount int32

	// children is owned by the folder and only touched under the store lock
	children map[uuid.UUID]Node
}

// NewFolder returns a folder with an unknown version.
func NewFolder(id, parentID, ownerID uuid.UUID, name string, preferredType FolderType) *Folder {
	return &Folder{
		NodeBase: NodeBase{
			ID:       id,
			Name:     name,
			OwnerID:  ownerID,
			ParentID: parentID,
		},
		PreferredType:   preferredType,
		Version:         FolderVersionUnknown,
		DescendentCount: 0,
	}
}

func (f *Folder) node() {}

// Clone implements Node.
func (f *Folder) Clone() Node {
	c := *f
	c.children = nil
	c.detach()
	return &c
}

// childMap returns the folder's child table, allocating it lazily.
func (f *Folder) childMap() map[uuid.UUID]Node {
	if f.children == nil {
		f.children = make(map[uuid.UUID]Node)
	}
	return f.children
}

// ============================================================================
// Item
// ============================================================================

// ItemKind is the closed set of item variants.
type ItemKind uint8

const (
	KindGeneric ItemKind = iota
	KindTexture
	KindSound
	KindCallingCard
	KindLandmark
	KindObject
	KindNotecard
	KindScript
	KindSnapshot
	KindAttachment
	KindWearable
	KindAnimation
	KindGesture
	KindMesh
	KindSettings
	KindMaterial
)

var itemKindNames = [...]string{
	KindGeneric:     "generic",
	KindTexture:     "texture",
	KindSound:       "sound",
	KindCallingCard: "callingcard",
	KindLandmark:    "landmark",
	KindObject:      "object",
	KindNotecard:    "notecard",
	KindScript:      "script",
	KindSnapshot:    "snapshot",
	KindAttachment:  "attachment",
	KindWearable:    "wearable",
	KindAnimation:   "animation",
	KindGesture:     "gesture",
	KindMesh:        "mesh",
	KindSettings:    "settings",
	KindMaterial:    "material",
}

func (k ItemKind) String() string {
	if int(k) < len(itemKindNames) {
		return itemKindNames[k]
	}
	return "generic"
}

var kindByInventoryType = map[InventoryType]ItemKind{
	InventoryTypeTexture:     KindTexture,
	InventoryTypeSound:       KindSound,
	InventoryTypeCallingCard: KindCallingCard,
	InventoryTypeLandmark:    KindLandmark,
	InventoryTypeObject:      KindObject,
	InventoryTypeNotecard:    KindNotecard,
	InventoryTypeLSL:         KindScript,
	InventoryTypeSnapshot:    KindSnapshot,
	InventoryTypeAttachment:  KindAttachment,
	InventoryTypeWearable:    KindWearable,
	InventoryTypeAnimation:   KindAnimation,
	InventoryTypeGesture:     KindGesture,
	InventoryTypeMesh:        KindMesh,
	InventoryTypeSettings:    KindSettings,
	InventoryTypeMaterial:    KindMaterial,
}

// KindFor maps the server's type discriminants to an item variant.
// Unmapped inventory types fall back to KindGeneric. Clothing and body part
// assets are wearables whatever inventory type they were filed under.
func KindFor(invType InventoryType, assetType AssetType) ItemKind {
	if assetType == AssetTypeClothing || assetType == AssetTypeBodypart {
		return KindWearable
	}
	if kind, ok := kindByInventoryType[invType]; ok {
		return kind
	}
	return KindGeneric
}

// Item is a leaf of the tree.
type Item struct {
	NodeBase

	AssetID       uuid.UUID
	CreatorID     uuid.UUID
	GroupID       uuid.UUID
	LastOwnerID   uuid.UUID
	TransactionID uuid.UUID
	GroupOwned    bool

	Permissions   Permissions
	AssetType     AssetType
	InventoryType InventoryType
	Kind          ItemKind
	Flags         uint32

	SaleType     SaleType
	SalePrice    int32
	CreationDate time.Time
	Description  string
}

// NewItem returns an item whose Kind is derived from its type discriminants.
func NewItem(id, parentID, ownerID uuid.UUID, name string, assetType AssetType, invType InventoryType) *Item {
	return &Item{
		NodeBase: NodeBase{
			ID:       id,
			Name:     name,
			OwnerID:  ownerID,
			ParentID: parentID,
		},
		AssetType:     assetType,
		InventoryType: invType,
		Kind:          KindFor(invType, assetType),
		Permissions:   FullPermissions(),
	}
}

func (i *Item) node() {}

// Clone implements Node.
func (i *Item) Clone() Node {
	c := *i
	c.detach()
	return &c
}

// ============================================================================
// Constructor by kind
// ============================================================================

// NewNode builds the node variant selected by the inventory type.
//
// Folder types produce a *Folder, known item types an *Item of the matching
// kind. Types this library does not know about produce a generic *Item so a
// newer server never makes the client fail.
//
// Parameters:
//   - invType: Inventory type discriminant as delivered by the server
//   - id: Node id
//   - parentID: Declared parent folder id
//   - ownerID: Owner agent id
//
// Returns:
//   - Node: Never nil
func NewNode(invType InventoryType, id, parentID, ownerID uuid.UUID) Node {
	if invType.IsFolder() {
		preferred := FolderTypeNone
		if invType == InventoryTypeRootCategory {
			preferred = FolderTypeRoot
		}
		return NewFolder(id, parentID, ownerID, "", preferred)
	}

	return NewItem(id, parentID, ownerID, "", AssetTypeUnknown, invType)
}

// IDOf returns the id of a node, uuid.Nil for a nil node.
func IDOf(n Node) uuid.UUID {
	if n == nil {
		return uuid.Nil
	}
	return n.Base().ID
}

// NameOf returns the name of a node, "" for a nil node.
func NameOf(n Node) string {
	if n == nil {
		return ""
	}
	return n.Base().Name
}
