package inventory

import (
	"fmt"
	"strings"
)

// ============================================================================
// Asset Types
// ============================================================================

// AssetType identifies the kind of asset an inventory item points at.
//
// The numeric values are the ones used on the wire by the grid and must not
// be renumbered.
type AssetType int8

const (
	AssetTypeUnknown           AssetType = -1
	AssetTypeTexture           AssetType = 0
	AssetTypeSound             AssetType = 1
	AssetTypeCallingCard       AssetType = 2
	AssetTypeLandmark          AssetType = 3
	AssetTypeClothing          AssetType = 5
	AssetTypeObject            AssetType = 6
	AssetTypeNotecard          AssetType = 7
	AssetTypeFolder            AssetType = 8
	AssetTypeLSLText           AssetType = 10
	AssetTypeLSLBytecode       AssetType = 11
	AssetTypeTextureTGA        AssetType = 12
	AssetTypeBodypart          AssetType = 13
	AssetTypeSoundWAV          AssetType = 17
	AssetTypeImageTGA          AssetType = 18
	AssetTypeImageJPEG         AssetType = 19
	AssetTypeAnimation         AssetType = 20
	AssetTypeGesture           AssetType = 21
	AssetTypeSimstate          AssetType = 22
	AssetTypeLink              AssetType = 24
	AssetTypeLinkFolder        AssetType = 25
	AssetTypeMarketplaceFolder AssetType = 26
	AssetTypeMesh              AssetType = 49
	AssetTypeSettings          AssetType = 56
	AssetTypeMaterial          AssetType = 57
)

var assetTypeNames = map[AssetType]string{
	AssetTypeUnknown:           "unknown",
	AssetTypeTexture:           "texture",
	AssetTypeSound:             "sound",
	AssetTypeCallingCard:       "callcard",
	AssetTypeLandmark:          "landmark",
	AssetTypeClothing:          "clothing",
	AssetTypeObject:            "object",
	AssetTypeNotecard:          "notecard",
	AssetTypeFolder:            "category",
	AssetTypeLSLText:           "lsltext",
	AssetTypeLSLBytecode:       "lslbyte",
	AssetTypeTextureTGA:        "txtr_tga",
	AssetTypeBodypart:          "bodypart",
	AssetTypeSoundWAV:          "snd_wav",
	AssetTypeImageTGA:          "img_tga",
	AssetTypeImageJPEG:         "jpeg",
	AssetTypeAnimation:         "animatn",
	AssetTypeGesture:           "gesture",
	AssetTypeSimstate:          "simstate",
	AssetTypeLink:              "link",
	AssetTypeLinkFolder:        "link_f",
	AssetTypeMarketplaceFolder: "marketplace",
	AssetTypeMesh:              "mesh",
	AssetTypeSettings:          "settings",
	AssetTypeMaterial:          "material",
}

func (t AssetType) String() string {
	if name, ok := assetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("asset(%d)", int8(t))
}

// ParseAssetType returns the asset type for its short wire name.
// Unknown names map to AssetTypeUnknown.
func ParseAssetType(name string) AssetType {
	name = strings.ToLower(name)
	for t, n := range assetTypeNames {
		if n == name {
			return t
		}
	}
	return AssetTypeUnknown
}

// ============================================================================
// Folder Types
// ============================================================================

// FolderType is the preferred-type hint carried by a folder. It tells the
// client which system folder (Trash, Textures, Current Outfit, ...) a folder
// stands for. FolderTypeNone marks an ordinary user folder.
type FolderType int8

const (
	FolderTypeNone          FolderType = -1
	FolderTypeTexture       FolderType = 0
	FolderTypeSound         FolderType = 1
	FolderTypeCallingCard   FolderType = 2
	FolderTypeLandmark      FolderType = 3
	FolderTypeClothing      FolderType = 5
	FolderTypeObject        FolderType = 6
	FolderTypeNotecard      FolderType = 7
	FolderTypeRoot          FolderType = 8
	FolderTypeLSLText       FolderType = 10
	FolderTypeBodyPart      FolderType = 13
	FolderTypeTrash         FolderType = 14
	FolderTypeSnapshot      FolderType = 15
	FolderTypeLostAndFound  FolderType = 16
	FolderTypeAnimation     FolderType = 20
	FolderTypeGesture       FolderType = 21
	FolderTypeFavorites     FolderType = 23
	FolderTypeCurrentOutfit FolderType = 46
	FolderTypeOutfit        FolderType = 47
	FolderTypeMyOutfits     FolderType = 48
	FolderTypeMesh          FolderType = 49
	FolderTypeInbox         FolderType = 50
	FolderTypeOutbox        FolderType = 51
	FolderTypeBasicRoot     FolderType = 52
	FolderTypeSettings      FolderType = 56
	FolderTypeMaterial      FolderType = 57
	FolderTypeSuitcase      FolderType = 100
)

var folderTypeNames = map[FolderType]string{
	FolderTypeNone:          "none",
	FolderTypeTexture:       "texture",
	FolderTypeSound:         "sound",
	FolderTypeCallingCard:   "callcard",
	FolderTypeLandmark:      "landmark",
	FolderTypeClothing:      "clothing",
	FolderTypeObject:        "object",
	FolderTypeNotecard:      "notecard",
	FolderTypeRoot:          "root_inv",
	FolderTypeLSLText:       "lsltext",
	FolderTypeBodyPart:      "bodypart",
	FolderTypeTrash:         "trash",
	FolderTypeSnapshot:      "snapshot",
	FolderTypeLostAndFound:  "lstndfnd",
	FolderTypeAnimation:     "animatn",
	FolderTypeGesture:       "gesture",
	FolderTypeFavorites:     "favorite",
	FolderTypeCurrentOutfit: "current",
	FolderTypeOutfit:        "outfit",
	FolderTypeMyOutfits:     "my_otfts",
	FolderTypeMesh:          "mesh",
	FolderTypeInbox:         "inbox",
	FolderTypeOutbox:        "outbox",
	FolderTypeBasicRoot:     "basic_rt",
	FolderTypeSettings:      "settings",
	FolderTypeMaterial:      "material",
	FolderTypeSuitcase:      "suitcase",
}

func (t FolderType) String() string {
	if name, ok := folderTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("folder(%d)", int8(t))
}

// ParseFolderType returns the folder type for its short name, FolderTypeNone
// when the name is not recognised.
func ParseFolderType(name string) FolderType {
	name = strings.ToLower(name)
	for t, n := range folderTypeNames {
		if n == name {
			return t
		}
	}
	return FolderTypeNone
}

// FolderTypeForAsset returns the system folder that by convention receives
// new items of the given asset type.
func FolderTypeForAsset(t AssetType) FolderType {
	switch t {
	case AssetTypeTexture, AssetTypeTextureTGA, AssetTypeImageTGA, AssetTypeImageJPEG:
		return FolderTypeTexture
	case AssetTypeSound, AssetTypeSoundWAV:
		return FolderTypeSound
	case AssetTypeCallingCard:
		return FolderTypeCallingCard
	case AssetTypeLandmark:
		return FolderTypeLandmark
	case AssetTypeClothing:
		return FolderTypeClothing
	case AssetTypeObject:
		return FolderTypeObject
	case AssetTypeNotecard:
		return FolderTypeNotecard
	case AssetTypeLSLText, AssetTypeLSLBytecode:
		return FolderTypeLSLText
	case AssetTypeBodypart:
		return FolderTypeBodyPart
	case AssetTypeAnimation:
		return FolderTypeAnimation
	case AssetTypeGesture:
		return FolderTypeGesture
	case AssetTypeMesh:
		return FolderTypeMesh
	case AssetTypeSettings:
		return FolderTypeSettings
	case AssetTypeMaterial:
		return FolderTypeMaterial
	default:
		return FolderTypeNone
	}
}

// ============================================================================
// Inventory Types
// ============================================================================

// InventoryType is the discriminant the server attaches to every inventory
// record. It selects the node variant built by NewNode.
type InventoryType int8

const (
	InventoryTypeUnknown      InventoryType = -1
	InventoryTypeTexture      InventoryType = 0
	InventoryTypeSound        InventoryType = 1
	InventoryTypeCallingCard  InventoryType = 2
	InventoryTypeLandmark     InventoryType = 3
	InventoryTypeObject       InventoryType = 6
	InventoryTypeNotecard     InventoryType = 7
	InventoryTypeCategory     InventoryType = 8
	InventoryTypeRootCategory InventoryType = 9
	InventoryTypeLSL          InventoryType = 10
	InventoryTypeSnapshot     InventoryType = 15
	InventoryTypeAttachment   InventoryType = 17
	InventoryTypeWearable     InventoryType = 18
	InventoryTypeAnimation    InventoryType = 19
	InventoryTypeGesture      InventoryType = 20
	InventoryTypeMesh         InventoryType = 22
	InventoryTypeSettings     InventoryType = 25
	InventoryTypeMaterial     InventoryType = 26
)

var inventoryTypeNames = map[InventoryType]string{
	InventoryTypeUnknown:      "unknown",
	InventoryTypeTexture:      "texture",
	InventoryTypeSound:        "sound",
	InventoryTypeCallingCard:  "callcard",
	InventoryTypeLandmark:     "landmark",
	InventoryTypeObject:       "object",
	InventoryTypeNotecard:     "notecard",
	InventoryTypeCategory:     "category",
	InventoryTypeRootCategory: "root",
	InventoryTypeLSL:          "script",
	InventoryTypeSnapshot:     "snapshot",
	InventoryTypeAttachment:   "attach",
	InventoryTypeWearable:     "wearable",
	InventoryTypeAnimation:    "animation",
	InventoryTypeGesture:      "gesture",
	InventoryTypeMesh:         "mesh",
	InventoryTypeSettings:     "settings",
	InventoryTypeMaterial:     "material",
}

func (t InventoryType) String() string {
	if name, ok := inventoryTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("inv(%d)", int8(t))
}

// ParseInventoryType returns the inventory type for its short name.
func ParseInventoryType(name string) InventoryType {
	name = strings.ToLower(name)
	for t, n := range inventoryTypeNames {
		if n == name {
			return t
		}
	}
	return InventoryTypeUnknown
}

// IsFolder reports whether records of this inventory type describe folders.
func (t InventoryType) IsFolder() bool {
	return t == InventoryTypeCategory || t == InventoryTypeRootCategory
}

// ============================================================================
// Wearable Types
// ============================================================================

// WearableType is packed into the low byte of a wearable item's flags.
type WearableType uint8

const (
	WearableShape WearableType = iota
	WearableSkin
	WearableHair
	WearableEyes
	WearableShirt
	WearablePants
	WearableShoes
	WearableSocks
	WearableJacket
	WearableGloves
	WearableUndershirt
	WearableUnderpants
	WearableSkirt
	WearableAlpha
	WearableTattoo
	WearablePhysics
	WearableUniversal
	WearableInvalid WearableType = 255
)

// ============================================================================
// Sale Types
// ============================================================================

// SaleType describes how an item is offered for sale.
type SaleType uint8

const (
	SaleNot      SaleType = 0
	SaleOriginal SaleType = 1
	SaleCopy     SaleType = 2
	SaleContents SaleType = 3
)

func (t SaleType) String() string {
	switch t {
	case SaleNot:
		return "not"
	case SaleOriginal:
		return "orig"
	case SaleCopy:
		return "copy"
	case SaleContents:
		return "cntn"
	default:
		return fmt.Sprintf("sale(%d)", uint8(t))
	}
}
