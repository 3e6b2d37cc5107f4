package inventory

// Item flag layout. Several item variants pack their specialised state into
// the shared Flags word; the accessors below read and write those bits.
const (
	flagsLowByte              uint32 = 0xFF
	flagLandmarkVisited       uint32 = 0x01
	flagObjectMultipleObjects uint32 = 0x200000
)

// AttachmentPoint returns the attachment point packed in the low byte of an
// attachment or object item's flags.
func AttachmentPoint(item *Item) uint8 {
	return uint8(item.Flags & flagsLowByte)
}

// SetAttachmentPoint stores point in the low byte of the item's flags,
// leaving the other bits untouched.
func SetAttachmentPoint(item *Item, point uint8) {
	item.Flags = (item.Flags &^ flagsLowByte) | uint32(point)
}

// WearableTypeOf returns the wearable type of a clothing or body part item.
func WearableTypeOf(item *Item) WearableType {
	if item.Kind != KindWearable {
		return WearableInvalid
	}
	return WearableType(item.Flags & flagsLowByte)
}

// SetWearableType stores the wearable type in the item's flags.
func SetWearableType(item *Item, t WearableType) {
	item.Flags = (item.Flags &^ flagsLowByte) | uint32(t)
}

// LandmarkVisited reports whether the landmark has been teleported to.
func LandmarkVisited(item *Item) bool {
	return item.Flags&flagLandmarkVisited != 0
}

// SetLandmarkVisited sets or clears the visited bit of a landmark.
func SetLandmarkVisited(item *Item, visited bool) {
	if visited {
		item.Flags |= flagLandmarkVisited
	} else {
		item.Flags &^= flagLandmarkVisited
	}
}

// ObjectMultipleObjects reports whether an object item is a coalesced
// bundle of several objects.
func ObjectMultipleObjects(item *Item) bool {
	return item.Flags&flagObjectMultipleObjects != 0
}

// IsLink reports whether the item is a link to another item or folder.
func IsLink(item *Item) bool {
	return item.AssetType == AssetTypeLink || item.AssetType == AssetTypeLinkFolder
}
