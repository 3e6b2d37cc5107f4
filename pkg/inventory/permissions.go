package inventory

import "strings"

// PermissionMask is the grid's permission bit set.
type PermissionMask uint32

const (
	PermissionNone     PermissionMask = 0
	PermissionTransfer PermissionMask = 1 << 13
	PermissionModify   PermissionMask = 1 << 14
	PermissionCopy     PermissionMask = 1 << 15
	PermissionMove     PermissionMask = 1 << 19
	PermissionDamage   PermissionMask = 1 << 20
	PermissionAll      PermissionMask = 0x7FFFFFFF
)

// Has reports whether every bit of perm is set in m.
func (m PermissionMask) Has(perm PermissionMask) bool {
	return m&perm == perm
}

// String renders the mask in the compact "MCT" form used by viewers.
func (m PermissionMask) String() string {
	if m == PermissionAll {
		return "all"
	}
	var b strings.Builder
	if m.Has(PermissionModify) {
		b.WriteByte('M')
	}
	if m.Has(PermissionCopy) {
		b.WriteByte('C')
	}
	if m.Has(PermissionTransfer) {
		b.WriteByte('T')
	}
	if m.Has(PermissionMove) {
		b.WriteByte('V')
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}

// Permissions holds the five permission masks attached to an item.
//
// The library records these as delivered by the server; enforcing them is
// the server's job.
type Permissions struct {
	Base      PermissionMask
	Owner     PermissionMask
	Group     PermissionMask
	Everyone  PermissionMask
	NextOwner PermissionMask
}

// FullPermissions returns a permission set granting everything to the owner.
func FullPermissions() Permissions {
	return Permissions{
		Base:      PermissionAll,
		Owner:     PermissionAll,
		NextOwner: PermissionAll,
	}
}
