// Package cache defines where serialized inventory snapshots live between
// sessions.
//
// A backend stores one opaque blob per owner. The blob is produced by
// inventory.Store.Save and consumed by inventory.Store.Restore; backends never
// look inside it.
package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrCacheMiss is returned by Load when no snapshot exists for the owner.
var ErrCacheMiss = errors.New("cache: no snapshot for owner")

// Store persists inventory snapshots keyed by owner.
//
// Implementations must be safe for concurrent use. Save replaces any
// previous snapshot for the owner; a concurrent Load observes either the old
// or the new blob, never a partial one.
type Store interface {
	// Save stores data as the snapshot for owner.
	Save(ctx context.Context, owner uuid.UUID, data []byte) error

	// Load returns the snapshot for owner, ErrCacheMiss when there is none.
	Load(ctx context.Context, owner uuid.UUID) ([]byte, error)

	// Delete removes the snapshot for owner. Deleting a missing snapshot is
	// not an error.
	Delete(ctx context.Context, owner uuid.UUID) error

	// Close releases backend resources.
	Close() error
}

// FileName returns the object/file name used for an owner's snapshot.
func FileName(owner uuid.UUID) string {
	return owner.String() + ".inv"
}
