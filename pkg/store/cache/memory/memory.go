// Package memory implements an in-memory snapshot cache for tests and
// sessions that don't persist.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

// MemoryCacheStore keeps snapshots in a map.
type MemoryCacheStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID][]byte
}

// NewMemoryCacheStore creates an empty in-memory cache.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{data: make(map[uuid.UUID][]byte)}
}

// Save implements cache.Store. The data is copied.
func (s *MemoryCacheStore) Save(ctx context.Context, owner uuid.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.data[owner] = buf
	s.mu.Unlock()
	return nil
}

// Load implements cache.Store. The returned slice is a copy.
func (s *MemoryCacheStore) Load(ctx context.Context, owner uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.data[owner]
	s.mu.RUnlock()
	if !ok {
		return nil, cache.ErrCacheMiss
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete implements cache.Store.
func (s *MemoryCacheStore) Delete(ctx context.Context, owner uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, owner)
	s.mu.Unlock()
	return nil
}

// Close implements cache.Store.
func (s *MemoryCacheStore) Close() error {
	return nil
}
