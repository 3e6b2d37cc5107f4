package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/metrics"
)

// InstrumentedStore reports every call of the wrapped backend to a
// metrics.CacheMetrics.
type InstrumentedStore struct {
	Store
	backend string
	metrics metrics.CacheMetrics
}

// NewInstrumentedStore wraps store. backend labels the reported metrics.
// A nil m returns store unchanged.
func NewInstrumentedStore(store Store, backend string, m metrics.CacheMetrics) Store {
	if m == nil {
		return store
	}
	return &InstrumentedStore{Store: store, backend: backend, metrics: m}
}

// Unwrap returns the wrapped backend.
func (s *InstrumentedStore) Unwrap() Store {
	return s.Store
}

func (s *InstrumentedStore) Save(ctx context.Context, owner uuid.UUID, data []byte) error {
	start := time.Now()
	err := s.Store.Save(ctx, owner, data)

	size := len(data)
	if err != nil {
		size = 0
	}
	s.metrics.ObserveOperation(s.backend, metrics.CacheSave, size, time.Since(start), err)
	return err
}

func (s *InstrumentedStore) Load(ctx context.Context, owner uuid.UUID) ([]byte, error) {
	start := time.Now()
	data, err := s.Store.Load(ctx, owner)
	if errors.Is(err, ErrCacheMiss) {
		s.metrics.RecordMiss(s.backend)
		s.metrics.ObserveOperation(s.backend, metrics.CacheLoad, 0, time.Since(start), nil)
		return nil, err
	}
	s.metrics.ObserveOperation(s.backend, metrics.CacheLoad, len(data), time.Since(start), err)
	return data, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, owner uuid.UUID) error {
	start := time.Now()
	err := s.Store.Delete(ctx, owner)
	s.metrics.ObserveOperation(s.backend, metrics.CacheDelete, 0, time.Since(start), err)
	return err
}
