package metrics

import "time"

// Snapshot cache operations.
const (
	CacheSave   = "save"
	CacheLoad   = "load"
	CacheDelete = "delete"
)

// CacheMetrics provides observability for snapshot cache backends.
//
// Backends do not record anything themselves; wrap them with
// cache.NewInstrumentedStore to report through this interface.
type CacheMetrics interface {
	// ObserveOperation records one backend call.
	//
	// Parameters:
	//   - backend: Cache type ("fs", "memory", "badger", "s3")
	//   - operation: CacheSave, CacheLoad or CacheDelete
	//   - bytes: Snapshot size moved by the call, 0 for deletes and failures
	//   - duration: Time spent in the backend
	//   - err: Error returned by the backend, nil on success
	ObserveOperation(backend, operation string, bytes int, duration time.Duration, err error)

	// RecordMiss counts a load that found no snapshot.
	RecordMiss(backend string)
}

// NewNoopCacheMetrics returns a CacheMetrics that records nothing.
func NewNoopCacheMetrics() CacheMetrics {
	return noopCacheMetrics{}
}

type noopCacheMetrics struct{}

func (noopCacheMetrics) ObserveOperation(string, string, int, time.Duration, error) {}
func (noopCacheMetrics) RecordMiss(string)                                         {}
