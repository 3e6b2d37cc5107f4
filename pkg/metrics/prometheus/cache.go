package prometheus

import (
	"time"

	"github.com/marmos91/gridinv/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cacheMetrics is the Prometheus implementation of metrics.CacheMetrics.
//
// This implementation collects metrics about snapshot cache backends including:
//   - Operation counts by backend, operation and status
//   - Operation latency
//   - Snapshot bytes moved
//   - Cache misses
type cacheMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
	misses     *prometheus.CounterVec
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() metrics.CacheMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopCacheMetrics()
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridinv_cache_operations_total",
				Help: "Total number of snapshot cache operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gridinv_cache_operation_duration_seconds",
				Help: "Duration of snapshot cache operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1,      // 1s
					10,     // 10s
				},
			},
			[]string{"backend", "operation"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridinv_cache_bytes_total",
				Help: "Snapshot bytes moved to and from the cache",
			},
			[]string{"backend", "operation"},
		),
		misses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridinv_cache_misses_total",
				Help: "Snapshot loads that found no cached inventory",
			},
			[]string{"backend"},
		),
	}
}

func (m *cacheMetrics) ObserveOperation(backend, operation string, bytes int, duration time.Duration, err error) {
	m.operations.WithLabelValues(backend, operation, status(err)).Inc()
	m.duration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if bytes > 0 {
		m.bytes.WithLabelValues(backend, operation).Add(float64(bytes))
	}
}

func (m *cacheMetrics) RecordMiss(backend string) {
	m.misses.WithLabelValues(backend).Inc()
}
