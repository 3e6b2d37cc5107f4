package prometheus

import (
	"time"

	"github.com/marmos91/gridinv/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// inventoryMetrics is the Prometheus implementation of metrics.InventoryMetrics.
type inventoryMetrics struct {
	storeOperations  *prometheus.CounterVec
	storeDuration    *prometheus.HistogramVec
	nodes            *prometheus.GaugeVec
	staleReports     prometheus.Counter
	requestsSent     *prometheus.CounterVec
	capsRequests     *prometheus.CounterVec
	capsDuration     *prometheus.HistogramVec
	waits            *prometheus.CounterVec
	waitDuration     *prometheus.HistogramVec
	pendingCallbacks prometheus.Gauge
}

// NewInventoryMetrics creates a new Prometheus-backed InventoryMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewInventoryMetrics() metrics.InventoryMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopInventoryMetrics()
	}

	reg := metrics.GetRegistry()

	return &inventoryMetrics{
		storeOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridinv_store_operations_total",
				Help: "Total number of inventory store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		storeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gridinv_store_operation_duration_seconds",
				Help: "Duration of inventory store operations in seconds",
				Buckets: []float64{
					0.00001, // 10µs
					0.0001,  // 100µs
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
				},
			},
			[]string{"operation"},
		),
		nodes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gridinv_nodes",
				Help: "Number of known inventory nodes by state",
			},
			[]string{"state"},
		),
		staleReports: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gridinv_stale_descendent_reports_total",
				Help: "Descendant reports ignored because they were older than the known folder version",
			},
		),
		requestsSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridinv_requests_sent_total",
				Help: "Outbound inventory messages by message type",
			},
			[]string{"message"},
		),
		capsRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridinv_capability_requests_total",
				Help: "HTTP capability requests by capability and status",
			},
			[]string{"capability", "status"},
		),
		capsDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gridinv_capability_request_duration_seconds",
				Help: "Duration of HTTP capability requests in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.1,  // 100ms
					0.5,  // 500ms
					1,    // 1s
					5,    // 5s
					30,   // 30s
				},
			},
			[]string{"capability"},
		),
		waits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridinv_waits_total",
				Help: "Bounded synchronous waits by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		waitDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gridinv_wait_duration_seconds",
				Help: "Duration of bounded synchronous waits in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.1,  // 100ms
					1,    // 1s
					5,    // 5s
					30,   // 30s
				},
			},
			[]string{"kind"},
		),
		pendingCallbacks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gridinv_pending_callbacks",
				Help: "Registered callbacks, waiters and path searches not yet resolved",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *inventoryMetrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	m.storeOperations.WithLabelValues(operation, status(err)).Inc()
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *inventoryMetrics) SetNodeCounts(folders, items, parked int) {
	m.nodes.WithLabelValues("folder").Set(float64(folders))
	m.nodes.WithLabelValues("item").Set(float64(items))
	m.nodes.WithLabelValues("parked").Set(float64(parked))
}

func (m *inventoryMetrics) RecordStaleReport() {
	m.staleReports.Inc()
}

func (m *inventoryMetrics) RecordRequestSent(messageType string) {
	m.requestsSent.WithLabelValues(messageType).Inc()
}

func (m *inventoryMetrics) RecordCapabilityRequest(capability string, duration time.Duration, err error) {
	m.capsRequests.WithLabelValues(capability, status(err)).Inc()
	m.capsDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

func (m *inventoryMetrics) RecordWait(kind, outcome string, duration time.Duration) {
	m.waits.WithLabelValues(kind, outcome).Inc()
	m.waitDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *inventoryMetrics) SetPendingCallbacks(count int) {
	m.pendingCallbacks.Set(float64(count))
}
