package metrics

import "time"

// Outcomes of a bounded wait.
const (
	WaitCompleted = "completed"
	WaitTimeout   = "timeout"
	WaitCancelled = "cancelled"
)

// InventoryMetrics provides observability for the inventory manager.
//
// This interface is optional - if not provided to the manager, a no-op
// implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := prometheus.NewInventoryMetrics()
//	mgr := manager.New(manager.Options{Metrics: m, ...})
//
//	// Without metrics (no-op)
//	mgr := manager.New(manager.Options{...})
type InventoryMetrics interface {
	// RecordStoreOperation records a store mutation applied from an inbound
	// message or a local request.
	//
	// Parameters:
	//   - operation: "add", "move", "remove", "reconcile", "restore"
	//   - duration: Time spent applying it
	//   - err: Error if the store rejected it, nil otherwise
	RecordStoreOperation(operation string, duration time.Duration, err error)

	// SetNodeCounts updates the linked and parked node gauges.
	SetNodeCounts(folders, items, parked int)

	// RecordStaleReport counts descendant reports ignored because their
	// version was older than the known folder version.
	RecordStaleReport()

	// RecordRequestSent counts an outbound message by type name.
	RecordRequestSent(messageType string)

	// RecordCapabilityRequest records an HTTP capability round trip.
	RecordCapabilityRequest(capability string, duration time.Duration, err error)

	// RecordWait records a bounded synchronous wait.
	//
	// Parameters:
	//   - kind: "fetch_item", "folder_contents", "find_path", "create_item", "copy_item"
	//   - outcome: WaitCompleted, WaitTimeout or WaitCancelled
	//   - duration: Time spent waiting
	RecordWait(kind, outcome string, duration time.Duration)

	// SetPendingCallbacks updates the pending callback gauge.
	SetPendingCallbacks(count int)
}

// NewNoopInventoryMetrics returns an InventoryMetrics that records nothing.
func NewNoopInventoryMetrics() InventoryMetrics {
	return noopInventoryMetrics{}
}

type noopInventoryMetrics struct{}

func (noopInventoryMetrics) RecordStoreOperation(string, time.Duration, error)    {}
func (noopInventoryMetrics) SetNodeCounts(int, int, int)                          {}
func (noopInventoryMetrics) RecordStaleReport()                                   {}
func (noopInventoryMetrics) RecordRequestSent(string)                             {}
func (noopInventoryMetrics) RecordCapabilityRequest(string, time.Duration, error) {}
func (noopInventoryMetrics) RecordWait(string, string, time.Duration)             {}
func (noopInventoryMetrics) SetPendingCallbacks(int)                              {}
