package config

import (
	"github.com/marmos91/gridinv/pkg/metrics"
	promMetrics "github.com/marmos91/gridinv/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// InventoryMetrics is the collector handed to the inventory manager
	// (never nil, uses noop if disabled)
	InventoryMetrics metrics.InventoryMetrics

	// CacheMetrics observes the snapshot cache backend (never nil, uses noop
	// if disabled)
	CacheMetrics metrics.CacheMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed inventory and cache metrics
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Server:           nil,
			InventoryMetrics: metrics.NewNoopInventoryMetrics(),
			CacheMetrics:     metrics.NewNoopCacheMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:           server,
		InventoryMetrics: promMetrics.NewInventoryMetrics(),
		CacheMetrics:     promMetrics.NewCacheMetrics(),
	}
}
