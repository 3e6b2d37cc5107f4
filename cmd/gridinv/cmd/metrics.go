package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/config"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [owner-id]",
	Short: "Serve Prometheus metrics for a cached inventory",
	Long: `Restore an owner's snapshot, publish its node counts and serve /metrics
until interrupted. Requires metrics.enabled in the configuration.

Example:
  GRIDINV_METRICS_ENABLED=true gridinv metrics`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Metrics.Enabled {
			return fmt.Errorf("metrics are disabled (set metrics.enabled)")
		}

		result := config.InitializeMetrics(cfg)

		start := time.Now()
		store, err := loadInstrumentedSnapshot(cmd.Context(), args, result.CacheMetrics)
		result.InventoryMetrics.RecordStoreOperation("restore", time.Since(start), err)
		if err != nil {
			return err
		}

		stats := store.Stats()
		result.InventoryMetrics.SetNodeCounts(stats.Folders, stats.Items, stats.Unresolved)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("Serving metrics for %s on port %d. Press Ctrl+C to stop.", store.Owner(), result.Server.Port())
		return result.Server.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
