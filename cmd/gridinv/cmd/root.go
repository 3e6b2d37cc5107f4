package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/gridinv/pkg/config"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gridinv",
	Short: "Inspect and manage cached grid inventories",
	Long: `gridinv works with the inventory snapshots saved by the gridinv library.

Snapshots are stored per owner in the configured cache backend (fs, memory,
badger or s3). Use "gridinv init" to write a default configuration file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help, completion and init
		switch cmd.Name() {
		case "help", "completion", "init":
			return nil
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if err := config.ConfigureLogging(&loaded.Logging); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.GetDefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (DEBUG, INFO, WARN, ERROR)")
}

// ownerFromArgs returns the owner named on the command line, falling back to
// the session owner and agent from the configuration.
func ownerFromArgs(args []string) (uuid.UUID, error) {
	if len(args) > 0 {
		owner, err := uuid.Parse(args[0])
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid owner id %q: %w", args[0], err)
		}
		return owner, nil
	}

	for _, id := range []string{cfg.Session.OwnerID, cfg.Session.AgentID} {
		if id != "" {
			return uuid.Parse(id)
		}
	}
	return uuid.Nil, fmt.Errorf("no owner given and none configured (session.owner_id / session.agent_id)")
}
