package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/gridinv/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a commented configuration file with all defaults applied.

Without --config the file goes to the default location
($XDG_CONFIG_HOME/gridinv/config.yaml or ~/.config/gridinv/config.yaml).

Examples:
  gridinv init
  gridinv init --force
  gridinv init --config ./gridinv.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.InitConfig(initForce); err != nil {
				return err
			}
		} else if err := config.InitConfigToPath(path, initForce); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}
