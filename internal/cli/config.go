// internal/cli/config.go
package supportbot

import (
	"github.com/k0kubun/pp"
	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/spf13/cobra"
)

var showRawConfig bool

// configCmd groups configuration subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Group commands for inspecting configuration",
}

// configShowCmd implements 'config show', which displays the merged configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show config settings",
	Long:  `Show config settings after merging defaults, the config file, the environment and flags.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := GetConfig()
		if cfg == nil {
			def := appconfig.Default()
			cfg = &def
		}
		if showRawConfig {
			pp.ColoringEnabled = isTerminal(cmd.OutOrStdout())
			pp.Fprintln(cmd.OutOrStdout(), *cfg)
			return
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), *cfg)
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&showRawConfig, "raw", false, "dump the config struct")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
