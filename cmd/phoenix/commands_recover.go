package main

import (
	"github.com/spf13/cobra"
)

// buildRecoverCmd creates the "recover" command: runs the crash-recovery
// pass (reset in-flight state, repair orphaned tool_use blocks) without
// starting the HTTP server, useful for inspecting recovery behavior or
// repairing a database before bringing the server back up.
func buildRecoverCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Run the crash-recovery pass without starting the server",
		Long: `Reset every non-terminal conversation's state to idle and repair any
tool_use block left without a paired tool_result, then exit. phoenix serve
runs this same pass automatically on startup; use this command to run it
standalone, e.g. after restoring a database backup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runRecoverCmd(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
