package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the gateway server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the phoenix conversation server",
		Long: `Start the phoenix server.

The server will:
1. Load configuration from the specified file (or phoenix.yaml)
2. Open the database connection and apply pending migrations
3. Run the crash-recovery pass and resume any in-flight conversations
4. Start the REST+SSE HTTP surface

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  phoenix serve

  # Start with a custom config file
  phoenix serve --config /etc/phoenix/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
