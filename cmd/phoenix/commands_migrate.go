package main

import (
	"github.com/spf13/cobra"
)

// buildMigrateCmd creates the "migrate" command: applying migrations is a
// side effect of storage.Open, so this command's only job is to open the
// database (which runs them) and report success.
func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Connect to the configured database and apply any pending schema
migrations. This is the same migration step phoenix serve runs on startup;
use this command to apply them ahead of time, e.g. before a deploy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
