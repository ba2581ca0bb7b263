package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/storage"
)

// runMigrate loads config and opens the database, which applies every
// pending migration under internal/storage/migrations before returning.
func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := storage.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN, nil)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	defer db.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied for %s (%s)\n", cfg.Database.Driver, cfg.Database.DSN)
	return nil
}
