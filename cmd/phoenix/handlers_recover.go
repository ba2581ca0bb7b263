package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/recovery"
	"github.com/scottopell/phoenix-ide/internal/storage"
)

// runRecoverCmd loads config, opens storage, and runs the recovery pass,
// printing what it found without starting any executor actors or the HTTP
// server — a dry, inspectable variant of what phoenix serve does at boot.
func runRecoverCmd(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := storage.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	store := storage.NewSQLStore(db, cfg.Database.Driver)

	infos, report, err := recovery.Run(cmd.Context(), store, nil)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Crash recovery complete")
	fmt.Fprintf(out, "  conversations reset to idle:      %d\n", report.ConversationsReset)
	fmt.Fprintf(out, "  orphaned tool_use blocks repaired: %d\n", report.OrphanToolUsesRepaired)
	fmt.Fprintf(out, "  conversations resumable:           %d\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(out, "    - %s (model %s, cwd %s)\n", info.ConversationID, info.Model.ID, info.CWD)
	}
	return nil
}
