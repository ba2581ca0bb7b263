// Package main provides the CLI entry point for the phoenix conversation
// core: a local, single-user agent runtime with an explicit state machine,
// an async per-conversation executor, and a REST+SSE surface one UI client
// drives it through.
//
// # Basic Usage
//
// Start the server:
//
//	phoenix serve --config phoenix.yaml
//
// Apply pending database migrations:
//
//	phoenix migrate
//
// Run the crash-recovery pass without starting the server:
//
//	phoenix recover --config phoenix.yaml
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, FIREWORKS_API_KEY: provider credentials
//   - LLM_GATEWAY: routes every model through a single upstream endpoint
//   - PHOENIX_HTTP_PORT, DATABASE_URL: override the corresponding config fields
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "phoenix",
		Short: "phoenix - local single-user agent conversation core",
		Long: `phoenix runs conversations through an explicit state machine and an
async, crash-recoverable executor, exposing them over a REST+SSE surface
for a single local UI client.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildRecoverCmd(),
	)

	return rootCmd
}

func resolveConfigPath(path string) string {
	if path == "" {
		return "phoenix.yaml"
	}
	return path
}
