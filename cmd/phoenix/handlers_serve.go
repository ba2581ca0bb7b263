package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/internal/gatewayhttp"
	"github.com/scottopell/phoenix-ide/internal/jobs"
	"github.com/scottopell/phoenix-ide/internal/llm"
	"github.com/scottopell/phoenix-ide/internal/models"
	"github.com/scottopell/phoenix-ide/internal/recovery"
	"github.com/scottopell/phoenix-ide/internal/steering"
	"github.com/scottopell/phoenix-ide/internal/storage"
	"github.com/scottopell/phoenix-ide/internal/telemetry"
	"github.com/scottopell/phoenix-ide/internal/tools"
	"github.com/scottopell/phoenix-ide/internal/tools/exec"
	"github.com/scottopell/phoenix-ide/internal/tools/files"
	"github.com/scottopell/phoenix-ide/internal/tools/subagent"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// runServe implements the serve command: load config, open storage, run
// crash recovery, wire the executor and HTTP surface, then block until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting phoenix", "version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, &storage.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxConnections / 2,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	store := storage.NewSQLStore(db, cfg.Database.Driver)

	llmClient, err := llm.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure llm client: %w", err)
	}

	registry := tools.NewRegistry()
	registry.Register(files.NewReadTool(files.Config{Workspace: cfg.Workspace(), MaxReadBytes: 200000}))
	registry.Register(files.NewWriteTool(files.Config{Workspace: cfg.Workspace()}))
	registry.Register(files.NewEditTool(files.Config{Workspace: cfg.Workspace()}))
	registry.Register(exec.NewTool(cfg.Workspace()))
	registry.Register(subagent.NewTool())

	steerQueue := steering.New()

	metrics := telemetry.NewMetrics()
	tracer := telemetry.NewTracer(telemetry.TraceConfig{
		ServiceName:    "phoenix",
		ServiceVersion: version,
	})
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	handler := gatewayhttp.NewHandler(gatewayhttp.Config{
		Store:            store,
		Steering:         steerQueue,
		Catalog:          models.DefaultCatalog,
		Logger:           slog.Default(),
		Workspace:        cfg.Workspace(),
		SteeringSettings: steering.Settings{MaxItems: cfg.Steering.MaxItems, DropPolicy: cfg.Steering.DropPolicy},
		FallbackChain:    cfg.LLM.FallbackChain,
		Metrics:          metrics,
	})

	ex := executor.New(executor.Config{
		Store:             store,
		Llm:               llmClient,
		Tools:             executor.NewToolRunner(registry),
		Notifier:          handler,
		Logger:            slog.Default(),
		InboxSize:         cfg.Executor.InboxSize,
		Steering:          steerQueue,
		Jobs:              jobs.NewSQLStore(db, cfg.Database.Driver),
		AsyncTools:        cfg.Executor.AsyncTools,
		RequestsPerSecond: cfg.Executor.RequestsPerSecond,
		Metrics:           metrics,
	})
	handler.SetExecutor(ex)

	report, err := runRecovery(ctx, store, ex)
	if err != nil {
		return err
	}
	slog.Info("crash recovery complete",
		"conversations_reset", report.ConversationsReset,
		"conversations_resumed", report.ConversationsResumed,
		"orphan_tool_uses_repaired", report.OrphanToolUsesRepaired,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler.Mount(),
	}

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: metricsMux,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	slog.Info("phoenix started", "http_addr", addr, "metrics_addr", metricsAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", "error", err)
	}

	slog.Info("phoenix stopped gracefully")
	return nil
}

// runRecovery runs the crash-recovery pass and starts an executor actor for
// every conversation it returns, so a resumed server looks identical to one
// that never crashed (spec.md §4.5/§8).
func runRecovery(ctx context.Context, store *storage.SQLStore, ex *executor.Executor) (recovery.Report, error) {
	infos, report, err := recovery.Run(ctx, store, slog.Default())
	if err != nil {
		return recovery.Report{}, fmt.Errorf("recovery failed: %w", err)
	}
	for _, info := range infos {
		ex.Start(info, convcore.Idle{})
		report.ConversationsResumed++
	}
	return report, nil
}
