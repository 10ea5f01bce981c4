package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcpsched/internal/api"
	"mcpsched/internal/config"
	"mcpsched/internal/core"
	"mcpsched/internal/executors"
	"mcpsched/internal/logging"
	mcpschedmcp "mcpsched/internal/mcp"
	"mcpsched/internal/notify"
	"mcpsched/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	location := time.Local
	if cfg.Scheduler.UseUTC {
		location = time.UTC
	}

	dispatcher, invoker, err := buildDispatcher(cfg, logger)
	if err != nil {
		logger.Error("build executors", "err", err)
		os.Exit(1)
	}
	if invoker != nil {
		defer invoker.Close()
	}

	scheduler := core.NewScheduler(storeInst, dispatcher, logger, cfg.Scheduler.TickInterval)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("start scheduler", "err", err)
		os.Exit(1)
	}

	// Run based on mode
	switch cfg.Mode {
	case "http", "":
		runHTTPMode(cfg, storeInst, scheduler, logger, location)
	case "mcp":
		runMCPMode(storeInst, scheduler, logger, location, cancel)
	case "both":
		runBothMode(cfg, storeInst, scheduler, logger, location)
	default:
		logger.Error("invalid mode", "mode", cfg.Mode, "valid", []string{"http", "mcp", "both"})
		os.Exit(1)
	}
}

// buildDispatcher wires one executor per task type from the config.
func buildDispatcher(cfg *config.Config, logger *slog.Logger) (*core.Dispatcher, *executors.MCPInvoker, error) {
	var notifier notify.Notifier
	if cfg.Notification.BarkEnabled {
		bark, err := notify.NewBarkNotifier(cfg.Notification.BarkURL)
		if err != nil {
			return nil, nil, err
		}
		notifier = bark
	}

	aiExec, err := executors.NewAIExecutor(cfg.Executor.OllamaURL, cfg.Executor.AIModel, nil)
	if err != nil {
		return nil, nil, err
	}

	invoker := executors.NewMCPInvoker(cfg.Executor.ToolBaseURL)

	registry := map[core.TaskType]core.Executor{
		core.TaskTypeShellCommand: executors.NewShellExecutor(cfg.Executor.ShellTimeout),
		core.TaskTypeAPICall:      executors.NewAPICallExecutor(nil),
		core.TaskTypeAI:           aiExec,
		core.TaskTypeReminder:     executors.NewReminderExecutor(notifier),
		core.TaskTypeToolCall:     executors.NewToolCallExecutor(invoker),
	}

	return core.NewDispatcher(registry, logger), invoker, nil
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, st *store.Store, scheduler *core.Scheduler, logger *slog.Logger, location *time.Location) {
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, st, scheduler, logger, location)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("scheduler stop timed out")
	}
}

// runMCPMode starts only the MCP server.
func runMCPMode(st *store.Store, scheduler *core.Scheduler, logger *slog.Logger, location *time.Location, cancel context.CancelFunc) {
	mcpServer := mcpschedmcp.NewMCPServer(st, scheduler, logger, location)

	// Handle shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		cancel()
		scheduler.Stop()
	}()

	// Run MCP server (blocking)
	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, st *store.Store, scheduler *core.Scheduler, logger *slog.Logger, location *time.Location) {
	// Start MCP server in background
	mcpServer := mcpschedmcp.NewMCPServer(st, scheduler, logger, location)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	// Start HTTP server
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, st, scheduler, logger, location)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("scheduler stop timed out")
	}

	// The stdio transport ends when the process exits.
	logger.Info("shutdown complete")
}
