// Package main provides the Ask ET server entry point: MCP over stdio or
// HTTP, the JSON ask API and the health endpoint.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/ask-et/internal/assistant"
	"github.com/bull/ask-et/internal/config"
	mcpserver "github.com/bull/ask-et/internal/mcp"
	"github.com/bull/ask-et/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	// stdout carries the MCP stdio transport, so logs go to stderr.
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	embedder, err := cfg.NewEmbedder()
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}

	a, err := assistant.New(ctx, cfg, embedder, logger)
	if err != nil {
		log.Fatalf("failed to load corpus: %v", err)
	}
	defer a.Close()

	// Pick up snapshots published by askctl ingest without a restart.
	watcher := storage.NewWatcher(cfg.SnapshotDir, func() {
		if err := a.Reload(ctx); err != nil {
			logger.Error("Reload failed, still serving previous snapshot", "error", err)
		}
	}, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("Snapshot watcher stopped", "error", err)
		}
	}()

	server := mcpserver.NewServer(&mcpserver.Config{
		Assistant: a,
		Version:   version,
	})
	mux := mcpserver.NewMux(server, nil)

	addr := "0.0.0.0:" + cfg.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		logger.Info("Starting HTTP server",
			"addr", addr, "snapshot", a.SnapshotID(), "mcp", "/mcp", "api", "/api/ask", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients.
	// The HTTP endpoints still run in the background for local testing.
	go func() {
		logger.Info("Starting health server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting Ask ET MCP server (stdio mode)", "snapshot", a.SnapshotID())
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
