// Package main provides askctl, the Ask ET command line tool for building
// corpus snapshots and querying them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/ask-et/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "askctl",
	Short: "Ask ET corpus indexing and query tool",
	Long: `CLI tool for building Ask ET corpus snapshots and asking questions
about Emerging Technologies blog posts, authors and projects.

Environment variables:
  SNAPSHOT_DIR        Snapshot root (default: ./index)
  CORPUS_DIR          Directory holding the scraped corpus JSON files (default: ./data)
  EMBEDDING_PROVIDER  openai or hash (default: openai)
  OPENAI_API_KEY      OpenAI API key (required for the openai provider)
  VECTOR_BACKEND      file or qdrant (default: file)
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN        GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger = config.NewLogger(level, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
