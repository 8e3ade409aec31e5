package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/ask-et/internal/embedding"
	ghclient "github.com/bull/ask-et/internal/github"
	"github.com/bull/ask-et/internal/indexer"
	"github.com/bull/ask-et/internal/markdown"
	"github.com/bull/ask-et/internal/metadata"
	"github.com/bull/ask-et/internal/storage"
)

var (
	ingestCorpusDir string
	ingestBackend   string
	ingestSummarize bool
	ingestGitHub    bool
	ingestKeep      int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build and publish a new corpus snapshot",
	Long: `Builds a new snapshot from the scraped corpus and publishes it.

This command:
1. Reads blog_metadata.json and project_metadata.json from the corpus directory
2. Optionally summarizes posts and enriches projects from GitHub
3. Chunks and embeds every post
4. Writes the metadata store and vectors into a new snapshot
5. Publishes the snapshot atomically and prunes old ones

A running server picks up the new snapshot without a restart.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCorpusDir, "corpus", "", "corpus directory (default: $CORPUS_DIR)")
	ingestCmd.Flags().StringVar(&ingestBackend, "backend", "", "vector backend: file or qdrant (default: $VECTOR_BACKEND)")
	ingestCmd.Flags().BoolVar(&ingestSummarize, "summarize", false, "generate missing summaries and tags with the chat model")
	ingestCmd.Flags().BoolVar(&ingestGitHub, "github", false, "enrich projects from their GitHub repositories")
	ingestCmd.Flags().IntVar(&ingestKeep, "keep", 3, "snapshots to retain after publishing (0 keeps all)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	corpusDir := cfg.CorpusDir
	if ingestCorpusDir != "" {
		corpusDir = ingestCorpusDir
	}
	backend := cfg.VectorBackend
	if ingestBackend != "" {
		backend = ingestBackend
	}

	embedder, err := cfg.NewEmbedder()
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	var summarizer indexer.Summarizer
	if ingestSummarize {
		client, err := embedding.NewClient()
		if err != nil {
			return fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		summarizer = metadata.NewGenerator(client.Client())
	}

	var enricher indexer.ProjectEnricher
	if ingestGitHub {
		gh, err := ghclient.NewClient(ctx, cfg.GitHubToken)
		if err != nil {
			return fmt.Errorf("failed to create GitHub client: %w", err)
		}
		enricher = ghclient.NewEnricher(gh, logger)
	}

	opts := indexer.Options{
		SnapshotDir: cfg.SnapshotDir,
		Backend:     backend,
		Keep:        ingestKeep,
	}
	if backend == storage.BackendQdrant {
		opts.OpenStore = indexer.QdrantStore(cfg.QdrantHost, cfg.QdrantPort)
	}

	cmd.Printf("Ingesting %s into %s (%s backend)...\n", corpusDir, cfg.SnapshotDir, backend)
	pipeline := indexer.NewPipeline(
		markdown.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder, summarizer, enricher, opts, logger,
	)
	result, err := pipeline.IndexDir(ctx, corpusDir)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	cmd.Println()
	cmd.Println("Ingestion complete!")
	cmd.Printf("  Snapshot:  %s\n", result.SnapshotID)
	cmd.Printf("  Posts:     %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	cmd.Printf("  Projects:  %d\n", result.TotalProjects)
	cmd.Printf("  Chunks:    %d\n", result.TotalChunks)
	if ingestSummarize {
		cmd.Printf("  Summarized: %d\n", result.Summarized)
	}
	if ingestGitHub {
		cmd.Printf("  Enriched:  %d\n", result.Enriched)
	}
	if len(result.Pruned) > 0 {
		cmd.Printf("  Pruned:    %d old snapshots\n", len(result.Pruned))
	}
	cmd.Printf("  Duration:  %s\n", result.Duration.Round(time.Millisecond))

	if len(result.FailedDocs) > 0 {
		cmd.Println()
		cmd.Println("Failed posts:")
		for _, failed := range result.FailedDocs {
			cmd.Printf("  - %s: %s\n", failed.ID, failed.Reason)
		}
	}

	cmd.Println()
	cmd.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}
