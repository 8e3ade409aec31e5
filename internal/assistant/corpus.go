package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/bull/ask-et/internal/answer"
	"github.com/bull/ask-et/internal/config"
	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/retrieval"
	"github.com/bull/ask-et/internal/storage"
)

// Index is a vector index a corpus can serve from.
type Index interface {
	retrieval.VectorIndex
	io.Closer
}

// Corpus is everything built from one published snapshot: metadata, vector
// index and the retrieval components bound to them. It is read-only once
// loaded.
type Corpus struct {
	Dir        string
	Manifest   *storage.Manifest
	Catalog    *storage.Catalog
	Classifier *query.Classifier
	Index      Index

	chain     *retrieval.Chain
	assembler *answer.Assembler
}

// LoadCorpus loads the snapshot CURRENT points at in cfg.SnapshotDir.
// It fails when the snapshot was built with a different embedding model
// than embedder, since its vectors would be meaningless for our queries.
func LoadCorpus(ctx context.Context, cfg *config.Config, embedder Embedder, logger *slog.Logger) (*Corpus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := storage.CurrentSnapshot(cfg.SnapshotDir)
	if err != nil {
		return nil, err
	}
	manifest, err := storage.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest.ModelID != embedder.ModelID() {
		return nil, fmt.Errorf("%w: snapshot %s was built with %q, serving with %q",
			ErrModelMismatch, manifest.SnapshotID, manifest.ModelID, embedder.ModelID())
	}
	if manifest.Dim != embedder.Dim() {
		return nil, fmt.Errorf("%w: snapshot %s has %d dimensions, embedder produces %d",
			storage.ErrDimensionMismatch, manifest.SnapshotID, manifest.Dim, embedder.Dim())
	}

	catalog, err := storage.LoadCatalog(
		filepath.Join(dir, storage.BlogsFile),
		filepath.Join(dir, storage.ProjectsFile),
	)
	if err != nil {
		return nil, fmt.Errorf("load metadata of %s: %w", manifest.SnapshotID, err)
	}

	var index Index
	switch manifest.Backend {
	case storage.BackendQdrant:
		index, err = storage.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort, manifest.Collection, manifest.Dim)
	default:
		var fi *storage.FileIndex
		fi, err = storage.LoadFileIndex(dir, manifest)
		if err == nil {
			warnOrphans(fi.Chunks(), catalog, logger)
			index = fi
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load vector index of %s: %w", manifest.SnapshotID, err)
	}

	classifier, err := query.NewClassifier(cfg.Vocabulary, catalog)
	if err != nil {
		index.Close()
		return nil, err
	}

	chain := retrieval.New(catalog, classifier, embedder, index, retrieval.Options{
		TopK:         cfg.TopK,
		FallbackSize: cfg.FallbackSize,
		MinScore:     cfg.MinScore,
		EmbedTimeout: cfg.EmbedTimeout,
	}, logger)

	logger.Info("Loaded snapshot",
		"snapshot", manifest.SnapshotID,
		"backend", manifest.Backend,
		"documents", catalog.Len(),
		"projects", len(catalog.Projects()),
		"chunks", manifest.Chunks)

	return &Corpus{
		Dir:        dir,
		Manifest:   manifest,
		Catalog:    catalog,
		Classifier: classifier,
		Index:      index,
		chain:      chain,
		assembler: answer.NewAssembler(catalog, answer.Options{
			MaxProjects:  cfg.MaxProjects,
			MaxDocuments: cfg.MaxDocuments,
		}),
	}, nil
}

// ask runs one query against this corpus.
func (c *Corpus) ask(ctx context.Context, q string) *answer.Answer {
	cls := c.Classifier.Classify(q)
	res := c.chain.Retrieve(ctx, cls)
	return c.assembler.Assemble(res)
}

// Close releases the vector index.
func (c *Corpus) Close() error {
	if c.Index == nil {
		return nil
	}
	return c.Index.Close()
}

// warnOrphans logs chunks whose parent document is missing from the
// catalog. They stay in the index and are skipped at query time.
func warnOrphans(chunks []*storage.Chunk, catalog *storage.Catalog, logger *slog.Logger) int {
	orphans := 0
	for _, ch := range chunks {
		if _, ok := catalog.Document(ch.ParentDocID); !ok {
			orphans++
			logger.Warn("Chunk references unknown document",
				"chunk_id", ch.ID, "doc_id", ch.ParentDocID)
		}
	}
	return orphans
}
