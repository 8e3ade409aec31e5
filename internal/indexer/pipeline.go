// Package indexer builds corpus snapshots: the metadata store, the chunks
// and their vectors are written together in one pass and published
// atomically, so the serving side never sees chunks without parents.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/bull/ask-et/internal/embedding"
	"github.com/bull/ask-et/internal/github"
	"github.com/bull/ask-et/internal/markdown"
	"github.com/bull/ask-et/internal/metadata"
	"github.com/bull/ask-et/internal/storage"
)

// LockFile is the ingestion lock held in the snapshot root while a
// snapshot is built and published.
const LockFile = ".ingest.lock"

// DefaultLockTimeout is how long IndexAll waits for another ingestion.
const DefaultLockTimeout = 30 * time.Second

// ErrLocked is returned when another ingestion holds the snapshot root.
var ErrLocked = errors.New("another ingestion is in progress")

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	SnapshotID     string
	Dir            string
	TotalDocs      int
	TotalProjects  int
	TotalChunks    int
	SuccessfulDocs int
	Summarized     int
	Enriched       int
	FailedDocs     []FailedDoc
	Pruned         []string
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	ID     string
	Reason string
}

// Summarizer produces a summary and tags for a post.
type Summarizer interface {
	GenerateMetadata(ctx context.Context, title, content string) (*metadata.PostMetadata, error)
}

// ProjectEnricher fills project records from an external source.
type ProjectEnricher interface {
	EnrichProjects(ctx context.Context, projects []*storage.ProjectRecord) (*github.EnrichResult, error)
}

// VectorStore is a remote vector collection chunks are upserted into.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []*storage.Chunk) error
	DropCollection(ctx context.Context) error
	Close() error
}

// OpenStoreFunc opens the vector store for a collection.
type OpenStoreFunc func(collection string, dim int) (VectorStore, error)

// QdrantStore opens collections on a Qdrant server.
func QdrantStore(host string, port int) OpenStoreFunc {
	return func(collection string, dim int) (VectorStore, error) {
		ix, err := storage.NewQdrantIndex(host, port, collection, dim)
		if err != nil {
			return nil, err
		}
		return ix, nil
	}
}

// Options configures where and how snapshots are written.
type Options struct {
	// SnapshotDir is the snapshot root holding CURRENT.
	SnapshotDir string
	// Backend is storage.BackendFile or storage.BackendQdrant.
	Backend string
	// OpenStore is required for the Qdrant backend.
	OpenStore OpenStoreFunc
	// Keep is how many snapshots to retain after publishing, the new one
	// included. Zero keeps all of them.
	Keep int
	// LockTimeout bounds the wait for the ingestion lock.
	LockTimeout time.Duration
}

// Pipeline orchestrates the full indexing process from raw corpus to
// published snapshot.
type Pipeline struct {
	chunker    *markdown.Chunker
	embedder   embedding.Provider
	summarizer Summarizer
	enricher   ProjectEnricher
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline creates a new indexing pipeline with the given components.
// summarizer and enricher are optional.
func NewPipeline(
	chunker *markdown.Chunker,
	embedder embedding.Provider,
	summarizer Summarizer,
	enricher ProjectEnricher,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Backend == "" {
		opts.Backend = storage.BackendFile
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	return &Pipeline{
		chunker:    chunker,
		embedder:   embedder,
		summarizer: summarizer,
		enricher:   enricher,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// IndexDir reads the raw corpus files from corpusDir and indexes them.
func (p *Pipeline) IndexDir(ctx context.Context, corpusDir string) (*IndexResult, error) {
	docs, err := storage.ReadDocuments(filepath.Join(corpusDir, storage.RawBlogsFile))
	if err != nil {
		return nil, err
	}
	projects, err := storage.ReadProjects(filepath.Join(corpusDir, storage.RawProjectsFile))
	if err != nil {
		return nil, err
	}
	return p.IndexAll(ctx, docs, projects)
}

// IndexAll builds a snapshot from docs and projects and publishes it.
// Documents that fail to chunk or embed are recorded and left unindexed;
// if every document fails nothing is published.
func (p *Pipeline) IndexAll(ctx context.Context, docs []*storage.Document, projects []*storage.ProjectRecord) (*IndexResult, error) {
	start := p.now()
	result := &IndexResult{
		TotalDocs:     len(docs),
		TotalProjects: len(projects),
	}

	if p.opts.SnapshotDir == "" {
		return nil, errors.New("snapshot dir not set")
	}
	if p.opts.Backend == storage.BackendQdrant && p.opts.OpenStore == nil {
		return nil, errors.New("qdrant backend requires a vector store")
	}

	unlock, err := p.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 1. Optional enrichment
	if p.summarizer != nil {
		result.Summarized = p.summarize(ctx, docs)
	}
	if p.enricher != nil {
		er, err := p.enricher.EnrichProjects(ctx, projects)
		if err != nil {
			return nil, fmt.Errorf("enrich projects: %w", err)
		}
		result.Enriched = er.Enriched
	}

	// 2. Metadata store
	catalog, err := storage.NewCatalog(docs, projects)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Starting indexing",
		"documents", catalog.Len(),
		"projects", len(catalog.Projects()),
		"model", p.embedder.ModelID(),
		"backend", p.opts.Backend)

	// 3. Chunk and embed each document
	var chunks []*storage.Chunk
	for _, doc := range catalog.Documents() {
		docChunks, err := p.processDocument(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("Failed to process document", "doc_id", doc.ID, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				ID:     doc.ID,
				Reason: err.Error(),
			})
			continue // Skip failed docs, continue with others
		}
		result.SuccessfulDocs++
		chunks = append(chunks, docChunks...)
	}
	result.TotalChunks = len(chunks)
	if catalog.Len() > 0 && result.SuccessfulDocs == 0 {
		return nil, fmt.Errorf("no document could be indexed (first error: %s)", result.FailedDocs[0].Reason)
	}

	// 4. Write and publish the snapshot
	id, err := p.writeSnapshot(ctx, catalog, chunks)
	if err != nil {
		return nil, err
	}
	result.SnapshotID = id
	result.Dir = filepath.Join(p.opts.SnapshotDir, id)

	if p.opts.Keep > 0 {
		result.Pruned = p.prune(ctx, id)
	}

	result.Duration = p.now().Sub(start)
	p.logger.Info("Indexing complete",
		"snapshot", id,
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// lock takes the exclusive ingestion lock on the snapshot root.
func (p *Pipeline) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(p.opts.SnapshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create snapshot root: %w", err)
	}
	path := filepath.Join(p.opts.SnapshotDir, LockFile)
	l := flock.New(path)

	lockCtx, cancel := context.WithTimeout(ctx, p.opts.LockTimeout)
	defer cancel()
	locked, err := l.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("cannot acquire ingestion lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock: %s)", ErrLocked, path)
	}
	return func() { _ = l.Unlock() }, nil
}

// summarize fills missing summaries and tags. Failures keep the post as is.
func (p *Pipeline) summarize(ctx context.Context, docs []*storage.Document) int {
	n := 0
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		if doc.Summary != "" && len(doc.Tags) > 0 {
			continue
		}
		meta, err := p.summarizer.GenerateMetadata(ctx, doc.Title, doc.Content)
		if err != nil {
			p.logger.Warn("Metadata generation failed, keeping post as is", "title", doc.Title, "error", err)
			continue
		}
		if doc.Summary == "" {
			doc.Summary = meta.Summary
		}
		if len(doc.Tags) == 0 {
			doc.Tags = meta.Tags
		}
		n++
	}
	return n
}

// documentText is the text a document's chunks are cut from: the title as
// a top-level heading followed by the body, or the summary when the post
// has no body.
func documentText(doc *storage.Document) string {
	body := doc.Content
	if strings.TrimSpace(body) == "" {
		body = doc.Summary
	}
	return fmt.Sprintf("# %s\n\n%s", doc.Title, body)
}

// ChunkID is the stable identifier of a document's i-th chunk.
func ChunkID(docID string, i int) string {
	return fmt.Sprintf("%s#%d", docID, i)
}

// processDocument chunks and embeds one document.
func (p *Pipeline) processDocument(ctx context.Context, doc *storage.Document) ([]*storage.Chunk, error) {
	source := []byte(documentText(doc))

	chunks, err := p.chunker.ChunkDocument(source)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, errors.New("document has no text")
	}
	p.logger.Debug("Chunked document", "doc_id", doc.ID, "chunks", len(chunks))

	// Generate embeddings for all chunks
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content // Content already has header path prepended
	}
	embeddings, err := p.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	out := make([]*storage.Chunk, len(chunks))
	for i, chunk := range chunks {
		if len(embeddings[i]) != p.embedder.Dim() {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				storage.ErrDimensionMismatch, i, len(embeddings[i]), p.embedder.Dim())
		}
		out[i] = &storage.Chunk{
			ID:          ChunkID(doc.ID, chunk.Index),
			ParentDocID: doc.ID,
			ChunkIndex:  chunk.Index,
			Start:       chunk.Start,
			End:         chunk.End,
			HeaderPath:  chunk.HeaderPath,
			Content:     chunk.RawContent, // Store without header prefix
			Embedding:   embeddings[i],
		}
	}
	return out, nil
}

// writeSnapshot writes a complete snapshot directory and then points
// CURRENT at it. A failed write removes whatever was created.
func (p *Pipeline) writeSnapshot(ctx context.Context, catalog *storage.Catalog, chunks []*storage.Chunk) (id string, err error) {
	root := p.opts.SnapshotDir
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("cannot create snapshot root: %w", err)
	}

	id = storage.NewSnapshotID(p.now())
	dir := filepath.Join(root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create snapshot dir: %w", err)
	}

	var store VectorStore
	defer func() {
		if store != nil {
			if err != nil {
				if dropErr := store.DropCollection(context.WithoutCancel(ctx)); dropErr != nil {
					p.logger.Warn("Failed to drop collection of failed snapshot", "dir", dir, "error", dropErr)
				}
			}
			_ = store.Close()
		}
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	if err = storage.WriteCatalog(dir, catalog); err != nil {
		return "", err
	}

	manifest := &storage.Manifest{
		SnapshotID: id,
		CreatedAt:  p.now().UTC().Format(time.RFC3339),
		ModelID:    p.embedder.ModelID(),
		Dim:        p.embedder.Dim(),
		Metric:     storage.MetricCosine,
		Backend:    p.opts.Backend,
		Documents:  catalog.Len(),
		Projects:   len(catalog.Projects()),
		Chunks:     len(chunks),
	}

	switch p.opts.Backend {
	case storage.BackendFile:
		if err = storage.WriteChunks(dir, chunks, manifest.Dim); err != nil {
			return "", err
		}
	case storage.BackendQdrant:
		manifest.Collection = storage.CollectionName(id)
		var s VectorStore
		if s, err = p.opts.OpenStore(manifest.Collection, manifest.Dim); err != nil {
			return "", err
		}
		store = s
		if err = store.EnsureCollection(ctx); err != nil {
			return "", fmt.Errorf("create collection: %w", err)
		}
		if err = store.UpsertChunks(ctx, chunks); err != nil {
			return "", fmt.Errorf("store chunks: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown vector backend %q", p.opts.Backend)
	}

	if err = storage.WriteManifest(dir, manifest); err != nil {
		return "", err
	}
	if err = storage.Publish(root, id); err != nil {
		return "", err
	}
	return id, nil
}

// prune removes the oldest snapshots beyond opts.Keep, never the current
// one, and drops their Qdrant collections.
func (p *Pipeline) prune(ctx context.Context, current string) []string {
	names, err := storage.ListSnapshots(p.opts.SnapshotDir)
	if err != nil {
		p.logger.Warn("Cannot list snapshots for pruning", "error", err)
		return nil
	}
	names = slices.DeleteFunc(names, func(n string) bool { return n == current })
	excess := len(names) - (p.opts.Keep - 1)
	if excess <= 0 {
		return nil
	}

	var pruned []string
	for _, name := range names[:excess] {
		dir := filepath.Join(p.opts.SnapshotDir, name)
		if m, err := storage.ReadManifest(dir); err == nil && m.Backend == storage.BackendQdrant && p.opts.OpenStore != nil {
			if store, err := p.opts.OpenStore(m.Collection, m.Dim); err == nil {
				if err := store.DropCollection(ctx); err != nil {
					p.logger.Warn("Failed to drop collection", "collection", m.Collection, "error", err)
				}
				_ = store.Close()
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("Failed to remove snapshot", "snapshot", name, "error", err)
			continue
		}
		pruned = append(pruned, name)
	}
	p.logger.Info("Pruned old snapshots", "count", len(pruned))
	return pruned
}
