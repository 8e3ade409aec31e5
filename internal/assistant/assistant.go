// Package assistant is the single entry point of the question-answering
// pipeline: classify, retrieve with fallbacks, assemble. It owns the loaded
// corpus and swaps it atomically when a new snapshot is published.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bull/ask-et/internal/answer"
	"github.com/bull/ask-et/internal/config"
	"github.com/bull/ask-et/internal/retrieval"
)

// ErrModelMismatch is returned when a snapshot was built with a different
// embedding model than the one configured for serving.
var ErrModelMismatch = errors.New("embedding model mismatch")

// Embedder embeds queries and names the model it uses.
type Embedder interface {
	retrieval.Embedder
	ModelID() string
	Dim() int
}

// retireDelay is how long a replaced corpus stays open for in-flight
// requests before its index is closed.
const retireDelay = 30 * time.Second

// Assistant answers questions against the current corpus. Requests only
// read the corpus pointer, so any number may run concurrently with each
// other and with a reload.
type Assistant struct {
	cfg      *config.Config
	embedder Embedder
	logger   *slog.Logger

	// corpus is set by New and never nil afterwards.
	corpus atomic.Pointer[Corpus]
	reload sync.Mutex
}

// New loads the current snapshot. A missing or invalid snapshot is a
// configuration error: callers must refuse to serve.
func New(ctx context.Context, cfg *config.Config, embedder Embedder, logger *slog.Logger) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	corpus, err := LoadCorpus(ctx, cfg, embedder, logger)
	if err != nil {
		return nil, err
	}
	a := &Assistant{cfg: cfg, embedder: embedder, logger: logger}
	a.corpus.Store(corpus)
	return a, nil
}

// Ask answers one question. It always returns an answer: blank questions get
// the empty-query answer and an empty corpus gets the no-results answer.
func (a *Assistant) Ask(ctx context.Context, q string) *answer.Answer {
	if strings.TrimSpace(q) == "" {
		return answer.EmptyQuery(q)
	}
	corpus := a.corpus.Load()
	start := time.Now()
	ans := corpus.ask(ctx, q)
	a.logger.Info("Answered query",
		"intent", ans.Intent,
		"provenance", ans.Provenance,
		"documents", len(ans.Documents),
		"snapshot", corpus.Manifest.SnapshotID,
		"duration", time.Since(start))
	return ans
}

// Corpus returns the corpus currently served.
func (a *Assistant) Corpus() *Corpus {
	return a.corpus.Load()
}

// Reload loads the snapshot CURRENT points at and swaps it in. When loading
// fails the previous corpus keeps serving and the error is returned.
// Reloading the snapshot already served is a no-op.
func (a *Assistant) Reload(ctx context.Context) error {
	a.reload.Lock()
	defer a.reload.Unlock()

	prev := a.corpus.Load()
	next, err := LoadCorpus(ctx, a.cfg, a.embedder, a.logger)
	if err != nil {
		a.logger.Error("Snapshot reload failed, keeping current snapshot",
			"snapshot", prev.Manifest.SnapshotID, "error", err)
		return err
	}

	if prev.Manifest.SnapshotID == next.Manifest.SnapshotID {
		next.Close()
		return nil
	}

	a.corpus.Store(next)
	a.logger.Info("Switched snapshot",
		"from", prev.Manifest.SnapshotID,
		"to", next.Manifest.SnapshotID)

	time.AfterFunc(retireDelay, func() {
		if err := prev.Close(); err != nil {
			a.logger.Warn("Closing retired snapshot", "snapshot", prev.Manifest.SnapshotID, "error", err)
		}
	})
	return nil
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// Health reports whether the current corpus can serve: the file index is
// always healthy, a Qdrant index is pinged.
func (a *Assistant) Health(ctx context.Context) error {
	if h, ok := a.corpus.Load().Index.(healthChecker); ok {
		return h.Health(ctx)
	}
	return nil
}

// SnapshotID names the snapshot currently served.
func (a *Assistant) SnapshotID() string {
	return a.corpus.Load().Manifest.SnapshotID
}

// Close releases the current corpus.
func (a *Assistant) Close() error {
	return a.corpus.Load().Close()
}
