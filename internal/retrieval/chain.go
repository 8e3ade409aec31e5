package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/storage"
)

// Stage is one named step of the fallback chain.
type Stage struct {
	Name     string
	Strategy Strategy
}

// Options configures the strategies New builds.
type Options struct {
	TopK         int
	FallbackSize int
	MinScore     float64
	EmbedTimeout time.Duration
}

// Chain dispatches a classification to its primary strategy and, when that
// comes back empty, walks the fallback stages in order until one returns
// documents. A Chain is immutable and safe for concurrent use.
type Chain struct {
	catalog    *storage.Catalog
	classifier *query.Classifier
	primary    map[query.Intent]Strategy
	fallbacks  []Stage
	logger     *slog.Logger
}

// New builds the standard chain over one catalog and vector index:
//
//	author      -> author strategy
//	exact-title -> title strategy
//	technology  -> keyword strategy
//	category    -> keyword strategy
//	general     -> semantic strategy
//
// with fallback stages exact-title, keyword-scan, semantic and final-fallback.
func New(catalog *storage.Catalog, classifier *query.Classifier, embedder Embedder, index VectorIndex, opts Options, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FallbackSize <= 0 {
		opts.FallbackSize = 5
	}

	author := NewAuthorStrategy(catalog)
	title := NewTitleStrategy(catalog, classifier)
	keyword := NewKeywordStrategy(catalog, classifier)
	semantic := NewSemanticStrategy(catalog, embedder, index, SemanticOptions{
		TopK:     opts.TopK,
		MinScore: opts.MinScore,
		Timeout:  opts.EmbedTimeout,
	}, logger)

	return NewChain(catalog, classifier,
		map[query.Intent]Strategy{
			query.IntentAuthor:     author,
			query.IntentExactTitle: title,
			query.IntentTechnology: keyword,
			query.IntentCategory:   keyword,
			query.IntentGeneral:    semantic,
		},
		[]Stage{
			{Name: ProvenanceExactTitle, Strategy: title},
			{Name: ProvenanceKeywordScan, Strategy: NewKeywordScan(catalog, classifier)},
			{Name: ProvenanceSemantic, Strategy: semantic},
			{Name: ProvenanceFinalFallback, Strategy: NewRecentStrategy(catalog, opts.FallbackSize)},
		},
		logger)
}

// NewChain assembles a chain from explicit strategies.
func NewChain(catalog *storage.Catalog, classifier *query.Classifier, primary map[query.Intent]Strategy, fallbacks []Stage, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		catalog:    catalog,
		classifier: classifier,
		primary:    primary,
		fallbacks:  fallbacks,
		logger:     logger,
	}
}

// Retrieve runs the chain for c. It never returns an error: a failing
// strategy is recorded and treated as empty.
func (ch *Chain) Retrieve(ctx context.Context, c query.Classification) *Result {
	res := &Result{Classification: c, Provenance: ProvenanceNone}

	primary := ch.primary[c.Intent]
	if primary == nil {
		primary = ch.primary[query.IntentGeneral]
	}
	if primary != nil {
		hits, rec := ch.run(ctx, ProvenancePrimary, primary, c)
		res.Stages = append(res.Stages, rec)
		if len(hits) > 0 {
			res.Hits = hits
			res.Provenance = ProvenancePrimary
		}
	}

	for _, stage := range ch.fallbacks {
		if res.Hits != nil {
			break
		}
		if primary != nil && stage.Strategy.Name() == primary.Name() {
			res.Stages = append(res.Stages, StageRecord{
				Stage:    stage.Name,
				Strategy: stage.Strategy.Name(),
				Outcome:  OutcomeSkipped,
			})
			continue
		}
		hits, rec := ch.run(ctx, stage.Name, stage.Strategy, c)
		res.Stages = append(res.Stages, rec)
		if len(hits) > 0 {
			res.Hits = hits
			res.Provenance = stage.Name
		}
	}

	res.Hits = ch.pinTitle(c, res.Hits)

	ch.logger.Debug("Retrieval finished",
		"intent", c.Intent,
		"provenance", res.Provenance,
		"documents", len(res.Hits))
	return res
}

func (ch *Chain) run(ctx context.Context, stage string, s Strategy, c query.Classification) ([]Hit, StageRecord) {
	rec := StageRecord{Stage: stage, Strategy: s.Name()}

	hits, err := s.Retrieve(ctx, c)
	if err != nil {
		ch.logger.Warn("Retrieval strategy failed, falling through",
			"stage", stage, "strategy", s.Name(), "error", err)
		rec.Outcome = OutcomeError
		rec.Error = err.Error()
		return nil, rec
	}

	hits = dedupHits(hits)
	rec.Count = len(hits)
	if len(hits) == 0 {
		rec.Outcome = OutcomeEmpty
		return nil, rec
	}
	rec.Outcome = OutcomeNonEmpty
	return hits, rec
}

// pinTitle moves the document whose title the query spells exactly to the
// front, inserting it when the stage that answered did not find it. This
// keeps title queries answered first even when an earlier rule (an author
// pattern, say) claimed the query.
func (ch *Chain) pinTitle(c query.Classification, hits []Hit) []Hit {
	if ch.classifier == nil {
		return hits
	}
	id, ok := ch.classifier.StrictTitle(c.Query)
	if !ok {
		return hits
	}
	doc, ok := ch.catalog.Document(id)
	if !ok {
		return hits
	}

	pinned := Hit{Document: doc, Score: 1}
	out := make([]Hit, 0, len(hits)+1)
	for _, h := range hits {
		if h.Document.ID == id {
			pinned = h
			continue
		}
		out = append(out, h)
	}
	return append([]Hit{pinned}, out...)
}

// dedupHits drops repeated documents, keeping the first (best ranked).
func dedupHits(hits []Hit) []Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Document == nil {
			continue
		}
		if _, dup := seen[h.Document.ID]; dup {
			continue
		}
		seen[h.Document.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}
