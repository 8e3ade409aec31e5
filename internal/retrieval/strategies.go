package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/storage"
)

// AuthorStrategy returns the documents whose author contains the extracted
// name, or whose full author name occurs in it, newest first.
type AuthorStrategy struct {
	catalog *storage.Catalog
}

func NewAuthorStrategy(catalog *storage.Catalog) *AuthorStrategy {
	return &AuthorStrategy{catalog: catalog}
}

func (s *AuthorStrategy) Name() string { return "author" }

func (s *AuthorStrategy) Retrieve(_ context.Context, c query.Classification) ([]Hit, error) {
	name := query.Normalize(c.Entity)
	if name == "" {
		return nil, nil
	}
	var hits []Hit
	// Catalog documents are already newest first.
	for _, doc := range s.catalog.Documents() {
		author := query.Normalize(doc.Author)
		if author == "" {
			continue
		}
		if strings.Contains(author, name) || query.ContainsPhrase(name, author) {
			hits = append(hits, Hit{Document: doc, Score: 1})
		}
	}
	return hits, nil
}

// TitleStrategy returns the single document whose normalised title matches
// the query. It uses the classifier's title match, so it works for queries
// of any intent.
type TitleStrategy struct {
	catalog    *storage.Catalog
	classifier *query.Classifier
}

func NewTitleStrategy(catalog *storage.Catalog, classifier *query.Classifier) *TitleStrategy {
	return &TitleStrategy{catalog: catalog, classifier: classifier}
}

func (s *TitleStrategy) Name() string { return "exact-title" }

func (s *TitleStrategy) Retrieve(_ context.Context, c query.Classification) ([]Hit, error) {
	id := c.DocumentID
	if id == "" {
		var ok bool
		if id, _, ok = s.classifier.MatchTitle(c.Query); !ok {
			return nil, nil
		}
	}
	doc, ok := s.catalog.Document(id)
	if !ok {
		return nil, nil
	}
	return []Hit{{Document: doc, Score: 1}}, nil
}

// KeywordStrategy filters documents whose tags intersect a keyword's
// expansion set, ranked by the number of matching tags then by date.
//
// In scan mode the classification is ignored: every vocabulary key found in
// the query text contributes its expansion set.
type KeywordStrategy struct {
	catalog    *storage.Catalog
	classifier *query.Classifier
	scan       bool
}

// NewKeywordStrategy returns the strategy for technology and category queries.
func NewKeywordStrategy(catalog *storage.Catalog, classifier *query.Classifier) *KeywordStrategy {
	return &KeywordStrategy{catalog: catalog, classifier: classifier}
}

// NewKeywordScan returns the keyword strategy in scan mode.
func NewKeywordScan(catalog *storage.Catalog, classifier *query.Classifier) *KeywordStrategy {
	return &KeywordStrategy{catalog: catalog, classifier: classifier, scan: true}
}

func (s *KeywordStrategy) Name() string {
	if s.scan {
		return "keyword-scan"
	}
	return "keyword"
}

func (s *KeywordStrategy) Retrieve(_ context.Context, c query.Classification) ([]Hit, error) {
	var keys []string
	if s.scan {
		keys = s.classifier.Keywords(c.Query)
	} else if c.Entity != "" {
		keys = []string{c.Entity}
	}

	expansion := make(map[string]struct{})
	for _, k := range keys {
		for _, tag := range s.classifier.Expand(k) {
			expansion[tag] = struct{}{}
		}
	}
	if len(expansion) == 0 {
		return nil, nil
	}

	var hits []Hit
	for _, doc := range s.catalog.Documents() {
		matched := 0
		for tag := range doc.TagSet() {
			if _, ok := expansion[tag]; ok {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, Hit{Document: doc, Score: float64(matched)})
		}
	}
	// Stable: equal counts keep the catalog's newest-first order.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// SemanticOptions bounds a semantic search.
type SemanticOptions struct {
	TopK     int
	MinScore float64
	// Timeout bounds embedding plus search. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// SemanticStrategy embeds the query, searches the vector index and maps
// chunks back to their parent documents, keeping the best score per
// document.
type SemanticStrategy struct {
	catalog  *storage.Catalog
	embedder Embedder
	index    VectorIndex
	opts     SemanticOptions
	logger   *slog.Logger
}

func NewSemanticStrategy(catalog *storage.Catalog, embedder Embedder, index VectorIndex, opts SemanticOptions, logger *slog.Logger) *SemanticStrategy {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticStrategy{
		catalog:  catalog,
		embedder: embedder,
		index:    index,
		opts:     opts,
		logger:   logger,
	}
}

func (s *SemanticStrategy) Name() string { return "semantic" }

// Retrieve follows the search flow:
//  1. embed the query text
//  2. search chunks (TopK*3 so enough parents survive dedup)
//  3. drop chunks below MinScore and chunks whose parent is unknown
//  4. keep the highest-scoring chunk per parent document
//  5. return the TopK best documents
func (s *SemanticStrategy) Retrieve(ctx context.Context, c query.Classification) ([]Hit, error) {
	if s.embedder == nil || s.index == nil {
		return nil, nil
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	vec, err := s.embedder.EmbedQuery(ctx, c.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := s.index.Search(ctx, vec, s.opts.TopK*3)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	best := make(map[string]float64)
	var order []string
	for _, sc := range chunks {
		if sc.Score < s.opts.MinScore {
			continue
		}
		docID := sc.Chunk.ParentDocID
		if _, ok := s.catalog.Document(docID); !ok {
			s.logger.Warn("Chunk references unknown document, skipping",
				"chunk_id", sc.Chunk.ID, "doc_id", docID)
			continue
		}
		if score, seen := best[docID]; !seen || sc.Score > score {
			if !seen {
				order = append(order, docID)
			}
			best[docID] = sc.Score
		}
	}

	hits := make([]Hit, 0, len(order))
	for _, id := range order {
		doc, _ := s.catalog.Document(id)
		hits = append(hits, Hit{Document: doc, Score: best[id]})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
	if len(hits) > s.opts.TopK {
		hits = hits[:s.opts.TopK]
	}
	return hits, nil
}

// RecentStrategy returns the N most recent documents regardless of the
// query. It only comes back empty for an empty catalog.
type RecentStrategy struct {
	catalog *storage.Catalog
	n       int
}

func NewRecentStrategy(catalog *storage.Catalog, n int) *RecentStrategy {
	return &RecentStrategy{catalog: catalog, n: n}
}

func (s *RecentStrategy) Name() string { return "recent" }

func (s *RecentStrategy) Retrieve(context.Context, query.Classification) ([]Hit, error) {
	docs := s.catalog.Recent(s.n)
	hits := make([]Hit, len(docs))
	for i, doc := range docs {
		hits[i] = Hit{Document: doc}
	}
	return hits, nil
}
