// Package retrieval turns a classified query into a ranked list of documents.
// Each way of finding documents is a Strategy; a Chain runs the primary
// strategy for the query's intent and then an ordered list of fallback
// stages until one of them returns something.
package retrieval

import (
	"context"

	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/storage"
)

// Hit is a retrieved document with the score of the strategy that found it.
// Scores are only comparable within one result.
type Hit struct {
	Document *storage.Document
	Score    float64
}

// Strategy is one way of retrieving documents. An empty result with a nil
// error means the strategy found nothing.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, c query.Classification) ([]Hit, error)
}

// Embedder turns query text into a vector. It must be the model the vector
// index was built with.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is a nearest-neighbour index over chunk embeddings.
// Results are ordered by score descending; higher is closer.
type VectorIndex interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]*storage.ScoredChunk, error)
}

// Outcome records what a stage of the chain did.
type Outcome string

const (
	OutcomeEmpty    Outcome = "empty"
	OutcomeNonEmpty Outcome = "non-empty"
	OutcomeError    Outcome = "error"
	OutcomeSkipped  Outcome = "skipped"
)

// Provenance tags name where a result came from.
const (
	ProvenancePrimary       = "primary"
	ProvenanceExactTitle    = "exact-title"
	ProvenanceKeywordScan   = "keyword-scan"
	ProvenanceSemantic      = "semantic"
	ProvenanceFinalFallback = "final-fallback"
	// ProvenanceNone is reported when every stage came back empty, which only
	// happens for an empty catalog.
	ProvenanceNone = "none"
)

// StageRecord is the audit entry of one stage.
type StageRecord struct {
	Stage    string  `json:"stage"`
	Strategy string  `json:"strategy"`
	Outcome  Outcome `json:"outcome"`
	Count    int     `json:"count"`
	Error    string  `json:"error,omitempty"`
}

// Result is the outcome of running the chain for one query.
type Result struct {
	Classification query.Classification
	Hits           []Hit
	Provenance     string
	Stages         []StageRecord
}

// Documents returns the documents of r in rank order.
func (r *Result) Documents() []*storage.Document {
	docs := make([]*storage.Document, len(r.Hits))
	for i, h := range r.Hits {
		docs[i] = h.Document
	}
	return docs
}
