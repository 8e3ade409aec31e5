package assistant

import (
	"context"
	"fmt"
	"sort"

	"github.com/bull/ask-et/internal/storage"
)

// Report describes a loaded corpus for validation and status output.
type Report struct {
	SnapshotID string               `json:"snapshot_id"`
	CreatedAt  string               `json:"created_at"`
	ModelID    string               `json:"model_id"`
	Backend    string               `json:"backend"`
	Collection string               `json:"collection,omitempty"`
	Stats      storage.CatalogStats `json:"stats"`
	Chunks     int                  `json:"chunks"`
	// OrphanParents are document IDs referenced by chunks but absent from
	// the metadata store.
	OrphanParents []string `json:"orphan_parents"`
	// Unindexed are documents without any chunk.
	Unindexed []string `json:"unindexed"`
	Topics    []string `json:"topics"`
}

// Consistent reports whether every chunk has a parent in the metadata store.
func (r *Report) Consistent() bool { return len(r.OrphanParents) == 0 }

type parentLister interface {
	ParentIDs(ctx context.Context) ([]string, error)
}

type pointCounter interface {
	Count(ctx context.Context) (uint64, error)
}

// Report checks the consistency between the corpus's metadata and vector
// index and summarises both.
func (c *Corpus) Report(ctx context.Context) (*Report, error) {
	r := &Report{
		SnapshotID: c.Manifest.SnapshotID,
		CreatedAt:  c.Manifest.CreatedAt,
		ModelID:    c.Manifest.ModelID,
		Backend:    c.Manifest.Backend,
		Collection: c.Manifest.Collection,
		Stats:      c.Catalog.Stats(),
		Chunks:     c.Manifest.Chunks,
		Topics:     c.Classifier.Topics(c.Catalog.Documents()),
	}

	var parents []string
	switch ix := c.Index.(type) {
	case *storage.FileIndex:
		seen := make(map[string]struct{})
		for _, ch := range ix.Chunks() {
			if _, ok := seen[ch.ParentDocID]; !ok {
				seen[ch.ParentDocID] = struct{}{}
				parents = append(parents, ch.ParentDocID)
			}
		}
		r.Chunks = ix.Len()
	case parentLister:
		var err error
		parents, err = ix.ParentIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list indexed documents: %w", err)
		}
		if counter, ok := ix.(pointCounter); ok {
			n, err := counter.Count(ctx)
			if err != nil {
				return nil, fmt.Errorf("count indexed chunks: %w", err)
			}
			r.Chunks = int(n)
		}
	}

	indexed := make(map[string]struct{}, len(parents))
	r.OrphanParents = []string{}
	for _, id := range parents {
		indexed[id] = struct{}{}
		if _, ok := c.Catalog.Document(id); !ok {
			r.OrphanParents = append(r.OrphanParents, id)
		}
	}
	sort.Strings(r.OrphanParents)

	r.Unindexed = []string{}
	for _, doc := range c.Catalog.Documents() {
		if _, ok := indexed[doc.ID]; !ok {
			r.Unindexed = append(r.Unindexed, doc.ID)
		}
	}
	sort.Strings(r.Unindexed)
	return r, nil
}
