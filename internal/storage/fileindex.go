package storage

import (
	"context"
	"fmt"
	"sort"
)

// FileIndex is an exact nearest-neighbour index over chunks held in memory,
// loaded from a snapshot's chunks.jsonl and vectors.f32. Vectors are stored
// unit-normalised so a dot product is the cosine similarity.
type FileIndex struct {
	chunks  []*Chunk
	vectors [][]float32
	dim     int
}

// NewFileIndex builds an index from chunks that carry embeddings of length dim.
func NewFileIndex(chunks []*Chunk, dim int) (*FileIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dim: %d", dim)
	}
	ix := &FileIndex{
		chunks:  make([]*Chunk, 0, len(chunks)),
		vectors: make([][]float32, 0, len(chunks)),
		dim:     dim,
	}
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), dim)
		}
		ix.chunks = append(ix.chunks, c)
		ix.vectors = append(ix.vectors, NormalizeL2(c.Embedding))
	}
	return ix, nil
}

// LoadFileIndex reads the chunks and vectors of the snapshot in dir.
func LoadFileIndex(dir string, m *Manifest) (*FileIndex, error) {
	chunks, err := ReadChunks(dir, m.Dim, true)
	if err != nil {
		return nil, err
	}
	return NewFileIndex(chunks, m.Dim)
}

// Len returns the number of indexed chunks.
func (ix *FileIndex) Len() int { return len(ix.chunks) }

// Chunks returns the indexed chunks. The slice must not be modified.
func (ix *FileIndex) Chunks() []*Chunk { return ix.chunks }

// Search returns the limit chunks closest to embedding by cosine similarity,
// ordered by score descending, ties broken by chunk ID.
func (ix *FileIndex) Search(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	if len(embedding) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), ix.dim)
	}
	if limit <= 0 {
		return []*ScoredChunk{}, nil
	}
	q := NormalizeL2(embedding)

	results := make([]*ScoredChunk, 0, len(ix.chunks))
	for i, c := range ix.chunks {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		results = append(results, &ScoredChunk{Chunk: c, Score: dot(q, ix.vectors[i])})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Chunk.ID < results[j].Chunk.ID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close is a no-op; the index holds no external resources.
func (ix *FileIndex) Close() error { return nil }
