//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

// setupTestIndex creates an index on a fresh collection and drops it after
// the test. Skips test if Qdrant is not running.
func setupTestIndex(t *testing.T) *QdrantIndex {
	t.Helper()
	collection := CollectionName(NewSnapshotID(time.Now()))
	ix, err := NewQdrantIndex("localhost", 6334, collection, testDim)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	require.NoError(t, ix.EnsureCollection(context.Background()), "Failed to ensure collection")
	t.Cleanup(func() {
		_ = ix.DropCollection(context.Background())
		_ = ix.Close()
	})
	return ix
}

func unitVector(i int) []float32 {
	v := make([]float32, testDim)
	v[i%testDim] = 1
	return v
}

func TestQdrant_EnsureCollectionIdempotent(t *testing.T) {
	ix := setupTestIndex(t)
	assert.NoError(t, ix.EnsureCollection(context.Background()))
}

func TestQdrant_ChunkSearchRoundTrip(t *testing.T) {
	ix := setupTestIndex(t)
	ctx := context.Background()

	chunk := &Chunk{
		ID:          "kepler#0",
		ParentDocID: "kepler",
		ChunkIndex:  0,
		Start:       0,
		End:         27,
		HeaderPath:  "# Kepler > ## Deploying",
		Content:     "Install the Kepler operator",
		Embedding:   unitVector(0),
	}
	other := &Chunk{ID: "triton#0", ParentDocID: "triton", Content: "Triton", Embedding: unitVector(1)}
	require.NoError(t, ix.UpsertChunks(ctx, []*Chunk{chunk, other}))

	results, err := ix.Search(ctx, unitVector(0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.InDelta(t, 1.0, got.Score, 1e-5)
	assert.Equal(t, chunk.ID, got.Chunk.ID)
	assert.Equal(t, chunk.ParentDocID, got.Chunk.ParentDocID)
	assert.Equal(t, chunk.End, got.Chunk.End)
	assert.Equal(t, chunk.HeaderPath, got.Chunk.HeaderPath)
	assert.Equal(t, chunk.Content, got.Chunk.Content)
}

func TestQdrant_UpsertIsIdempotent(t *testing.T) {
	ix := setupTestIndex(t)
	ctx := context.Background()

	chunk := &Chunk{ID: "a#0", ParentDocID: "a", Content: "x", Embedding: unitVector(2)}
	require.NoError(t, ix.UpsertChunks(ctx, []*Chunk{chunk}))
	require.NoError(t, ix.UpsertChunks(ctx, []*Chunk{chunk}))

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestQdrant_BatchUpsertAndParentIDs(t *testing.T) {
	ix := setupTestIndex(t)
	ctx := context.Background()

	// More than one upsert batch and more than one scroll page.
	var chunks []*Chunk
	for i := 0; i < 250; i++ {
		parent := uuid.NewString()[:4]
		if i%2 == 0 {
			parent = "even"
		}
		chunks = append(chunks, &Chunk{
			ID:          parent + "#" + uuid.NewString(),
			ParentDocID: parent,
			ChunkIndex:  i,
			Content:     "chunk",
			Embedding:   unitVector(i),
		})
	}
	require.NoError(t, ix.UpsertChunks(ctx, chunks))

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), count)

	parents, err := ix.ParentIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, parents, "even")
	assert.IsIncreasing(t, parents)
}

func TestQdrant_DimensionValidation(t *testing.T) {
	ix := setupTestIndex(t)
	ctx := context.Background()

	err := ix.UpsertChunks(ctx, []*Chunk{{ID: "bad#0", Embedding: make([]float32, testDim+1)}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ix.Search(ctx, make([]float32, testDim-1), 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrant_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("health check retries for 30s")
	}
	_, err := NewQdrantIndex("localhost", 1, "unused", testDim)
	assert.ErrorIs(t, err, ErrQdrantUnreachable)
}
