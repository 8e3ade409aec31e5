package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// contentVector is the named vector chunks are stored under.
const contentVector = "content"

// QdrantIndex is a vector index backed by one Qdrant collection per snapshot.
type QdrantIndex struct {
	client     *qdrant.Client
	host       string
	port       int
	collection string
	dim        int
}

// NewQdrantIndex creates a Qdrant client for collection with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantIndex(host string, port int, collection string, dim int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	ix := &QdrantIndex{
		client:     client,
		host:       host,
		port:       port,
		collection: collection,
		dim:        dim,
	}

	if err := ix.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return ix, nil
}

// Collection returns the collection this index reads and writes.
func (ix *QdrantIndex) Collection() string { return ix.collection }

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (ix *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return ix.Health(ctx)
	}, backoff.WithContext(newBackOff(), ctx))
}

// Health performs a single health check against Qdrant.
func (ix *QdrantIndex) Health(ctx context.Context) error {
	result, err := ix.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with a cosine "content" vector of
// the configured dimension and keyword payload indexes. Idempotent.
func (ix *QdrantIndex) EnsureCollection(ctx context.Context) error {
	collections, err := ix.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == ix.collection {
			return nil
		}
	}

	err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ix.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			contentVector: {
				Size:     uint64(ix.dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, field := range []string{"type", "parent_doc_id"} {
		_, err := ix.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: ix.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// DropCollection deletes the collection. Used to discard an unpublished
// snapshot after a failed ingestion.
func (ix *QdrantIndex) DropCollection(ctx context.Context) error {
	if err := ix.client.DeleteCollection(ctx, ix.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (ix *QdrantIndex) Close() error {
	if ix.client != nil {
		return ix.client.Close()
	}
	return nil
}

func (ix *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: ix.collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(newBackOff(), ctx))
}

// pointID maps a chunk ID to the deterministic UUID Qdrant requires.
func (ix *QdrantIndex) pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ix.collection+"/"+chunkID)).String()
}

// UpsertChunks stores chunks with embeddings, batched in groups of 100.
func (ix *QdrantIndex) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != ix.dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), ix.dim)
		}
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(ix.pointID(chunk.ID)),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					contentVector: qdrant.NewVector(chunk.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"type":          "chunk",
					"chunk_id":      chunk.ID,
					"parent_doc_id": chunk.ParentDocID,
					"chunk_index":   chunk.ChunkIndex,
					"start":         chunk.Start,
					"end":           chunk.End,
					"header_path":   chunk.HeaderPath,
					"content":       chunk.Content,
				}),
			}
		}

		if err := ix.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Search performs cosine similarity search over chunks and returns the top
// limit chunks with scores, ordered by score descending.
func (ix *QdrantIndex) Search(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	if len(embedding) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), ix.dim)
	}

	vectorName := contentVector
	results, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ix.collection,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &vectorName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("type", "chunk")},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		chunk := &Chunk{
			ID:          payload["chunk_id"].GetStringValue(),
			ParentDocID: payload["parent_doc_id"].GetStringValue(),
			ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
			Start:       int(payload["start"].GetIntegerValue()),
			End:         int(payload["end"].GetIntegerValue()),
			HeaderPath:  payload["header_path"].GetStringValue(),
			Content:     payload["content"].GetStringValue(),
		}
		scored = append(scored, &ScoredChunk{
			Chunk: chunk,
			Score: float64(result.Score),
		})
	}
	return scored, nil
}

// ParentIDs returns the distinct parent document IDs referenced by chunks,
// sorted. Uses the Scroll API to page through the collection.
func (ix *QdrantIndex) ParentIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var offset *qdrant.PointId
	batchSize := uint32(100)

	for {
		results, err := ix.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: ix.collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("type", "chunk")},
			},
			Limit:       qdrant.PtrOf(batchSize),
			Offset:      offset,
			WithPayload: qdrant.NewWithPayloadInclude("parent_doc_id"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll chunks: %w", err)
		}

		for _, result := range results {
			if id := result.Payload["parent_doc_id"].GetStringValue(); id != "" {
				seen[id] = struct{}{}
			}
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the exact number of points in the collection.
func (ix *QdrantIndex) Count(ctx context.Context) (uint64, error) {
	count, err := ix.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: ix.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}
