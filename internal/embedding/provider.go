package embedding

import "context"

// Provider is an embedding model. Ingestion uses GenerateEmbeddings, serving
// uses EmbedQuery; both sides must use the same ModelID.
type Provider interface {
	ModelID() string
	Dim() int
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	_ Provider = (*Embedder)(nil)
	_ Provider = (*Hashing)(nil)
)
