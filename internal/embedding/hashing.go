package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashingModelID identifies vectors produced by Hashing.
const HashingModelID = "hash:v1"

// Hashing is a deterministic, offline embedding provider: every lower-cased
// alphanumeric token is hashed into one of dim buckets. Texts sharing no
// tokens have cosine similarity 0. Useful for local development without an
// API key and for tests.
type Hashing struct {
	dim int
}

// NewHashing creates a hashing provider of the given dimension.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 256
	}
	return &Hashing{dim: dim}
}

// ModelID returns HashingModelID.
func (h *Hashing) ModelID() string { return HashingModelID }

// Dim returns the vector dimension.
func (h *Hashing) Dim() int { return h.dim }

// EmbedQuery embeds a single text.
func (h *Hashing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return h.embed(text), nil
}

// GenerateEmbeddings embeds each text independently.
func (h *Hashing) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *Hashing) embed(text string) []float32 {
	v := make([]float32, h.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		v[f.Sum32()%uint32(h.dim)] += 1
	}
	return v
}
