package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500

	// DefaultMaxRetries bounds retries of a single query embedding.
	DefaultMaxRetries = 3
)

// Options configures an Embedder. Zero values take the defaults above.
type Options struct {
	Model      string
	Dimension  int
	BatchSize  int
	MaxRetries int
	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64
}

// Embedder generates embeddings with an OpenAI embedding model.
// It batches ingestion requests, rate limits all requests and retries
// transient failures (rate limits, server errors, network errors) with
// exponential backoff.
type Embedder struct {
	client     *Client
	model      string
	dim        int
	batchSize  int
	maxRetries int
	limiter    *rate.Limiter
}

// NewEmbedder creates a new Embedder with the given client and options.
func NewEmbedder(client *Client, opts Options) *Embedder {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Embedder{
		client:     client,
		model:      opts.Model,
		dim:        opts.Dimension,
		batchSize:  opts.BatchSize,
		maxRetries: opts.MaxRetries,
		limiter:    limiter,
	}
}

// ModelID identifies the model vectors were produced with. Snapshots record it
// and serving refuses a snapshot built with a different model.
func (e *Embedder) ModelID() string { return "openai:" + e.model }

// Dim returns the vector dimension.
func (e *Embedder) Dim() int { return e.dim }

// EmbedQuery embeds a single query text. Transient failures are retried at
// most MaxRetries times; the caller bounds the total time through ctx.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0 // bounded by retries and ctx

	embeddings, err := e.embedWithRetry(ctx, []string{text},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.maxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// GenerateEmbeddings generates embeddings for the given texts.
// Batches requests and retries with exponential backoff on transient errors.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var allEmbeddings [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 10 * time.Second
		b.MaxElapsedTime = 30 * time.Second

		embeddings, err := e.embedWithRetry(ctx, batch, backoff.WithContext(b, ctx))
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, texts []string, b backoff.BackOff) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		}
		if strings.HasPrefix(e.model, "text-embedding-3") {
			params.Dimensions = openai.Int(int64(e.dim))
		}

		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts)))
		}

		embeddings = make([][]float32, len(resp.Data))
		for _, data := range resp.Data {
			if int(data.Index) >= len(embeddings) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
			}
			embeddings[data.Index] = toFloat32(data.Embedding)
		}
		return nil
	}

	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// isRetryable reports whether err is worth another attempt: rate limits
// (HTTP 429), server errors (5xx) and network timeouts.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
