// Package config resolves the static configuration the assistant is started
// with. Values come from the environment (optionally seeded from a .env file by
// the binaries) and are read once; nothing is re-read per request.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bull/ask-et/internal/embedding"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Config is the configuration surface consumed by the retrieval core, the
// ingestion pipeline and the binaries.
type Config struct {
	SnapshotDir string
	CorpusDir   string

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
	EmbedTimeout      time.Duration
	EmbedMaxRetries   int
	EmbedRateLimit    float64

	TopK         int
	FallbackSize int
	MaxProjects  int
	MaxDocuments int
	MinScore     float64

	VectorBackend string
	QdrantHost    string
	QdrantPort    int

	ChunkSize    int
	ChunkOverlap int

	Port       string
	ServerMode bool
	LogLevel   string

	// GitHubToken authenticates project enrichment; optional.
	GitHubToken string

	VocabularyFile string
	Vocabulary     *Vocabulary
}

// Load reads the configuration from the environment and validates it.
// A set variable that does not parse is an error naming the variable, not a
// silent fallback to its default.
func Load() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		SnapshotDir: getEnv("SNAPSHOT_DIR", "./index"),
		CorpusDir:   getEnv("CORPUS_DIR", "./data"),

		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderOpenAI)),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:      env.Int("EMBEDDING_DIM", 1536),
		EmbedTimeout:      env.Duration("EMBED_TIMEOUT", 10*time.Second),
		EmbedMaxRetries:   env.Int("EMBED_MAX_RETRIES", 3),
		EmbedRateLimit:    env.Float("EMBED_RATE_LIMIT", 5),

		TopK:         env.Int("TOP_K", 5),
		FallbackSize: env.Int("FALLBACK_SIZE", 5),
		MaxProjects:  env.Int("MAX_PROJECTS", 5),
		MaxDocuments: env.Int("MAX_DOCUMENTS", 0),
		MinScore:     env.Float("MIN_SCORE", 0.3),

		VectorBackend: strings.ToLower(getEnv("VECTOR_BACKEND", "file")),
		QdrantHost:    getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:    env.Int("QDRANT_PORT", 6334),

		ChunkSize:    env.Int("CHUNK_SIZE", 1000),
		ChunkOverlap: env.Int("CHUNK_OVERLAP", 200),

		Port:       getEnv("PORT", "8080"),
		ServerMode: env.Bool("SERVER_MODE", false),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		GitHubToken: os.Getenv("GITHUB_TOKEN"),

		VocabularyFile: getEnv("VOCABULARY_FILE", ""),
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}

	if cfg.VocabularyFile != "" {
		v, err := LoadVocabulary(cfg.VocabularyFile)
		if err != nil {
			return nil, err
		}
		cfg.Vocabulary = v
	} else {
		cfg.Vocabulary = DefaultVocabulary()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.EmbeddingProvider != ProviderOpenAI && c.EmbeddingProvider != ProviderHash:
		return fmt.Errorf("EMBEDDING_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderHash, c.EmbeddingProvider)
	case c.EmbeddingDim <= 0:
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	case c.EmbedTimeout <= 0:
		return fmt.Errorf("EMBED_TIMEOUT must be positive, got %s", c.EmbedTimeout)
	case c.EmbedMaxRetries <= 0:
		return fmt.Errorf("EMBED_MAX_RETRIES must be positive, got %d", c.EmbedMaxRetries)
	case c.TopK <= 0:
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	case c.FallbackSize <= 0:
		return fmt.Errorf("FALLBACK_SIZE must be positive, got %d", c.FallbackSize)
	case c.MaxProjects <= 0:
		return fmt.Errorf("MAX_PROJECTS must be positive, got %d", c.MaxProjects)
	case c.MaxDocuments < 0:
		return fmt.Errorf("MAX_DOCUMENTS must not be negative, got %d", c.MaxDocuments)
	case c.MinScore < -1 || c.MinScore > 1:
		return fmt.Errorf("MIN_SCORE must be within [-1, 1], got %g", c.MinScore)
	case c.VectorBackend != "file" && c.VectorBackend != "qdrant":
		return fmt.Errorf("VECTOR_BACKEND must be \"file\" or \"qdrant\", got %q", c.VectorBackend)
	case c.ChunkSize <= 0:
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("CHUNK_OVERLAP must be within [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	case c.Vocabulary == nil:
		return fmt.Errorf("vocabulary not loaded")
	}
	return nil
}

// ModelID is the identifier recorded in snapshots built with this
// configuration. It must match between ingestion and serving.
func (c *Config) ModelID() string {
	if c.EmbeddingProvider == ProviderHash {
		return embedding.HashingModelID
	}
	return "openai:" + c.EmbeddingModel
}

// NewEmbedder builds the configured embedding provider. The OpenAI provider
// needs OPENAI_API_KEY.
func (c *Config) NewEmbedder() (embedding.Provider, error) {
	if c.EmbeddingProvider == ProviderHash {
		return embedding.NewHashing(c.EmbeddingDim), nil
	}
	client, err := embedding.NewClient()
	if err != nil {
		return nil, err
	}
	return embedding.NewEmbedder(client, embedding.Options{
		Model:      c.EmbeddingModel,
		Dimension:  c.EmbeddingDim,
		MaxRetries: c.EmbedMaxRetries,
		RateLimit:  c.EmbedRateLimit,
	}), nil
}

// NewLogger builds the text slog logger used by the binaries.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// envReader parses typed variables, collecting one error per variable that
// is set but malformed.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s must be %s, got %q", key, want, value))
}

func (e *envReader) Int(key string, defaultValue int) int {
	v, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, "an integer")
		return defaultValue
	}
	return i
}

func (e *envReader) Float(key string, defaultValue float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, "a number")
		return defaultValue
	}
	return f
}

func (e *envReader) Bool(key string, defaultValue bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "a boolean")
		return defaultValue
	}
	return b
}

// Duration accepts Go durations ("10s") and bare seconds ("10").
func (e *envReader) Duration(key string, defaultValue time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	e.fail(key, v, "a duration such as \"10s\" or a number of seconds")
	return defaultValue
}
