package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ask-et/internal/embedding"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("TOP_K", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./index", cfg.SnapshotDir)
	assert.Equal(t, ProviderOpenAI, cfg.EmbeddingProvider)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.EmbeddingDim)
	assert.Equal(t, 10*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 5, cfg.FallbackSize)
	assert.Equal(t, 5, cfg.MaxProjects)
	assert.Equal(t, 0.3, cfg.MinScore)
	assert.Equal(t, "file", cfg.VectorBackend)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, "openai:text-embedding-3-small", cfg.ModelID())
	assert.NotEmpty(t, cfg.Vocabulary.Technologies)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "HASH")
	t.Setenv("EMBEDDING_DIM", "256")
	t.Setenv("EMBED_TIMEOUT", "2")
	t.Setenv("TOP_K", "3")
	t.Setenv("MIN_SCORE", "0.5")
	t.Setenv("VECTOR_BACKEND", "Qdrant")
	t.Setenv("SERVER_MODE", "true")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderHash, cfg.EmbeddingProvider)
	assert.Equal(t, 256, cfg.EmbeddingDim)
	assert.Equal(t, 2*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 0.5, cfg.MinScore)
	assert.Equal(t, "qdrant", cfg.VectorBackend)
	assert.True(t, cfg.ServerMode)
	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, embedding.HashingModelID, cfg.ModelID())

	p, err := cfg.NewEmbedder()
	require.NoError(t, err)
	assert.Equal(t, 256, p.Dim())
	assert.Equal(t, embedding.HashingModelID, p.ModelID())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"EMBEDDING_PROVIDER", "cohere", "EMBEDDING_PROVIDER"},
		{"TOP_K", "0", "TOP_K must be positive"},
		{"FALLBACK_SIZE", "-1", "FALLBACK_SIZE"},
		{"MAX_PROJECTS", "0", "MAX_PROJECTS must be positive"},
		{"EMBED_MAX_RETRIES", "0", "EMBED_MAX_RETRIES must be positive"},
		{"MAX_DOCUMENTS", "-2", "MAX_DOCUMENTS"},
		{"TOP_K", "five", "TOP_K must be an integer"},
		{"MIN_SCORE", "high", "MIN_SCORE must be a number"},
		{"SERVER_MODE", "sometimes", "SERVER_MODE must be a boolean"},
		{"EMBED_TIMEOUT", "soon", "EMBED_TIMEOUT must be a duration"},
		{"MIN_SCORE", "1.5", "MIN_SCORE"},
		{"VECTOR_BACKEND", "sqlite", "VECTOR_BACKEND"},
		{"CHUNK_OVERLAP", "1000", "CHUNK_OVERLAP"},
		{"VOCABULARY_FILE", "/nonexistent/vocab.yaml", "vocab.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ReportsEveryMalformedVariable(t *testing.T) {
	t.Setenv("TOP_K", "five")
	t.Setenv("EMBED_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `TOP_K must be an integer, got "five"`)
	assert.Contains(t, err.Error(), `EMBED_TIMEOUT must be a duration`)
}

func TestEnvReader_Duration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
		fails bool
	}{
		{"1500ms", 1500 * time.Millisecond, false},
		{"0.5", 500 * time.Millisecond, false},
		{"", time.Second, false},
		{"soon", time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("D", tt.value)
			env := &envReader{}
			assert.Equal(t, tt.want, env.Duration("D", time.Second))
			assert.Equal(t, tt.fails, len(env.errs) > 0)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "doc_id", "x")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "doc_id=x")
}

func TestLoadVocabulary_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
technologies:
  GPU: [CUDA, triton]
  rust: []
title_lead_ins:
  - explain
  - please explain
`), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"cuda", "gpu", "triton"}, v.Technologies["gpu"])
	assert.Equal(t, []string{"rust"}, v.Technologies["rust"])
	assert.Equal(t, []string{"please explain", "explain"}, v.TitleLeadIns)
	// Sections left out keep their defaults.
	assert.Equal(t, DefaultVocabulary().Categories, v.Categories)
	assert.Equal(t, DefaultVocabulary().AuthorPatterns, v.AuthorPatterns)
}

func TestLoadVocabulary_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
author_patterns = ['^posts from (?P<name>.+)$']

[categories]
robotics = ["robots", "ROS"]
`), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"robotics", "robots", "ros"}, v.Categories["robotics"])
	assert.Equal(t, []string{"^posts from (?P<name>.+)$"}, v.AuthorPatterns)
	assert.Equal(t, DefaultVocabulary().Technologies, v.Technologies)
}

func TestLoadVocabulary_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "vocab.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{}`), 0o644))
	_, err := LoadVocabulary(bad)
	assert.ErrorContains(t, err, "unsupported vocabulary format")

	broken := filepath.Join(dir, "vocab.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("technologies: [unclosed"), 0o644))
	_, err = LoadVocabulary(broken)
	assert.ErrorContains(t, err, "parsing")
}
