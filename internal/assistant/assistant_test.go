package assistant

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ask-et/internal/answer"
	"github.com/bull/ask-et/internal/config"
	"github.com/bull/ask-et/internal/embedding"
	"github.com/bull/ask-et/internal/indexer"
	"github.com/bull/ask-et/internal/markdown"
	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/retrieval"
	"github.com/bull/ask-et/internal/storage"
)

const testDim = 1024

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SnapshotDir:       t.TempDir(),
		EmbeddingProvider: config.ProviderHash,
		EmbeddingDim:      testDim,
		EmbedTimeout:      time.Second,
		TopK:              5,
		FallbackSize:      5,
		MaxProjects:       5,
		MinScore:          0.3,
		VectorBackend:     storage.BackendFile,
		ChunkSize:         1000,
		ChunkOverlap:      200,
		Vocabulary:        config.DefaultVocabulary(),
	}
}

func testDocs() []*storage.Document {
	return []*storage.Document{
		{ID: "community", Title: "Open Source Community Health", Author: "Brian Profitt", Date: "2024-05-01",
			Tags: []string{"community"}, Content: "Healthy communities need maintainers and clear governance."},
		{ID: "kepler", Title: "Sustainability at the Edge with Kepler", Author: "Brian Profitt", Date: "2023-11-02",
			Category: "Sustainability", Tags: []string{"kepler"}, Content: "Kepler exports power readings for workloads on small devices."},
		{ID: "triton", Title: "Writing Triton Kernels", Author: "Ada Byte", Date: "2024-04-01",
			Tags: []string{"triton", "gpu"}, Content: "Triton lets you write fused kernels in Python syntax."},
		{ID: "ansible", Title: "Ansible Playbooks at Scale", Author: "Sam Lee", Date: "2024-01-15",
			Tags: []string{"ansible", "automation"}, Content: "Playbooks describe desired state for thousands of hosts."},
	}
}

func testProjects() []*storage.ProjectRecord {
	return []*storage.ProjectRecord{
		{ID: "kepler", Name: "Kepler", Tags: []string{"kepler", "sustainability"},
			GitHubLinks: []string{"https://github.com/sustainable-computing-io/kepler"}},
		{ID: "triton-dev", Name: "Triton Dev Tools", Tags: []string{"gpu"}},
		{ID: "unrelated", Name: "Unrelated", Tags: []string{"blockchain"}},
	}
}

// publish indexes docs into cfg.SnapshotDir with the hashing embedder.
func publish(t *testing.T, cfg *config.Config, docs []*storage.Document, projects []*storage.ProjectRecord) string {
	t.Helper()
	p := indexer.NewPipeline(markdown.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap), embedding.NewHashing(testDim),
		nil, nil, indexer.Options{SnapshotDir: cfg.SnapshotDir}, nil)
	result, err := p.IndexAll(context.Background(), docs, projects)
	require.NoError(t, err)
	return result.SnapshotID
}

func newTestAssistant(t *testing.T) (*Assistant, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	publish(t, cfg, testDocs(), testProjects())

	a, err := New(context.Background(), cfg, embedding.NewHashing(testDim), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, cfg
}

func documentIDs(ans *answer.Answer) []string {
	ids := make([]string, 0, len(ans.Documents))
	for _, d := range ans.Documents {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestAsk_EmptyQuery(t *testing.T) {
	a, _ := newTestAssistant(t)

	for _, q := range []string{"", "   ", "\n\t"} {
		ans := a.Ask(context.Background(), q)
		assert.Equal(t, answer.StatusEmptyQuery, ans.Status)
		assert.Equal(t, answer.MessageEmptyQuery, ans.Message)
		assert.Empty(t, ans.Documents)
		assert.Empty(t, ans.Stages, "blank queries never reach retrieval")
	}
}

func TestAsk_Author(t *testing.T) {
	a, _ := newTestAssistant(t)

	ans := a.Ask(context.Background(), "blogs by Brian Profitt")
	assert.Equal(t, answer.StatusOK, ans.Status)
	assert.Equal(t, query.IntentAuthor, ans.Intent)
	assert.Equal(t, retrieval.ProvenancePrimary, ans.Provenance)
	assert.Equal(t, []string{"community", "kepler"}, documentIDs(ans))

	require.Len(t, ans.Projects, 1)
	assert.Equal(t, "kepler", ans.Projects[0].ID)
	assert.Equal(t, 2, ans.Projects[0].Overlap)
}

func TestAsk_Technology(t *testing.T) {
	a, _ := newTestAssistant(t)

	ans := a.Ask(context.Background(), "GPU tutorials")
	assert.Equal(t, query.IntentTechnology, ans.Intent)
	assert.Equal(t, "gpu", ans.Entity)
	assert.Equal(t, []string{"triton"}, documentIDs(ans))
	require.Len(t, ans.Projects, 1)
	assert.Equal(t, "triton-dev", ans.Projects[0].ID)
}

func TestAsk_ExactTitle(t *testing.T) {
	a, _ := newTestAssistant(t)

	ans := a.Ask(context.Background(), "Tell me about Writing Triton Kernels")
	assert.Equal(t, query.IntentExactTitle, ans.Intent)
	require.NotEmpty(t, ans.Documents)
	assert.Equal(t, "triton", ans.Documents[0].ID)
}

func TestAsk_Semantic(t *testing.T) {
	a, _ := newTestAssistant(t)

	ans := a.Ask(context.Background(), "playbooks scale hosts")
	assert.Equal(t, query.IntentGeneral, ans.Intent)
	assert.Equal(t, retrieval.ProvenancePrimary, ans.Provenance)
	require.NotEmpty(t, ans.Documents)
	assert.Equal(t, "ansible", ans.Documents[0].ID)
	assert.Greater(t, ans.Documents[0].Score, 0.3)
}

func TestAsk_FinalFallback(t *testing.T) {
	a, _ := newTestAssistant(t)

	ans := a.Ask(context.Background(), "qwertyzzz-nonexistent-term")
	assert.Equal(t, answer.StatusOK, ans.Status)
	assert.Equal(t, retrieval.ProvenanceFinalFallback, ans.Provenance)
	assert.Equal(t, []string{"community", "triton", "ansible", "kepler"}, documentIDs(ans), "newest first")
}

func TestAsk_EmptyCorpus(t *testing.T) {
	cfg := testConfig(t)
	publish(t, cfg, nil, nil)

	a, err := New(context.Background(), cfg, embedding.NewHashing(testDim), nil)
	require.NoError(t, err)

	ans := a.Ask(context.Background(), "anything about kubernetes")
	assert.Equal(t, answer.StatusNoResults, ans.Status)
	assert.Equal(t, answer.MessageNoResults, ans.Message)
	assert.Empty(t, ans.Documents)
}

func TestAsk_Idempotent(t *testing.T) {
	a, _ := newTestAssistant(t)

	first := a.Ask(context.Background(), "kepler")
	second := a.Ask(context.Background(), "kepler")
	assert.Equal(t, first, second)
}

func TestNew_NoSnapshot(t *testing.T) {
	_, err := New(context.Background(), testConfig(t), embedding.NewHashing(testDim), nil)
	assert.ErrorIs(t, err, storage.ErrNoSnapshot)
}

// otherModel reports a different model ID for the same vectors.
type otherModel struct{ *embedding.Hashing }

func (otherModel) ModelID() string { return "openai:text-embedding-3-small" }

func TestLoadCorpus_ModelMismatch(t *testing.T) {
	cfg := testConfig(t)
	publish(t, cfg, testDocs(), nil)

	_, err := LoadCorpus(context.Background(), cfg, otherModel{embedding.NewHashing(testDim)}, nil)
	assert.ErrorIs(t, err, ErrModelMismatch)

	_, err = LoadCorpus(context.Background(), cfg, embedding.NewHashing(testDim/2), nil)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestReload_SwitchesSnapshot(t *testing.T) {
	a, cfg := newTestAssistant(t)
	before := a.Corpus().Manifest.SnapshotID

	ans := a.Ask(context.Background(), "quantum")
	assert.NotContains(t, documentIDs(ans), "quantum")

	docs := append(testDocs(), &storage.Document{ID: "quantum", Title: "Quantum Error Correction", Author: "Chris Wu",
		Date: "2024-06-01", Tags: []string{"quantum"}, Content: "Logical qubits from noisy physical qubits."})
	after := publish(t, cfg, docs, testProjects())

	require.NoError(t, a.Reload(context.Background()))
	assert.Equal(t, after, a.Corpus().Manifest.SnapshotID)
	assert.NotEqual(t, before, after)

	ans = a.Ask(context.Background(), "quantum")
	assert.Equal(t, []string{"quantum"}, documentIDs(ans))
}

func TestReload_SameSnapshotIsNoop(t *testing.T) {
	a, _ := newTestAssistant(t)
	corpus := a.Corpus()

	require.NoError(t, a.Reload(context.Background()))
	assert.Same(t, corpus, a.Corpus())
}

func TestReload_KeepsServingOnFailure(t *testing.T) {
	a, cfg := newTestAssistant(t)
	corpus := a.Corpus()

	// Point CURRENT at a snapshot with a broken manifest.
	dir := filepath.Join(cfg.SnapshotDir, "snap-broken")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.ManifestFile), []byte(`{"snapshot_id": ""}`), 0o644))
	require.NoError(t, storage.Publish(cfg.SnapshotDir, "snap-broken"))

	err := a.Reload(context.Background())
	assert.ErrorIs(t, err, storage.ErrInvalidManifest)
	assert.Same(t, corpus, a.Corpus())

	ans := a.Ask(context.Background(), "blogs by Brian Profitt")
	assert.Len(t, ans.Documents, 2)
}

func TestReload_LogsServedSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, cfg *config.Config) string
		wantErr bool
		want    []string
	}{
		{
			name: "switch",
			prepare: func(t *testing.T, cfg *config.Config) string {
				return publish(t, cfg, testDocs()[:2], testProjects())
			},
			want: []string{"Switched snapshot", "from={before}", "to={after}"},
		},
		{
			name: "failure",
			prepare: func(t *testing.T, cfg *config.Config) string {
				dir := filepath.Join(cfg.SnapshotDir, "snap-broken")
				require.NoError(t, os.Mkdir(dir, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(dir, storage.ManifestFile), []byte(`{"snapshot_id": ""}`), 0o644))
				require.NoError(t, storage.Publish(cfg.SnapshotDir, "snap-broken"))
				return ""
			},
			wantErr: true,
			want:    []string{"Snapshot reload failed", "snapshot={before}"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			before := publish(t, cfg, testDocs(), testProjects())
			var buf bytes.Buffer
			a, err := New(context.Background(), cfg, embedding.NewHashing(testDim), config.NewLogger("info", &buf))
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.Close() })

			after := tt.prepare(t, cfg)
			err = a.Reload(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, before, a.SnapshotID())
			} else {
				require.NoError(t, err)
				assert.Equal(t, after, a.SnapshotID())
			}
			ids := strings.NewReplacer("{before}", before, "{after}", after)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), ids.Replace(w))
			}
		})
	}
}

func TestAsk_ConcurrentWithReload(t *testing.T) {
	a, cfg := newTestAssistant(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ans := a.Ask(context.Background(), "blogs by Brian Profitt")
				assert.Len(t, ans.Documents, 2)
			}
		}()
	}
	for i := 0; i < 3; i++ {
		publish(t, cfg, testDocs(), testProjects())
		assert.NoError(t, a.Reload(context.Background()))
	}
	wg.Wait()
}

func TestReport(t *testing.T) {
	a, _ := newTestAssistant(t)

	r, err := a.Corpus().Report(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Consistent())
	assert.Equal(t, 4, r.Stats.Documents)
	assert.Equal(t, 3, r.Stats.Projects)
	assert.Equal(t, 1, r.Stats.ProjectsWithGitHub)
	assert.Equal(t, 4, r.Chunks)
	assert.Empty(t, r.OrphanParents)
	assert.Empty(t, r.Unindexed)
	assert.Contains(t, r.Topics, "kepler")
	assert.Contains(t, r.Topics, "triton")
}

// remoteIndex stands in for a server-side index that lists parents and
// counts its own points.
type remoteIndex struct {
	parents []string
	count   uint64
	err     error
}

func (r *remoteIndex) Search(context.Context, []float32, int) ([]*storage.ScoredChunk, error) {
	return nil, nil
}
func (r *remoteIndex) ParentIDs(context.Context) ([]string, error) { return r.parents, nil }
func (r *remoteIndex) Count(context.Context) (uint64, error)       { return r.count, r.err }
func (r *remoteIndex) Close() error                                { return nil }

func TestReport_RemoteIndexCount(t *testing.T) {
	catalog, err := storage.NewCatalog(testDocs(), nil)
	require.NoError(t, err)
	classifier, err := query.NewClassifier(config.DefaultVocabulary(), catalog)
	require.NoError(t, err)

	var ids []string
	for _, d := range catalog.Documents() {
		ids = append(ids, d.ID)
	}

	tests := []struct {
		name    string
		index   *remoteIndex
		chunks  int
		wantErr string
	}{
		{"live count replaces manifest", &remoteIndex{parents: ids, count: 9}, 9, ""},
		{"count failure", &remoteIndex{parents: ids, err: assert.AnError}, 0, "count indexed chunks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Corpus{
				Manifest:   &storage.Manifest{Backend: storage.BackendQdrant, Chunks: 4},
				Catalog:    catalog,
				Classifier: classifier,
				Index:      tt.index,
			}
			r, err := c.Report(context.Background())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.chunks, r.Chunks)
			assert.True(t, r.Consistent())
			assert.Empty(t, r.Unindexed)
		})
	}
}

func TestReport_Orphans(t *testing.T) {
	cfg := testConfig(t)
	root := cfg.SnapshotDir

	// A snapshot whose chunks reference a post missing from the metadata.
	catalog, err := storage.NewCatalog(testDocs()[:1], nil)
	require.NoError(t, err)
	emb := embedding.NewHashing(testDim)
	vecs, err := emb.GenerateEmbeddings(context.Background(), []string{"community health", "ghost post"})
	require.NoError(t, err)
	chunks := []*storage.Chunk{
		{ID: "community#0", ParentDocID: "community", Content: "community health", Embedding: vecs[0]},
		{ID: "ghost#0", ParentDocID: "ghost", Content: "ghost post", Embedding: vecs[1]},
	}

	name := storage.NewSnapshotID(time.Now())
	dir := filepath.Join(root, name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, storage.WriteCatalog(dir, catalog))
	require.NoError(t, storage.WriteChunks(dir, chunks, testDim))
	require.NoError(t, storage.WriteManifest(dir, &storage.Manifest{
		SnapshotID: name, ModelID: emb.ModelID(), Dim: testDim, Metric: storage.MetricCosine,
		Backend: storage.BackendFile, Documents: 1, Chunks: 2,
	}))
	require.NoError(t, storage.Publish(root, name))

	a, err := New(context.Background(), cfg, emb, nil)
	require.NoError(t, err)

	r, err := a.Corpus().Report(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Consistent())
	assert.Equal(t, []string{"ghost"}, r.OrphanParents)

	// Orphans are skipped at query time.
	ans := a.Ask(context.Background(), "ghost post")
	assert.NotContains(t, documentIDs(ans), "ghost")
}
