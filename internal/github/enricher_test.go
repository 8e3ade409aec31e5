package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ask-et/internal/storage"
)

func TestParseRepository(t *testing.T) {
	tests := []struct {
		link string
		want string
		ok   bool
	}{
		{"https://github.com/kepler-project/kepler", "kepler-project/kepler", true},
		{"https://www.github.com/enarx/enarx/tree/main/docs", "enarx/enarx", true},
		{"github.com/ansible/ansible.git", "ansible/ansible", true},
		{"http://GitHub.com/Owner/Repo/", "Owner/Repo", true},
		{"https://github.com/redhat-et", "", false},
		{"https://gitlab.com/owner/repo", "", false},
		{"https://next.redhat.com/project/kepler", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			got, ok := ParseRepository(tt.link)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestMergeTags(t *testing.T) {
	got, added := mergeTags([]string{"Edge", "kepler"}, []string{"KEPLER", "sustainability", " ", "edge"})
	assert.True(t, added)
	assert.Equal(t, []string{"Edge", "kepler", "sustainability"}, got)

	_, added = mergeTags([]string{"ai"}, []string{"AI"})
	assert.False(t, added)
}

// newTestEnricher serves a fake GitHub API with one repository.
func newTestEnricher(t *testing.T) *Enricher {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/sustainable-computing-io/kepler", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"kepler","description":"Kubernetes-based Efficient Power Level Exporter","topics":["Kubernetes","energy","prometheus"]}`))
	})
	mux.HandleFunc("/repos/gone/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return NewEnricher(&Client{Client: gh}, nil)
}

func TestEnrichProject(t *testing.T) {
	e := newTestEnricher(t)

	p := &storage.ProjectRecord{
		ID:          "kepler",
		Name:        "Kepler",
		GitHubLinks: []string{"https://github.com/sustainable-computing-io/kepler"},
		Tags:        []string{"kubernetes"},
	}
	changed, err := e.EnrichProject(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Kubernetes-based Efficient Power Level Exporter", p.Description)
	assert.Equal(t, []string{"kubernetes", "energy", "prometheus"}, p.Tags)
}

func TestEnrichProject_KeepsExistingDescription(t *testing.T) {
	e := newTestEnricher(t)

	p := &storage.ProjectRecord{
		ID:          "kepler",
		Description: "Measures power use of pods.",
		GitHubLinks: []string{"https://github.com/sustainable-computing-io/kepler"},
		Tags:        []string{"kubernetes", "energy", "prometheus"},
	}
	changed, err := e.EnrichProject(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Measures power use of pods.", p.Description)
}

func TestEnrichProjects(t *testing.T) {
	e := newTestEnricher(t)

	projects := []*storage.ProjectRecord{
		{ID: "kepler", GitHubLinks: []string{"https://github.com/sustainable-computing-io/kepler"}},
		{ID: "missing", GitHubLinks: []string{"https://github.com/gone/missing"}},
		{ID: "site-only", ProjectURL: "https://next.redhat.com/project/site-only"},
	}
	result, err := e.EnrichProjects(context.Background(), projects)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enriched)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "missing", result.Failed[0].ID)
}
