package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog(t *testing.T) {
	docs := []*Document{
		{ID: "old", Title: "Old Post", Author: "Jane Doe", Date: "2022-01-01"},
		{Title: "Edge AI Patterns", Author: "jane doe", Date: "2024-01-01", URL: "https://next.redhat.com/2024/01/01/edge-ai-patterns/"},
		{Title: "Undated Thoughts", Author: "Ada Byte"},
		{ID: "b", Title: "Same Day B", Author: "Ada Byte", Date: "2023-06-01T10:00:00Z"},
		{ID: "a", Title: "Same Day A", Date: "2023-06-01T10:00:00Z"},
		nil,
	}
	projects := []*ProjectRecord{
		{Name: "Kepler", GitHubLinks: []string{"https://github.com/sustainable-computing-io/kepler"}, Category: "Sustainability"},
		{Name: "Site Only", ProjectURL: "https://next.redhat.com/project/site-only/"},
	}

	c, err := NewCatalog(docs, projects)
	require.NoError(t, err)

	assert.Equal(t, 5, c.Len())
	var ids []string
	for _, d := range c.Documents() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"edge-ai-patterns", "a", "b", "old", "undated-thoughts"}, ids)

	doc, ok := c.Document("edge-ai-patterns")
	require.True(t, ok)
	assert.True(t, doc.PublishedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = c.Lookup("missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.Equal(t, "kepler", c.Projects()[0].ID)
	assert.Equal(t, "site-only", c.Projects()[1].ID)
	// Deduplicated case-insensitively, keeping the spelling of the newest post.
	assert.Equal(t, []string{"Ada Byte", "jane doe"}, c.Authors())
}

func TestNewCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		docs     []*Document
		projects []*ProjectRecord
	}{
		{"empty title", []*Document{{ID: "x", Title: "  "}}, nil},
		{"duplicate document", []*Document{{ID: "x", Title: "A"}, {ID: "x", Title: "B"}}, nil},
		{"empty project name", nil, []*ProjectRecord{{ID: "p"}}},
		{"duplicate project", nil, []*ProjectRecord{{ID: "p", Name: "P"}, {ID: "p", Name: "Q"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.docs, tt.projects)
			assert.ErrorIs(t, err, ErrInvalidCorpus)
		})
	}
}

func TestCatalog_Recent(t *testing.T) {
	c, err := NewCatalog([]*Document{
		{ID: "1", Title: "One", Date: "2024-01-01"},
		{ID: "2", Title: "Two", Date: "2024-02-01"},
		{ID: "3", Title: "Three", Date: "2024-03-01"},
	}, nil)
	require.NoError(t, err)

	recent := c.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "3", recent[0].ID)
	assert.Equal(t, "2", recent[1].ID)
	assert.Len(t, c.Recent(10), 3)
	assert.Nil(t, c.Recent(0))
}

func TestCatalog_Stats(t *testing.T) {
	c, err := NewCatalog([]*Document{
		{ID: "1", Title: "One", Content: "body", Category: "AI"},
		{ID: "2", Title: "Two", Summary: "summary", Category: "Edge"},
		{ID: "3", Title: "Three", Category: "AI"},
	}, []*ProjectRecord{
		{ID: "p", Name: "P", GitHubLinks: []string{"https://github.com/o/p"}, Category: "Security"},
		{ID: "q", Name: "Q"},
	})
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 2, stats.Projects)
	assert.Equal(t, 2, stats.DocumentsWithText)
	assert.Equal(t, 1, stats.ProjectsWithGitHub)
	assert.Equal(t, []string{"AI", "Edge"}, stats.DocumentCategories)
	assert.Equal(t, []string{"Security"}, stats.ProjectCategories)
}

func TestTagSet(t *testing.T) {
	d := &Document{Category: "AI", Tags: []string{" GPU ", "ai", ""}}
	assert.Equal(t, map[string]struct{}{"ai": {}, "gpu": {}}, d.TagSet())

	d = &Document{Category: "Machine-Learning", Tags: []string{"CI/CD", "O'Reilly", "!!"}}
	assert.Equal(t, map[string]struct{}{"machine learning": {}, "ci cd": {}, "oreilly": {}}, d.TagSet())

	p := &ProjectRecord{ProjectURL: "https://example.com/p"}
	assert.Equal(t, "https://example.com/p", p.RepositoryURL())
	p.GitHubLinks = []string{"", "https://github.com/o/p"}
	assert.Equal(t, "https://github.com/o/p", p.RepositoryURL())
}

func TestParseDate(t *testing.T) {
	may1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, ParseDate("2024-05-01").Equal(may1))
	assert.True(t, ParseDate("2024-05-01T10:00:00+02:00").Equal(may1.Add(8*time.Hour)))
	assert.True(t, ParseDate("May 1, 2024").Equal(may1))
	assert.True(t, ParseDate("soon").IsZero())
	assert.True(t, ParseDate("").IsZero())
}

func TestDeriveID(t *testing.T) {
	assert.Equal(t, "edge-ai-patterns", DeriveID("https://next.redhat.com/2024/01/01/edge-ai-patterns/", "ignored"))
	assert.Equal(t, "seans-notes-on-ai", DeriveID("", "Sean's Notes on AI!"))
	assert.Equal(t, "title-fallback", DeriveID("https://example.com/", "Title Fallback"))
}
