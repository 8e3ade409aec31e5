package storage

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// Catalog is the read-only metadata store: blog posts and related projects
// loaded once from a corpus snapshot.
type Catalog struct {
	docs     []*Document // newest first, then by ID
	byID     map[string]*Document
	projects []*ProjectRecord
	authors  []string
}

// CatalogStats summarises a catalog for validation and status reporting.
type CatalogStats struct {
	Documents          int      `json:"documents"`
	Projects           int      `json:"projects"`
	DocumentsWithText  int      `json:"documents_with_text"`
	ProjectsWithGitHub int      `json:"projects_with_github"`
	DocumentCategories []string `json:"document_categories"`
	ProjectCategories  []string `json:"project_categories"`
	Authors            int      `json:"authors"`
}

// NewCatalog validates docs and projects and builds the lookup tables.
// Documents without an ID get one derived from their URL or title.
// Duplicate IDs and empty titles are rejected with ErrInvalidCorpus.
func NewCatalog(docs []*Document, projects []*ProjectRecord) (*Catalog, error) {
	c := &Catalog{
		docs:     make([]*Document, 0, len(docs)),
		byID:     make(map[string]*Document, len(docs)),
		projects: make([]*ProjectRecord, 0, len(projects)),
	}

	for i, doc := range docs {
		if doc == nil {
			continue
		}
		if strings.TrimSpace(doc.Title) == "" {
			return nil, fmt.Errorf("%w: document %d has an empty title", ErrInvalidCorpus, i)
		}
		if doc.ID == "" {
			doc.ID = DeriveID(doc.URL, doc.Title)
		}
		if _, dup := c.byID[doc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate document id %q", ErrInvalidCorpus, doc.ID)
		}
		doc.PublishedAt = ParseDate(doc.Date)
		c.byID[doc.ID] = doc
		c.docs = append(c.docs, doc)
	}
	sortNewestFirst(c.docs)

	seenProjects := make(map[string]struct{}, len(projects))
	for i, p := range projects {
		if p == nil {
			continue
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: project %d has an empty name", ErrInvalidCorpus, i)
		}
		if p.ID == "" {
			p.ID = DeriveID(p.RepositoryURL(), p.Name)
		}
		if _, dup := seenProjects[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate project id %q", ErrInvalidCorpus, p.ID)
		}
		seenProjects[p.ID] = struct{}{}
		c.projects = append(c.projects, p)
	}

	seenAuthors := make(map[string]struct{})
	for _, doc := range c.docs {
		key := strings.ToLower(strings.TrimSpace(doc.Author))
		if key == "" {
			continue
		}
		if _, ok := seenAuthors[key]; ok {
			continue
		}
		seenAuthors[key] = struct{}{}
		c.authors = append(c.authors, doc.Author)
	}
	sort.Strings(c.authors)

	return c, nil
}

// Len returns the number of documents.
func (c *Catalog) Len() int { return len(c.docs) }

// Document looks up a document by ID.
func (c *Catalog) Document(id string) (*Document, bool) {
	doc, ok := c.byID[id]
	return doc, ok
}

// Lookup is Document returning ErrDocumentNotFound for unknown IDs.
func (c *Catalog) Lookup(id string) (*Document, error) {
	doc, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}

// Documents returns all documents, newest first. The slice must not be modified.
func (c *Catalog) Documents() []*Document { return c.docs }

// Projects returns all projects in load order. The slice must not be modified.
func (c *Catalog) Projects() []*ProjectRecord { return c.projects }

// Authors returns the distinct author names, sorted.
func (c *Catalog) Authors() []string { return c.authors }

// Recent returns up to n documents, newest first.
func (c *Catalog) Recent(n int) []*Document {
	if n <= 0 {
		return nil
	}
	if n > len(c.docs) {
		n = len(c.docs)
	}
	out := make([]*Document, n)
	copy(out, c.docs[:n])
	return out
}

// Stats computes the catalog summary.
func (c *Catalog) Stats() CatalogStats {
	stats := CatalogStats{
		Documents: len(c.docs),
		Projects:  len(c.projects),
		Authors:   len(c.authors),
	}
	docCats := map[string]struct{}{}
	for _, d := range c.docs {
		if strings.TrimSpace(d.Content) != "" || strings.TrimSpace(d.Summary) != "" {
			stats.DocumentsWithText++
		}
		if d.Category != "" {
			docCats[d.Category] = struct{}{}
		}
	}
	projCats := map[string]struct{}{}
	for _, p := range c.projects {
		if len(p.GitHubLinks) > 0 {
			stats.ProjectsWithGitHub++
		}
		if p.Category != "" {
			projCats[p.Category] = struct{}{}
		}
	}
	stats.DocumentCategories = sortedKeys(docCats)
	stats.ProjectCategories = sortedKeys(projCats)
	return stats
}

// SortNewestFirst orders documents by publication date descending, then ID.
func SortNewestFirst(docs []*Document) { sortNewestFirst(docs) }

func sortNewestFirst(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].PublishedAt, docs[j].PublishedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return docs[i].ID < docs[j].ID
	})
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ParseDate parses a publication date in any of the layouts seen in the corpus.
// It returns the zero time when s is empty or unparseable.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// DeriveID builds a stable identifier from the last path segment of rawURL,
// falling back to the slug of title.
func DeriveID(rawURL, title string) string {
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Path != "" {
		if seg := Slugify(path.Base(strings.TrimRight(u.Path, "/"))); seg != "" && seg != "." {
			return seg
		}
	}
	return Slugify(title)
}

// Slugify lower-cases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == '\'' || r == '’':
			// apostrophes join words: "o'brien" -> "obrien"
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
