package storage

import (
	"strings"
	"time"
	"unicode"
)

// Document is a blog post record in the metadata store.
// ID is unique within a Catalog and Title is never empty.
type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Date     string   `json:"date"` // As published: "2024-05-01" or RFC 3339
	URL      string   `json:"url"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Content  string   `json:"content,omitempty"`

	// PublishedAt is parsed from Date when the catalog is built.
	// Zero when Date is empty or unparseable; such posts sort last.
	PublishedAt time.Time `json:"-"`
}

// TagSet returns the normalised tags of the document, category included.
func (d *Document) TagSet() map[string]struct{} {
	return tagSet(d.Category, d.Tags)
}

// ProjectRecord is a related code project. Projects relate to documents
// through shared tags only.
type ProjectRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	GitHubLinks []string `json:"github_links,omitempty"`
	ProjectURL  string   `json:"project_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// RepositoryURL returns the first GitHub link, or the project URL.
func (p *ProjectRecord) RepositoryURL() string {
	for _, link := range p.GitHubLinks {
		if link != "" {
			return link
		}
	}
	return p.ProjectURL
}

// TagSet returns the normalised tags of the project, category included.
func (p *ProjectRecord) TagSet() map[string]struct{} {
	return tagSet(p.Category, p.Tags)
}

// Chunk is a fragment of a document's text used for embedding.
// Start and End are byte offsets into the text the chunk was cut from.
type Chunk struct {
	ID          string    `json:"id"`
	ParentDocID string    `json:"parent_doc_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Start       int       `json:"start"`
	End         int       `json:"end"`
	HeaderPath  string    `json:"header_path,omitempty"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
}

// ScoredChunk is a chunk returned from a nearest-neighbour search.
// Higher scores are closer.
type ScoredChunk struct {
	Chunk *Chunk
	Score float64
}

// MetricCosine is the only distance metric the indexes are built with.
const MetricCosine = "cosine"

// Vector backends a snapshot can be built for.
const (
	BackendFile   = "file"
	BackendQdrant = "qdrant"
)

func tagSet(category string, tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags)+1)
	if c := NormalizeTerm(category); c != "" {
		set[c] = struct{}{}
	}
	for _, t := range tags {
		if t = NormalizeTerm(t); t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// NormalizeTerm lower-cases s, drops apostrophes, turns every other
// non-alphanumeric rune into a space and collapses whitespace. Tags,
// vocabulary keys and queries are all compared in this form, so the topic
// "machine-learning" and the key "machine learning" are the same term.
//
// "Sustainability at the Edge: Kepler's Story!" -> "sustainability at the edge keplers story"
func NormalizeTerm(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’' || r == '‘':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}
