// Package answer assembles the structured answer returned to callers from a
// retrieval result: document summaries with excerpts and the projects that
// share their tags.
package answer

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/retrieval"
	"github.com/bull/ask-et/internal/storage"
)

// Status is the terminal state of a query.
type Status string

const (
	StatusOK         Status = "ok"
	StatusNoResults  Status = "no-results"
	StatusEmptyQuery Status = "empty-query"
)

// Fixed messages for the non-ok statuses.
const (
	MessageNoResults  = "No information found for this question. The knowledge base has no posts yet."
	MessageEmptyQuery = "Please enter a question."
)

// DefaultMaxProjects bounds the related projects of an answer.
const DefaultMaxProjects = 5

const (
	excerptSentenceLimit = 250
	excerptHardLimit     = 200
)

// DocumentSummary is one retrieved post as presented to the caller.
type DocumentSummary struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Author   string  `json:"author,omitempty"`
	Date     string  `json:"date,omitempty"`
	URL      string  `json:"url,omitempty"`
	Category string  `json:"category,omitempty"`
	Excerpt  string  `json:"excerpt,omitempty"`
	Score    float64 `json:"score"`
}

// ProjectSummary is a related project. Overlap is the number of its tags
// shared with the answer's documents.
type ProjectSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	GitHubLinks []string `json:"github_links,omitempty"`
	Overlap     int      `json:"overlap"`
}

// Answer is the structured answer for one query. It is always returned,
// even when nothing was found; Status tells the caller how to render it.
type Answer struct {
	Query      string                  `json:"query"`
	Status     Status                  `json:"status"`
	Message    string                  `json:"message,omitempty"`
	Intent     query.Intent            `json:"intent,omitempty"`
	Entity     string                  `json:"entity,omitempty"`
	Ambiguous  bool                    `json:"ambiguous,omitempty"`
	Candidates []string                `json:"candidates,omitempty"`
	Provenance string                  `json:"provenance,omitempty"`
	Stages     []retrieval.StageRecord `json:"stages,omitempty"`
	Documents  []DocumentSummary       `json:"documents"`
	Projects   []ProjectSummary        `json:"projects"`
}

// EmptyQuery is the answer for a blank query. Such queries never reach the
// classifier.
func EmptyQuery(q string) *Answer {
	return &Answer{
		Query:     q,
		Status:    StatusEmptyQuery,
		Message:   MessageEmptyQuery,
		Documents: []DocumentSummary{},
		Projects:  []ProjectSummary{},
	}
}

// Options bounds the size of an answer.
type Options struct {
	// MaxProjects bounds related projects; 0 means DefaultMaxProjects.
	MaxProjects int
	// MaxDocuments bounds documents; 0 means unlimited.
	MaxDocuments int
}

// Assembler merges retrieval results with catalog metadata.
type Assembler struct {
	catalog *storage.Catalog
	opts    Options
}

func NewAssembler(catalog *storage.Catalog, opts Options) *Assembler {
	if opts.MaxProjects <= 0 {
		opts.MaxProjects = DefaultMaxProjects
	}
	return &Assembler{catalog: catalog, opts: opts}
}

// Assemble builds the answer for res.
func (a *Assembler) Assemble(res *retrieval.Result) *Answer {
	c := res.Classification
	ans := &Answer{
		Query:      c.Query,
		Status:     StatusOK,
		Intent:     c.Intent,
		Entity:     c.Entity,
		Ambiguous:  c.Ambiguous,
		Candidates: c.Candidates,
		Provenance: res.Provenance,
		Stages:     res.Stages,
		Documents:  []DocumentSummary{},
		Projects:   []ProjectSummary{},
	}

	seen := make(map[string]struct{}, len(res.Hits))
	var docs []*storage.Document
	for _, h := range res.Hits {
		if h.Document == nil {
			continue
		}
		if _, dup := seen[h.Document.ID]; dup {
			continue
		}
		if a.opts.MaxDocuments > 0 && len(docs) == a.opts.MaxDocuments {
			break
		}
		seen[h.Document.ID] = struct{}{}
		docs = append(docs, h.Document)
		ans.Documents = append(ans.Documents, summarize(h))
	}

	if len(docs) == 0 {
		ans.Status = StatusNoResults
		ans.Message = MessageNoResults
		return ans
	}

	ans.Projects = a.relatedProjects(docs)
	return ans
}

func summarize(h retrieval.Hit) DocumentSummary {
	d := h.Document
	return DocumentSummary{
		ID:       d.ID,
		Title:    d.Title,
		Author:   d.Author,
		Date:     d.Date,
		URL:      d.URL,
		Category: d.Category,
		Excerpt:  Excerpt(d),
		Score:    h.Score,
	}
}

// relatedProjects ranks projects by the number of their tags present among
// the documents' tags, then by name and ID. Projects sharing no tag are left
// out.
func (a *Assembler) relatedProjects(docs []*storage.Document) []ProjectSummary {
	docTags := make(map[string]struct{})
	for _, d := range docs {
		for t := range d.TagSet() {
			docTags[t] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var out []ProjectSummary
	for _, p := range a.catalog.Projects() {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		overlap := 0
		for t := range p.TagSet() {
			if _, ok := docTags[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		out = append(out, ProjectSummary{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Description: p.Description,
			URL:         p.RepositoryURL(),
			GitHubLinks: p.GitHubLinks,
			Overlap:     overlap,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Overlap != out[j].Overlap {
			return out[i].Overlap > out[j].Overlap
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > a.opts.MaxProjects {
		out = out[:a.opts.MaxProjects]
	}
	if out == nil {
		out = []ProjectSummary{}
	}
	return out
}

// Excerpt returns a short excerpt of a post: its summary, or else its
// content, with whitespace collapsed. Long text is cut at the last sentence
// end within 250 characters, or at 200 characters with "..." when there is
// none.
func Excerpt(d *storage.Document) string {
	text := d.Summary
	if strings.TrimSpace(text) == "" {
		text = d.Content
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= excerptSentenceLimit {
		return text
	}

	runes := []rune(text)
	window := string(runes[:excerptSentenceLimit])
	if i := lastSentenceEnd(window); i > 0 {
		return window[:i+1]
	}
	return strings.TrimRight(string(runes[:excerptHardLimit]), " ") + "..."
}

// lastSentenceEnd returns the byte index of the last '.', '!' or '?' in s
// that is followed by a space or ends s, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			if i == len(s)-1 || s[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}
