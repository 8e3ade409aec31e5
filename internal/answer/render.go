package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/retrieval"
)

// Render formats an answer as compact markdown: a headline, the numbered
// posts with "@author • date • category" and a short summary, then the
// numbered related projects with their GitHub links.
func Render(a *Answer) string {
	var b strings.Builder

	if a.Status != StatusOK {
		b.WriteString(a.Message)
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(headline(a))
	b.WriteString("\n\n")

	b.WriteString("**Related Blogs:**\n")
	for i, d := range a.Documents {
		var meta []string
		if d.Author != "" {
			meta = append(meta, "@"+d.Author)
		}
		if d.Date != "" {
			meta = append(meta, d.Date)
		}
		if d.Category != "" {
			meta = append(meta, d.Category)
		}
		if len(meta) > 0 {
			fmt.Fprintf(&b, "%d. **%s** - %s\n", i+1, d.Title, strings.Join(meta, " • "))
		} else {
			fmt.Fprintf(&b, "%d. **%s**\n", i+1, d.Title)
		}
		if s := truncate(d.Excerpt, 100); s != "" {
			fmt.Fprintf(&b, "   %s\n", s)
		}
		if d.URL != "" {
			fmt.Fprintf(&b, "   %s\n", d.URL)
		}
		b.WriteString("\n")
	}

	if len(a.Projects) > 0 {
		b.WriteString("**Related Projects:**\n")
		for i, p := range a.Projects {
			category := p.Category
			if category == "" {
				category = "General"
			}
			fmt.Fprintf(&b, "%d. **%s** - %s\n", i+1, p.Name, category)
			if s := truncate(p.Description, 80); s != "" {
				fmt.Fprintf(&b, "   %s\n", s)
			}
			if len(p.GitHubLinks) > 0 {
				fmt.Fprintf(&b, "   GitHub: %s\n", strings.Join(p.GitHubLinks, ", "))
			} else if p.URL != "" {
				fmt.Fprintf(&b, "   %s\n", p.URL)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func headline(a *Answer) string {
	n := len(a.Documents)
	noun := "posts"
	if n == 1 {
		noun = "post"
	}
	switch {
	case a.Intent == query.IntentAuthor && a.Provenance == retrieval.ProvenancePrimary:
		return fmt.Sprintf("Found %d %s by %s.", n, noun, a.Entity)
	case (a.Intent == query.IntentTechnology || a.Intent == query.IntentCategory) && a.Provenance == retrieval.ProvenancePrimary:
		return fmt.Sprintf("Found %d %s about %s.", n, noun, a.Entity)
	case a.Provenance == retrieval.ProvenanceFinalFallback:
		return fmt.Sprintf("Nothing matched directly; here are the %d most recent %s.", n, noun)
	default:
		return fmt.Sprintf("Found %d %s.", n, noun)
	}
}

// truncate shortens s to at most limit runes, ending with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}
