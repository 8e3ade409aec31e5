package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bull/ask-et/internal/storage"
)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string { return r.Owner + "/" + r.Name }

// ParseRepository extracts owner/name from a github.com URL. Links to
// organisations, users or non-GitHub hosts are rejected.
//
// Examples:
//
//	https://github.com/kepler-project/kepler        -> kepler-project/kepler
//	https://github.com/enarx/enarx/tree/main/docs   -> enarx/enarx
//	github.com/ansible/ansible.git                  -> ansible/ansible
func ParseRepository(link string) (Repository, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Repository{}, false
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return Repository{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return Repository{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Repository{}, false
	}
	return Repository{Owner: parts[0], Name: strings.TrimSuffix(parts[1], ".git")}, true
}

// FailedProject records a project whose enrichment failed.
type FailedProject struct {
	ID     string
	Reason string
}

// EnrichResult summarises an enrichment run.
type EnrichResult struct {
	Enriched int
	Skipped  int
	Failed   []FailedProject
}

// Enricher fills project records from their GitHub repository: an empty
// description takes the repository description and the repository topics
// are merged into the tags.
type Enricher struct {
	client *Client
	logger *slog.Logger
}

// NewEnricher creates an enricher backed by the given client.
func NewEnricher(client *Client, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{client: client, logger: logger}
}

// EnrichProjects enriches every project that links a GitHub repository.
// Failures are logged and recorded; the run continues with the next project.
func (e *Enricher) EnrichProjects(ctx context.Context, projects []*storage.ProjectRecord) (*EnrichResult, error) {
	result := &EnrichResult{}
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		changed, err := e.EnrichProject(ctx, p)
		switch {
		case err != nil:
			e.logger.Warn("Failed to enrich project", "project", p.ID, "error", err)
			result.Failed = append(result.Failed, FailedProject{ID: p.ID, Reason: err.Error()})
		case changed:
			result.Enriched++
		default:
			result.Skipped++
		}
	}
	e.logger.Info("Project enrichment complete",
		"enriched", result.Enriched,
		"skipped", result.Skipped,
		"failed", len(result.Failed))
	return result, nil
}

// EnrichProject updates p in place and reports whether anything changed.
// Projects without a GitHub repository link are left alone.
func (e *Enricher) EnrichProject(ctx context.Context, p *storage.ProjectRecord) (bool, error) {
	repo, ok := projectRepository(p)
	if !ok {
		return false, nil
	}

	r, _, err := e.client.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return false, fmt.Errorf("get repository %s: %w", repo, err)
	}

	changed := false
	if strings.TrimSpace(p.Description) == "" && r.GetDescription() != "" {
		p.Description = strings.TrimSpace(r.GetDescription())
		changed = true
	}
	if merged, added := mergeTags(p.Tags, r.Topics); added {
		p.Tags = merged
		changed = true
	}
	e.logger.Debug("Enriched project", "project", p.ID, "repository", repo.String(), "changed", changed)
	return changed, nil
}

func projectRepository(p *storage.ProjectRecord) (Repository, bool) {
	for _, link := range append(append([]string(nil), p.GitHubLinks...), p.ProjectURL) {
		if repo, ok := ParseRepository(link); ok {
			return repo, true
		}
	}
	return Repository{}, false
}

// mergeTags appends lower-cased topics not already present in tags.
func mergeTags(tags, topics []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		seen[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	out := append([]string(nil), tags...)
	added := false
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		added = true
	}
	return out, added
}
