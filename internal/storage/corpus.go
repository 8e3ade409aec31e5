package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Corpus file names, used both for the raw ingestion input and inside snapshots.
const (
	BlogsFile    = "blogs.json"
	ProjectsFile = "projects.json"

	RawBlogsFile    = "blog_metadata.json"
	RawProjectsFile = "project_metadata.json"
)

type blogFile struct {
	Blogs []*Document `json:"blogs"`
}

type projectFile struct {
	Projects []*ProjectRecord `json:"projects"`
}

// ReadDocuments decodes a {"blogs": [...]} file.
func ReadDocuments(path string) ([]*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read blog metadata %s: %w", path, err)
	}
	var f blogFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: invalid blog metadata %s: %v", ErrInvalidCorpus, path, err)
	}
	return f.Blogs, nil
}

// ReadProjects decodes a {"projects": [...]} file. A missing file yields no
// projects, since related projects are optional.
func ReadProjects(path string) ([]*ProjectRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read project metadata %s: %w", path, err)
	}
	var f projectFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: invalid project metadata %s: %v", ErrInvalidCorpus, path, err)
	}
	return f.Projects, nil
}

// LoadCatalog reads blogs and projects and builds a validated Catalog.
func LoadCatalog(blogsPath, projectsPath string) (*Catalog, error) {
	docs, err := ReadDocuments(blogsPath)
	if err != nil {
		return nil, err
	}
	projects, err := ReadProjects(projectsPath)
	if err != nil {
		return nil, err
	}
	return NewCatalog(docs, projects)
}

// WriteCatalog writes the catalog as blogs.json and projects.json into dir.
func WriteCatalog(dir string, c *Catalog) error {
	if err := writeJSON(filepath.Join(dir, BlogsFile), blogFile{Blogs: c.Documents()}); err != nil {
		return fmt.Errorf("cannot write blogs: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, ProjectsFile), projectFile{Projects: c.Projects()}); err != nil {
		return fmt.Errorf("cannot write projects: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
