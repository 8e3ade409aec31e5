package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Vocabulary is the controlled vocabulary the classifier and retriever are
// built with. Keys of Technologies and Categories are keywords recognised in
// queries; values are the tag expansion sets they retrieve.
type Vocabulary struct {
	Technologies   map[string][]string `yaml:"technologies" toml:"technologies"`
	Categories     map[string][]string `yaml:"categories" toml:"categories"`
	AuthorPatterns []string            `yaml:"author_patterns" toml:"author_patterns"`
	TitleLeadIns   []string            `yaml:"title_lead_ins" toml:"title_lead_ins"`
}

// DefaultVocabulary returns the built-in keyword tables.
func DefaultVocabulary() *Vocabulary {
	v := &Vocabulary{
		Technologies: map[string][]string{
			"gpu":        {"gpu", "triton", "cuda", "accelerator", "kernel"},
			"triton":     {"triton", "gpu", "kernel", "accelerator"},
			"cuda":       {"cuda", "gpu", "accelerator"},
			"kubernetes": {"kubernetes", "k8s", "openshift", "container"},
			"openshift":  {"openshift", "kubernetes", "openshift ai"},
			"microshift": {"microshift", "edge", "openshift"},
			"kepler":     {"kepler", "sustainability", "energy"},
			"ansible":    {"ansible", "automation"},
			"enarx":      {"enarx", "confidential computing", "security"},
			"keylime":    {"keylime", "attestation", "security"},
			"quantum":    {"quantum", "quantum computing"},
			"blockchain": {"blockchain", "distributed ledger"},
		},
		Categories: map[string][]string{
			"ai":               {"ai", "machine learning", "ml", "llm", "artificial intelligence"},
			"machine learning": {"machine learning", "ml", "ai", "mlops"},
			"sustainability":   {"sustainability", "kepler", "green", "energy", "efficient"},
			"energy":           {"energy", "efficiency", "power", "sustainability", "kepler"},
			"environmental":    {"environmental", "sustainability", "green", "kepler"},
			"automation":       {"automation", "ansible", "workflow", "orchestration"},
			"cybersecurity":    {"security", "cybersecurity", "trust", "enarx", "keylime"},
			"security":         {"security", "cybersecurity", "trust", "confidential computing", "zero trust"},
			"edge":             {"edge", "edge computing", "iot", "microshift"},
			"iot":              {"iot", "edge"},
			"cloud":            {"cloud", "hybrid cloud", "cloud native"},
		},
		AuthorPatterns: []string{
			`\b(?:blogs?|articles?|posts?|written)\s+by\s+(?P<name>.+)$`,
			`^by\s+(?P<name>.+)$`,
			`^what\s+has\s+(?P<name>.+?)\s+written\b`,
			`^(?P<name>.+?)'s\s+(?:blogs?|articles?|posts?)$`,
			`^(?P<name>.+?)\s+(?:articles|blogs|posts|written)$`,
		},
		TitleLeadIns: []string{
			"tell me about the blog post",
			"tell me about the article",
			"tell me about",
			"what is the blog post",
			"the blog post",
			"blog post",
			"the article",
			"article",
			"summarize",
			"summarise",
		},
	}
	v.normalize()
	return v
}

// LoadVocabulary reads a vocabulary file. The format follows the extension:
// .yaml/.yml or .toml. Sections left out of the file keep their defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var v Vocabulary
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &v)
	case ".toml":
		err = toml.Unmarshal(data, &v)
	default:
		return nil, fmt.Errorf("unsupported vocabulary format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	def := DefaultVocabulary()
	if v.Technologies == nil {
		v.Technologies = def.Technologies
	}
	if v.Categories == nil {
		v.Categories = def.Categories
	}
	if v.AuthorPatterns == nil {
		v.AuthorPatterns = def.AuthorPatterns
	}
	if v.TitleLeadIns == nil {
		v.TitleLeadIns = def.TitleLeadIns
	}
	v.normalize()
	return &v, nil
}

// normalize lower-cases keys and expansions, makes every key part of its own
// expansion set and sorts the sets so iteration is deterministic.
func (v *Vocabulary) normalize() {
	v.Technologies = normalizeTable(v.Technologies)
	v.Categories = normalizeTable(v.Categories)
	leadIns := make([]string, 0, len(v.TitleLeadIns))
	for _, l := range v.TitleLeadIns {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			leadIns = append(leadIns, l)
		}
	}
	// longest first so "tell me about the article" wins over "tell me about"
	sort.SliceStable(leadIns, func(i, j int) bool { return len(leadIns[i]) > len(leadIns[j]) })
	v.TitleLeadIns = leadIns
}

func normalizeTable(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for key, tags := range in {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		set := map[string]struct{}{key: {}}
		for _, t := range out[key] {
			set[t] = struct{}{}
		}
		for _, t := range tags {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				set[t] = struct{}{}
			}
		}
		expanded := make([]string, 0, len(set))
		for t := range set {
			expanded = append(expanded, t)
		}
		sort.Strings(expanded)
		out[key] = expanded
	}
	return out
}
