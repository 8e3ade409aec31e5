package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bull/ask-et/internal/config"
	"github.com/bull/ask-et/internal/storage"
)

// Classifier labels queries using an injected vocabulary and the titles and
// authors of one catalog. It holds no mutable state and is safe for
// concurrent use.
type Classifier struct {
	authorPatterns []*regexp.Regexp
	technologies   map[string][]string // normalised key -> normalised tags
	categories     map[string][]string
	techKeys       []string
	catKeys        []string
	leadIns        []string

	titles  map[string]string // normalised title -> document ID
	authors map[string]string // normalised known author -> lower-cased name
}

// NewClassifier compiles the vocabulary's author patterns. Every pattern
// must have a named group "name"; patterns match case-insensitively.
// Vocabulary keys and their tags are normalised the same way queries and
// document tags are, so "ci/cd" is looked up and expanded as "ci cd".
func NewClassifier(vocab *config.Vocabulary, catalog *storage.Catalog) (*Classifier, error) {
	technologies := normalizeTable(vocab.Technologies)
	categories := normalizeTable(vocab.Categories)
	c := &Classifier{
		technologies: technologies,
		categories:   categories,
		techKeys:     phraseKeys(technologies),
		catKeys:      phraseKeys(categories),
		leadIns:      make([]string, 0, len(vocab.TitleLeadIns)),
		titles:       make(map[string]string, catalog.Len()),
		authors:      make(map[string]string),
	}

	for _, p := range vocab.AuthorPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid author pattern %q: %w", p, err)
		}
		if re.SubexpIndex("name") < 0 {
			return nil, fmt.Errorf("author pattern %q has no (?P<name>...) group", p)
		}
		c.authorPatterns = append(c.authorPatterns, re)
	}

	for _, l := range vocab.TitleLeadIns {
		if n := Normalize(l); n != "" {
			c.leadIns = append(c.leadIns, n)
		}
	}

	for _, doc := range catalog.Documents() {
		key := Normalize(doc.Title)
		if _, taken := c.titles[key]; !taken {
			c.titles[key] = doc.ID
		}
	}
	for _, a := range catalog.Authors() {
		if n := Normalize(a); n != "" {
			c.authors[n] = strings.ToLower(strings.Join(strings.Fields(a), " "))
		}
	}
	return c, nil
}

// Classify applies the rules in order; the first rule that matches wins:
// author, exact title, technology/category keyword, general.
// A rule that matches more than one candidate stops classification and the
// query is labelled general with Ambiguous set.
func (c *Classifier) Classify(text string) Classification {
	result := Classification{Intent: IntentGeneral, Query: text}

	if names := c.authorCandidates(text); len(names) > 0 {
		if len(names) == 1 {
			result.Intent = IntentAuthor
			result.Entity = names[0]
			return result
		}
		result.Ambiguous = true
		result.Candidates = names
		return result
	}

	if id, title, ok := c.MatchTitle(text); ok {
		result.Intent = IntentExactTitle
		result.DocumentID = id
		result.Entity = title
		return result
	}

	normalized := Normalize(text)
	for _, level := range []struct {
		intent Intent
		keys   []string
		table  map[string][]string
	}{
		{IntentTechnology, c.techKeys, c.technologies},
		{IntentCategory, c.catKeys, c.categories},
	} {
		found := findPhrases(normalized, level.keys)
		if len(found) == 0 {
			continue
		}
		if key, ok := dominantKey(found, level.table); ok {
			result.Intent = level.intent
			result.Entity = key
			return result
		}
		result.Ambiguous = true
		result.Candidates = found
		return result
	}

	return result
}

// MatchTitle reports whether text names a known title exactly or
// near-exactly: after normalisation, after stripping a lead-in phrase
// such as "tell me about", or inside double quotes.
func (c *Classifier) MatchTitle(text string) (id, normalizedTitle string, ok bool) {
	candidates := []string{Normalize(text)}
	for _, q := range quoted(text) {
		candidates = append(candidates, Normalize(q))
	}
	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		if id, ok := c.titles[cand]; ok {
			return id, cand, true
		}
		for _, lead := range c.leadIns {
			if rest, found := strings.CutPrefix(cand, lead+" "); found {
				if id, ok := c.titles[rest]; ok {
					return id, rest, true
				}
			}
		}
	}
	return "", "", false
}

// StrictTitle reports whether the normalised text is exactly a known title.
func (c *Classifier) StrictTitle(text string) (string, bool) {
	id, ok := c.titles[Normalize(text)]
	return id, ok
}

// Keywords returns every vocabulary key, technology or category, that occurs
// in text.
func (c *Classifier) Keywords(text string) []string {
	normalized := Normalize(text)
	found := findPhrases(normalized, c.techKeys)
	for _, k := range findPhrases(normalized, c.catKeys) {
		if !contains(found, k) {
			found = append(found, k)
		}
	}
	sort.Strings(found)
	return found
}

// Expand returns the tag expansion set of a vocabulary key.
func (c *Classifier) Expand(key string) []string {
	if tags, ok := c.technologies[key]; ok {
		return tags
	}
	return c.categories[key]
}

// authorCandidates returns the names extracted by the first author pattern
// that yields a plausible person. A name joining several people
// ("alice and bob") or spelling out two known authors yields several names.
func (c *Classifier) authorCandidates(text string) []string {
	lowered := strings.ToLower(strings.Join(strings.Fields(text), " "))
	lowered = strings.NewReplacer("’", "'", "‘", "'").Replace(lowered)
	lowered = strings.TrimRight(lowered, "?!. ")

	for _, re := range c.authorPatterns {
		m := re.FindStringSubmatch(lowered)
		if m == nil {
			continue
		}
		name := strings.Trim(m[re.SubexpIndex("name")], " \t\"'“”,.;:?!")
		name = strings.TrimSuffix(name, "'s")
		if name == "" || c.isVocabularyPhrase(name) {
			continue
		}
		var names []string
		for _, n := range c.splitPeople(name) {
			if !containsEquivalent(names, n) {
				names = append(names, n)
			}
		}
		return names
	}
	return nil
}

var peopleSeparator = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)

// splitPeople breaks "alice and bob" style names apart and resolves a
// captured phrase to the known authors it contains. "show me brian profitt"
// and "brian profitt about kepler" both resolve to "brian profitt".
func (c *Classifier) splitPeople(name string) []string {
	norm := Normalize(name)
	var known []string
	for n, a := range c.authors {
		if ContainsPhrase(norm, n) {
			known = append(known, a)
		}
	}
	sort.Strings(known)
	if len(known) > 1 {
		return known
	}

	parts := peopleSeparator.Split(name, -1)
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(known) == 1 && len(out) <= 1 {
		return known
	}
	if len(out) == 0 {
		return []string{name}
	}
	return out
}

// genericWords never name a person on their own: "latest articles",
// "all blogs written".
var genericWords = map[string]struct{}{
	"a": {}, "all": {}, "any": {}, "every": {}, "latest": {}, "my": {},
	"new": {}, "newest": {}, "other": {}, "recent": {}, "some": {},
	"the": {}, "these": {}, "this": {}, "those": {}, "your": {},
}

// isVocabularyPhrase rejects "kubernetes articles" style matches of the
// looser author patterns: a name containing a vocabulary keyword that is not
// also a known author is a topic, not a person.
func (c *Classifier) isVocabularyPhrase(name string) bool {
	norm := Normalize(name)
	for a := range c.authors {
		if ContainsPhrase(a, norm) || ContainsPhrase(norm, a) {
			return false
		}
	}
	generic := true
	for _, w := range strings.Fields(norm) {
		if _, ok := genericWords[w]; !ok {
			generic = false
			break
		}
	}
	if generic {
		return true
	}
	return len(findPhrases(norm, c.techKeys)) > 0 || len(findPhrases(norm, c.catKeys)) > 0
}

// dominantKey picks the key when all found keys are synonyms of it, that is
// its expansion set contains every other found key. Otherwise the keys
// compete and there is no winner.
func dominantKey(found []string, table map[string][]string) (string, bool) {
	if len(found) == 1 {
		return found[0], true
	}
	for _, key := range found {
		covers := true
		for _, other := range found {
			if other != key && !contains(table[key], other) {
				covers = false
				break
			}
		}
		if covers {
			return key, true
		}
	}
	return "", false
}

// findPhrases returns the keys occurring in text, dropping keys that only
// occur as part of a longer matched key ("learning" inside "machine learning").
// keys must be sorted longest first.
func findPhrases(text string, keys []string) []string {
	var found []string
	for _, k := range keys {
		if !ContainsPhrase(text, k) {
			continue
		}
		shadowed := false
		for _, longer := range found {
			if ContainsPhrase(longer, k) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			found = append(found, k)
		}
	}
	sort.Strings(found)
	return found
}

// normalizeTable rekeys table by normalised key. Keys that collapse to the
// same term are merged. Each expansion set is normalised, deduplicated and
// sorted.
func normalizeTable(table map[string][]string) map[string][]string {
	out := make(map[string][]string, len(table))
	for k, tags := range table {
		key := Normalize(k)
		if key == "" {
			continue
		}
		set := out[key]
		for _, t := range tags {
			if n := Normalize(t); n != "" && !contains(set, n) {
				set = append(set, n)
			}
		}
		out[key] = set
	}
	for _, set := range out {
		sort.Strings(set)
	}
	return out
}

// phraseKeys returns the keys of a normalised table, longest first then
// alphabetical.
func phraseKeys(table map[string][]string) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsEquivalent(list []string, s string) bool {
	n := Normalize(s)
	for _, v := range list {
		if Normalize(v) == n {
			return true
		}
	}
	return false
}

// Topics returns the vocabulary keys that occur in the title or tags of at
// least one document, sorted. It is the list of subjects the corpus can
// answer keyword questions about.
func (c *Classifier) Topics(docs []*storage.Document) []string {
	found := make(map[string]struct{})
	for _, doc := range docs {
		text := Normalize(doc.Title)
		for tag := range doc.TagSet() {
			text += " " + Normalize(tag)
		}
		for _, keys := range [][]string{c.techKeys, c.catKeys} {
			for _, k := range keys {
				if ContainsPhrase(text, k) {
					found[k] = struct{}{}
				}
			}
		}
	}
	topics := make([]string, 0, len(found))
	for k := range found {
		topics = append(topics, k)
	}
	sort.Strings(topics)
	return topics
}
