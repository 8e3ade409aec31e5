package query

import (
	"strings"

	"github.com/bull/ask-et/internal/storage"
)

// Normalize is storage.NormalizeTerm: lower-cased, apostrophes dropped,
// other punctuation turned into single spaces.
func Normalize(s string) string {
	return storage.NormalizeTerm(s)
}

// ContainsPhrase reports whether the normalised phrase occurs in the
// normalised text on word boundaries.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Tokens splits normalised text into words.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// quoted returns the substrings of s enclosed in straight or curly double quotes.
func quoted(s string) []string {
	var out []string
	var cur strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '"' || r == '“' || r == '”':
			if in {
				if q := strings.TrimSpace(cur.String()); q != "" {
					out = append(out, q)
				}
				cur.Reset()
			}
			in = !in
		case in:
			cur.WriteRune(r)
		}
	}
	return out
}
