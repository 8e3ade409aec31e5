// Package query classifies free-text questions into the intent the retriever
// dispatches on.
package query

// Intent is the detected kind of a query.
type Intent string

const (
	IntentAuthor     Intent = "author"
	IntentExactTitle Intent = "exact-title"
	IntentTechnology Intent = "technology"
	IntentCategory   Intent = "category"
	IntentGeneral    Intent = "general"
)

// Classification is the per-request result of classifying a query.
type Classification struct {
	Intent Intent
	// Entity is the extracted author name, vocabulary keyword or matched
	// document title, depending on Intent. Empty for general queries.
	Entity string
	// DocumentID is set for exact-title queries.
	DocumentID string
	// Query is the original query text.
	Query string
	// Ambiguous is set when a rule matched more than one candidate and the
	// query fell through to general. Candidates lists what competed.
	Ambiguous  bool
	Candidates []string
}
