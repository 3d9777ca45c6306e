package domain

import "strings"

// TermType selects the evaluator's matching strategy for a search term.
type TermType string

const (
	TermSingleWord TermType = "single_word"
	TermPhrase     TermType = "phrase"
	TermDate       TermType = "date"
)

// SearchTermCase is one labelled evaluation fixture: a search term with its
// expected chunk ids. Ground truth is immutable once loaded.
type SearchTermCase struct {
	Term            string
	Type            TermType
	ExpectedChunkID map[string]struct{}
	// AcceptableTerms are associated terms whose presence in a returned
	// chunk also counts toward acceptable-term precision.
	AcceptableTerms []string
}

// ClassifyTerm infers the term type from its shape: date patterns first,
// then word count.
func ClassifyTerm(term string) TermType {
	if ContainsDate(term) {
		return TermDate
	}
	if len(strings.Fields(term)) > 1 {
		return TermPhrase
	}
	return TermSingleWord
}

// TrialResult is one optimizer iteration: the configuration tried and the
// metrics it produced. Immutable once recorded; the optimizer's history is
// an append-only ordered sequence of these.
type TrialResult struct {
	Number    int         `json:"number"`
	Phase     int         `json:"phase"`
	Config    BoostConfig `json:"config"`
	Precision float64     `json:"precision"`
	Recall    float64     `json:"recall"`
	AvgChunks float64     `json:"avg_chunks_returned"`
	Objective float64     `json:"objective"`
}
