package db

// TextMode selects how query terms are matched against a TEXT field.
type TextMode int

const (
	// TextExact matches whole terms (implicit AND between tokens).
	TextExact TextMode = iota
	// TextPhrase matches tokens as an exact adjacent phrase.
	TextPhrase
	// TextFuzzy matches terms within a Levenshtein distance.
	TextFuzzy
	// TextWildcard matches terms as infix wildcards.
	TextWildcard
)

// TagFilter restricts a search to documents whose TAG field holds the value.
type TagFilter struct {
	Field string
	Value string
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Vector       []float32
	K            int
	Filters      []TagFilter
	ReturnFields []string
}

// TextQuery is the input for scored text search over a single TEXT field.
type TextQuery struct {
	IndexName     string
	Field         string
	Terms         []string
	Mode          TextMode
	FuzzyDistance int // Levenshtein distance for TextFuzzy, 1..3
	Filters       []TagFilter
	TopK          int
	ReturnFields  []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
