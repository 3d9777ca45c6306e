package sdk

// Boosts holds the ranking weights and thresholds for one search. When
// present on a request it replaces the server's configured defaults
// wholesale.
type Boosts struct {
	KeywordBoost  float64 `json:"keyword_boost"`
	AnalyzedBoost float64 `json:"analyzed_boost"`
	SemanticBoost float64 `json:"semantic_boost"`
	FuzzyBoost    float64 `json:"fuzzy_boost"`
	WildcardBoost float64 `json:"wildcard_boost"`

	K                   int     `json:"k"`
	ScoreFilter         float64 `json:"score_filter"`
	Fuzziness           string  `json:"fuzziness"`
	MaxExpansions       int     `json:"max_expansions"`
	FuzzyMatchThreshold float64 `json:"fuzzy_match_threshold"`
}

// SearchRequest is one hybrid search.
type SearchRequest struct {
	Term               string  `json:"term"`
	Boosts             *Boosts `json:"boosts,omitempty"`
	CaseRef            string  `json:"case_ref,omitempty"`
	CorrespondenceType string  `json:"correspondence_type,omitempty"`
}

// SearchHit is one ranked chunk.
type SearchHit struct {
	ChunkID     string  `json:"chunk_id"`
	SourceDocID string  `json:"source_doc_id"`
	PageNumber  int     `json:"page_number"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

// Document describes a stored case document to ingest.
type Document struct {
	StorageURI         string `json:"storage_uri"`
	CaseRef            string `json:"case_ref,omitempty"`
	CorrespondenceType string `json:"correspondence_type,omitempty"`
	// ReceivedDate is RFC 3339 or YYYY-MM-DD.
	ReceivedDate string `json:"received_date,omitempty"`
}

// IngestReceipt acknowledges an enqueued document.
type IngestReceipt struct {
	MessageID   string `json:"message_id"`
	SourceDocID string `json:"source_doc_id"`
}

// Health reports server component status.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// UsageReport describes embedding token spend within one budget period.
// TokenLimit 0 means unlimited; Remaining is -1 in that case.
type UsageReport struct {
	Period      string `json:"period"`
	PeriodStart int64  `json:"period_start_ms"`
	PeriodEnd   int64  `json:"period_end_ms"`
	TokenLimit  int64  `json:"token_limit"`
	TokensUsed  int64  `json:"tokens_used"`
	Remaining   int64  `json:"tokens_remaining"`
	Exhausted   bool   `json:"exhausted"`
	ResetsAt    int64  `json:"resets_at_ms"`
}
