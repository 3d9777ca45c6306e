package chi

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/caseworks/casedex/internal/domain"
	healthuc "github.com/caseworks/casedex/internal/usecase/health"
)

// Enqueuer accepts documents for asynchronous ingestion.
type Enqueuer interface {
	Enqueue(ctx context.Context, item *domain.WorkItem) (string, error)
}

type errorCode string

const (
	codeBadRequest             errorCode = "bad_request"
	codeValidationFailed       errorCode = "validation_failed"
	codeEmbeddingProviderError errorCode = "embedding_provider_error"
	codeUpstreamUnavailable    errorCode = "upstream_unavailable"
	codeIndexNotReady          errorCode = "index_not_ready"
	codeInternalError          errorCode = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the POST /v1/search body. Boosts, when present, replace
// the server's configured defaults wholesale.
type SearchRequest struct {
	Term               string              `json:"term"`
	Boosts             *domain.BoostConfig `json:"boosts,omitempty"`
	CaseRef            string              `json:"case_ref,omitempty"`
	CorrespondenceType string              `json:"correspondence_type,omitempty"`
}

// SearchHit is one ranked chunk in a search response.
type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocID      string  `json:"source_doc_id"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SearchResponse is the POST /v1/search reply.
type SearchResponse struct {
	Hits  []SearchHit `json:"hits"`
	Total int         `json:"total"`
}

func searchResponseFromHits(hits []domain.ChunkHit) SearchResponse {
	out := SearchResponse{Hits: make([]SearchHit, len(hits)), Total: len(hits)}
	for i, h := range hits {
		out.Hits[i] = SearchHit{
			ChunkID:    h.ChunkID,
			DocID:      h.DocID,
			PageNumber: h.PageNumber,
			Text:       h.Text,
			Score:      h.Score,
		}
	}
	return out
}

// CreateDocumentRequest is the POST /v1/documents body.
type CreateDocumentRequest struct {
	StorageURI         string `json:"storage_uri"`
	CaseRef            string `json:"case_ref,omitempty"`
	CorrespondenceType string `json:"correspondence_type,omitempty"`
	// ReceivedDate is RFC 3339 or YYYY-MM-DD.
	ReceivedDate string `json:"received_date,omitempty"`
}

// CreateDocumentResponse acknowledges an enqueued document.
type CreateDocumentResponse struct {
	MessageID   string `json:"message_id"`
	SourceDocID string `json:"source_doc_id"`
}

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthResponseFromReport(r healthuc.Report) HealthResponse {
	out := HealthResponse{Status: string(r.Status)}
	if len(r.Checks) > 0 {
		out.Checks = make(map[string]string, len(r.Checks))
		for name, res := range r.Checks {
			out.Checks[name] = string(res)
		}
	}
	return out
}

// Register mounts every route on the router. Middleware is attached by the
// caller so binaries can differ in what they wrap.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/search", s.Search)
	r.Post("/v1/documents", s.CreateDocument)
	r.Get("/v1/usage", s.Usage)
	r.Get("/healthz", s.Health)
	r.Get("/metrics", s.Metrics)
}
