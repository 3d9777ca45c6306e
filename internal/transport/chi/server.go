package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/db"
	"github.com/caseworks/casedex/internal/domain"
	healthuc "github.com/caseworks/casedex/internal/usecase/health"
	searchuc "github.com/caseworks/casedex/internal/usecase/search"
	usageuc "github.com/caseworks/casedex/internal/usecase/usage"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search and ingestion pipeline over HTTP.
type Server struct {
	search        *searchuc.Service
	queue         Enqueuer
	health        *healthuc.Service
	usage         *usageuc.Service
	boosts        domain.BoostConfig
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. boosts supplies the ranking defaults
// applied when a search request carries no overrides.
func NewServer(
	search *searchuc.Service,
	queue Enqueuer,
	health *healthuc.Service,
	boosts domain.BoostConfig,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search: search,
		queue:  queue,
		health: health,
		usage:  usageuc.New(nil),
		boosts: boosts,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrConfiguration, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrTransientIO, http.StatusServiceUnavailable, codeUpstreamUnavailable),
		sentinelHandler(db.ErrIndexNotFound, http.StatusServiceUnavailable, codeIndexNotReady),
	}
	return s
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Term) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Search term is required")
		return
	}

	boosts := s.boosts
	if req.Boosts != nil {
		boosts = *req.Boosts
	}

	var filters []db.TagFilter
	if req.CaseRef != "" {
		filters = append(filters, db.TagFilter{Field: "case_ref", Value: req.CaseRef})
	}
	if req.CorrespondenceType != "" {
		filters = append(filters, db.TagFilter{Field: "correspondence_type", Value: req.CorrespondenceType})
	}

	hits, err := s.search.Search(r.Context(), &searchuc.Request{
		Term:    req.Term,
		Boosts:  boosts,
		Filters: filters,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseFromHits(hits))
}

// CreateDocument handles POST /v1/documents: it enqueues one document for
// ingestion and replies before processing starts.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.StorageURI == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "storage_uri is required")
		return
	}
	received, err := parseReceivedDate(req.ReceivedDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	item := &domain.WorkItem{
		StorageURI:         req.StorageURI,
		CaseRef:            req.CaseRef,
		CorrespondenceType: req.CorrespondenceType,
		ReceivedDate:       received,
	}
	messageID, err := s.queue.Enqueue(r.Context(), item)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CreateDocumentResponse{
		MessageID:   messageID,
		SourceDocID: domain.SourceDocID(req.StorageURI, req.CorrespondenceType, req.CaseRef),
	})
}

// WithUsage attaches a budget-backed usage service. Without it, usage
// reports come back unlimited.
func (s *Server) WithUsage(usage *usageuc.Service) *Server {
	s.usage = usage
	return s
}

// Usage handles GET /v1/usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = usageuc.PeriodDay
	}
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context(), period))
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponseFromReport(report))
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func parseReceivedDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("received_date must be RFC 3339 or YYYY-MM-DD")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrConfiguration,
		domain.ErrEmbedding,
		domain.ErrTransientIO,
		db.ErrIndexNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
