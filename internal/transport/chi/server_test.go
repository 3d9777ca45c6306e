package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/db"
	"github.com/caseworks/casedex/internal/domain"
	healthuc "github.com/caseworks/casedex/internal/usecase/health"
	searchuc "github.com/caseworks/casedex/internal/usecase/search"
	usageuc "github.com/caseworks/casedex/internal/usecase/usage"
)

type stubRepo struct {
	result *db.SearchResult
	err    error
	texts  []*db.TextQuery
}

func (s *stubRepo) SearchKNN(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
	return s.result, s.err
}

func (s *stubRepo) SearchText(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	s.texts = append(s.texts, q)
	return s.result, s.err
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0, 0}}, nil
}

type stubEnqueuer struct {
	item *domain.WorkItem
	id   string
	err  error
}

func (s *stubEnqueuer) Enqueue(_ context.Context, item *domain.WorkItem) (string, error) {
	s.item = item
	return s.id, s.err
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(_ context.Context) error { return s.err }

func newTestServer(repo *stubRepo, queue *stubEnqueuer, dbErr error) *Server {
	searchSvc := searchuc.New(repo, stubEmbedder{}, "casedex:idx:chunks", zap.NewNop())
	healthSvc := healthuc.New(stubPinger{err: dbErr}, nil)
	return NewServer(searchSvc, queue, healthSvc, domain.DefaultBoostConfig(), zap.NewNop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestSearch_ReturnsRankedHits(t *testing.T) {
	repo := &stubRepo{result: &db.SearchResult{
		Total: 1,
		Entries: []db.SearchEntry{{
			Key:   "casedex:chunk:doc1_p2_c0",
			Score: 3.5,
			Fields: map[string]string{
				"chunk_id":      "doc1_p2_c0",
				"source_doc_id": "doc1",
				"chunk_text":    "brain injury assessment",
				"page_number":   "2",
			},
		}},
	}}
	srv := newTestServer(repo, &stubEnqueuer{}, nil)

	rr := postJSON(t, srv.Search, SearchRequest{Term: "brain injury"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %+v", resp)
	}
	hit := resp.Hits[0]
	if hit.ChunkID != "doc1_p2_c0" || hit.PageNumber != 2 || hit.DocID != "doc1" {
		t.Errorf("unexpected hit %+v", hit)
	}
}

func TestSearch_FiltersForwarded(t *testing.T) {
	repo := &stubRepo{result: &db.SearchResult{}}
	srv := newTestServer(repo, &stubEnqueuer{}, nil)

	rr := postJSON(t, srv.Search, SearchRequest{Term: "injury", CaseRef: "CR-1042"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if len(repo.texts) == 0 {
		t.Fatal("expected at least one text query")
	}
	filters := repo.texts[0].Filters
	if len(filters) != 1 || filters[0].Field != "case_ref" || filters[0].Value != "CR-1042" {
		t.Errorf("case_ref filter not forwarded, got %+v", filters)
	}
}

func TestSearch_MissingTerm(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil)
	rr := postJSON(t, srv.Search, SearchRequest{Term: "   "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

func TestSearch_InvalidBoostsRejected(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil)
	bad := domain.DefaultBoostConfig()
	bad.KeywordBoost = -1

	rr := postJSON(t, srv.Search, SearchRequest{Term: "injury", Boosts: &bad})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != codeValidationFailed {
		t.Errorf("code: got %s, want %s", resp.Code, codeValidationFailed)
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil)
	req := httptest.NewRequest("POST", "/", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	srv.Search(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

func TestSearch_TransientUpstream(t *testing.T) {
	repo := &stubRepo{err: domain.ErrTransientIO}
	srv := newTestServer(repo, &stubEnqueuer{}, nil)
	rr := postJSON(t, srv.Search, SearchRequest{Term: "injury"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
}

func TestCreateDocument_Enqueues(t *testing.T) {
	queue := &stubEnqueuer{id: "1692000000000-0"}
	srv := newTestServer(&stubRepo{}, queue, nil)

	rr := postJSON(t, srv.CreateDocument, CreateDocumentRequest{
		StorageURI:         "s3://case-docs/case1.pdf",
		CaseRef:            "CR-1042",
		CorrespondenceType: "care plan",
		ReceivedDate:       "2022-03-14",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}

	var resp CreateDocumentResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.MessageID != "1692000000000-0" {
		t.Errorf("message id: got %s", resp.MessageID)
	}
	want := domain.SourceDocID("s3://case-docs/case1.pdf", "care plan", "CR-1042")
	if resp.SourceDocID != want {
		t.Errorf("source doc id: got %s, want %s", resp.SourceDocID, want)
	}
	if queue.item == nil || queue.item.ReceivedDate.IsZero() {
		t.Fatalf("work item not enqueued with a received date: %+v", queue.item)
	}
}

func TestCreateDocument_MissingStorageURI(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil)
	rr := postJSON(t, srv.CreateDocument, CreateDocumentRequest{CaseRef: "CR-1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

func TestCreateDocument_BadReceivedDate(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil)
	rr := postJSON(t, srv.CreateDocument, CreateDocumentRequest{
		StorageURI:   "s3://case-docs/case1.pdf",
		ReceivedDate: "14/03/2022",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

func TestCreateDocument_QueueFailure(t *testing.T) {
	queue := &stubEnqueuer{err: errors.New("stream down")}
	srv := newTestServer(&stubRepo{}, queue, nil)
	rr := postJSON(t, srv.CreateDocument, CreateDocumentRequest{StorageURI: "s3://b/k.pdf"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil)
	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	srv.Health(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	srv = newTestServer(&stubRepo{}, &stubEnqueuer{}, errors.New("redis down"))
	rr = httptest.NewRecorder()
	srv.Health(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status: got %d, want 503", rr.Code)
	}
}

type stubBudgetReader struct {
	limit, used int64
}

func (s *stubBudgetReader) DailyLimit() int64   { return s.limit }
func (s *stubBudgetReader) MonthlyLimit() int64 { return s.limit }
func (s *stubBudgetReader) DailyUsed() int64    { return s.used }
func (s *stubBudgetReader) MonthlyUsed() int64  { return s.used }

func (s *stubBudgetReader) RemainingDaily() int64   { return s.limit - s.used }
func (s *stubBudgetReader) RemainingMonthly() int64 { return s.limit - s.used }

func TestUsage_ReportsBudget(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil).
		WithUsage(usageuc.New(&stubBudgetReader{limit: 1000, used: 250}))

	req := httptest.NewRequest("GET", "/v1/usage?period=day", http.NoBody)
	rr := httptest.NewRecorder()
	srv.Usage(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var report usageuc.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Period != usageuc.PeriodDay {
		t.Errorf("period: got %s, want day", report.Period)
	}
	if report.TokenLimit != 1000 || report.TokensUsed != 250 || report.Remaining != 750 {
		t.Errorf("unexpected counters: %+v", report)
	}
}

func TestUsage_UnlimitedWithoutBudget(t *testing.T) {
	srv := newTestServer(&stubRepo{}, &stubEnqueuer{}, nil)

	req := httptest.NewRequest("GET", "/v1/usage", http.NoBody)
	rr := httptest.NewRecorder()
	srv.Usage(rr, req)

	var report usageuc.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Remaining != -1 {
		t.Errorf("expected unlimited remaining, got %d", report.Remaining)
	}
}
