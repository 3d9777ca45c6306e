package chunkindex

import (
	"context"
	"testing"
	"time"

	"github.com/caseworks/casedex/internal/db"
	"github.com/caseworks/casedex/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchListFn  func(
		ctx context.Context, index, query string, offset, limit int, fields []string,
	) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, index, query string) (int, error)
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	delFn         func(ctx context.Context, key string) error
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	if m.searchListFn != nil {
		return m.searchListFn(ctx, index, query, offset, limit, fields)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, query)
	}
	return 0, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, Config{
		EmbeddingDim:    4,
		HNSWM:           16,
		HNSWEFConstruct: 200,
	})
	return repo, ms
}

func testDocument(t *testing.T) *domain.SourceDocument {
	t.Helper()
	uri := "s3://case-docs/case1.pdf"
	return &domain.SourceDocument{
		ID:                 domain.SourceDocID(uri, "care plan", "CR-1042"),
		StorageURI:         uri,
		SourceFileName:     "case1.pdf",
		CaseRef:            "CR-1042",
		CorrespondenceType: "care plan",
		ReceivedDate:       time.Date(2022, 3, 14, 0, 0, 0, 0, time.UTC),
		PageCount:          2,
	}
}

func testChunk(doc *domain.SourceDocument, page, index int, text string) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(doc.ID, page, index),
		DocID:      doc.ID,
		PageNumber: page,
		Index:      index,
		Text:       text,
		Type:       domain.TextPrinted,
		Confidence: 0.95,
		Box:        domain.BoundingBox{Top: 0.1, Left: 0.1, Width: 0.8, Height: 0.1},
		Embedding:  []float32{0.1, 0.2, 0.3, 0.4},
	}
}
