package evaluate

import (
	"context"

	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/usecase/search"
)

type mockEngine struct {
	searchFn func(ctx context.Context, req *search.Request) ([]domain.ChunkHit, error)
	requests []*search.Request
}

func (m *mockEngine) Search(ctx context.Context, req *search.Request) ([]domain.ChunkHit, error) {
	m.requests = append(m.requests, req)
	if m.searchFn != nil {
		return m.searchFn(ctx, req)
	}
	return nil, nil
}

type mockChunkSource struct {
	texts map[string]string
	err   error
}

func (m *mockChunkSource) ChunkTexts(_ context.Context) (map[string]string, error) {
	return m.texts, m.err
}

func hit(id, text string, score float64) domain.ChunkHit {
	return domain.ChunkHit{ChunkID: id, Text: text, Score: score}
}

func termCase(term string, expected ...string) domain.SearchTermCase {
	set := make(map[string]struct{}, len(expected))
	for _, id := range expected {
		set[id] = struct{}{}
	}
	return domain.SearchTermCase{
		Term:            term,
		Type:            domain.ClassifyTerm(term),
		ExpectedChunkID: set,
	}
}
