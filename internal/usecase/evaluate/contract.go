package evaluate

import (
	"context"

	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/usecase/search"
)

// Engine runs one hybrid query per evaluated term.
type Engine interface {
	Search(ctx context.Context, req *search.Request) ([]domain.ChunkHit, error)
}

// ChunkSource exposes the indexed chunk texts, keyed by chunk id. The
// evaluator uses it for term-presence checking; ground-truth regeneration
// uses it to find the chunks a term should retrieve.
type ChunkSource interface {
	ChunkTexts(ctx context.Context) (map[string]string, error)
}
