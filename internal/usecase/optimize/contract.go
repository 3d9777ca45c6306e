package optimize

import (
	"context"

	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/usecase/evaluate"
)

// Objective scores one boost configuration. Satisfied by evaluate.Evaluator.
type Objective interface {
	Run(ctx context.Context, cfg domain.BoostConfig) (*evaluate.Report, error)
}
