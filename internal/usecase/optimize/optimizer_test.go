package optimize

import (
	"context"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/usecase/evaluate"
)

// mockObjective scores a configuration with a deterministic function of its
// weights so runs are reproducible without a live index.
type mockObjective struct {
	mu      sync.Mutex
	calls   int
	err     error
	scoreFn func(cfg domain.BoostConfig) float64
}

func (m *mockObjective) Run(_ context.Context, cfg domain.BoostConfig) (*evaluate.Report, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	score := 1.0
	if m.scoreFn != nil {
		score = m.scoreFn(cfg)
	}
	return &evaluate.Report{
		Config: cfg,
		Summary: evaluate.Summary{
			AvgChunksReturned:   score,
			AcceptablePrecision: 1,
			AvgPrecision:        1,
			AvgRecall:           1,
			Objective:           score,
		},
	}, nil
}

func testConfig() Config {
	return Config{
		Base:         domain.DefaultBoostConfig(),
		CoarseTrials: 6,
		FineTrials:   6,
		CoarseStep:   0.2,
		FineStep:     0.05,
		FineWindow:   0.4,
		BoundLow:     0,
		BoundHigh:    3,
		Seed:         42,
	}
}

func TestRun_CompletesBothPhases(t *testing.T) {
	eval := &mockObjective{scoreFn: func(cfg domain.BoostConfig) float64 {
		return cfg.KeywordBoost
	}}
	opt := New(eval, testConfig(), zap.NewNop())

	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.History) != 12 {
		t.Fatalf("expected 12 trials, got %d", len(result.History))
	}
	for i, tr := range result.History {
		if tr.Number != i {
			t.Errorf("trial %d numbered %d, history must be ordered", i, tr.Number)
		}
		wantPhase := 1
		if i >= 6 {
			wantPhase = 2
		}
		if tr.Phase != wantPhase {
			t.Errorf("trial %d in phase %d, want %d", i, tr.Phase, wantPhase)
		}
	}
}

func TestRun_BestIsHistoryMaximum(t *testing.T) {
	eval := &mockObjective{scoreFn: func(cfg domain.BoostConfig) float64 {
		return cfg.KeywordBoost + cfg.SemanticBoost
	}}
	opt := New(eval, testConfig(), zap.NewNop())

	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	max := math.Inf(-1)
	for _, tr := range result.History {
		if tr.Objective > max {
			max = tr.Objective
		}
	}
	if result.Best.Objective != max {
		t.Errorf("best objective %g does not match history maximum %g", result.Best.Objective, max)
	}
	if err := result.Best.Config.Validate(); err != nil {
		t.Errorf("best config must be valid: %v", err)
	}
}

func TestRun_BestSoFarNeverDecreasesWithinPhase(t *testing.T) {
	eval := &mockObjective{scoreFn: func(cfg domain.BoostConfig) float64 {
		return cfg.FuzzyBoost
	}}
	opt := New(eval, testConfig(), zap.NewNop())

	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	best := math.Inf(-1)
	for _, tr := range result.History {
		if tr.Objective > best {
			best = tr.Objective
		}
		if best < tr.Objective {
			t.Fatalf("best-so-far decreased at trial %d", tr.Number)
		}
	}
}

func TestRun_EvaluationFailuresAreScoredNotFatal(t *testing.T) {
	eval := &mockObjective{err: domain.ErrTransientIO}
	opt := New(eval, testConfig(), zap.NewNop())

	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("a failing evaluator must not abort the run: %v", err)
	}
	if len(result.History) != 12 {
		t.Fatalf("expected full budget of 12 trials, got %d", len(result.History))
	}
	for _, tr := range result.History {
		if tr.Objective != penaltyScore {
			t.Errorf("trial %d scored %g, want penalty %g", tr.Number, tr.Objective, penaltyScore)
		}
	}
}

func TestRun_WeightsStayOnGridAndInBounds(t *testing.T) {
	cfg := testConfig()
	eval := &mockObjective{}
	opt := New(eval, cfg, zap.NewNop())

	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, tr := range result.History {
		for _, s := range domain.Signals {
			w := tr.Config.Weight(s)
			if w < cfg.BoundLow-1e-9 || w > cfg.BoundHigh+1e-9 {
				t.Errorf("trial %d weight %s=%g out of bounds", tr.Number, s, w)
			}
		}
		if tr.Phase == 1 {
			for _, s := range domain.Signals {
				w := tr.Config.Weight(s)
				steps := w / cfg.CoarseStep
				if math.Abs(steps-math.Round(steps)) > 1e-6 {
					t.Errorf("trial %d weight %s=%g not on the 0.2 grid", tr.Number, s, w)
				}
			}
		}
	}
}

func TestRun_TrialsAppendedToCumulativeLog(t *testing.T) {
	cfg := testConfig()
	cfg.CoarseTrials = 2
	cfg.FineTrials = 2
	cfg.CumulativeLog = t.TempDir() + "/optimization_log.csv"

	opt := New(&mockObjective{}, cfg, zap.NewNop())
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines, err := readLines(cfg.CumulativeLog)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	// Header plus one row per evaluated trial. Penalized trials never reach
	// the evaluator and so never log.
	evaluated := 0
	for _, tr := range result.History {
		if tr.Objective != penaltyScore {
			evaluated++
		}
	}
	if len(lines) != evaluated+1 {
		t.Errorf("expected %d log lines, got %d", evaluated+1, len(lines))
	}
}
