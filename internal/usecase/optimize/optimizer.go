package optimize

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/usecase/evaluate"
)

// penaltyScore replaces the objective when a trial cannot be evaluated. The
// optimizer always completes its trial budget; a broken trial just scores
// badly instead of aborting the study.
const penaltyScore = -1000.0

// Config holds the two-phase search settings.
type Config struct {
	// Base carries the thresholds that are held constant while the five
	// signal weights are searched.
	Base domain.BoostConfig

	CoarseTrials int
	FineTrials   int
	CoarseStep   float64
	FineStep     float64
	// FineWindow is the half-width of the phase-2 range around the coarse
	// best, clamped to [BoundLow, BoundHigh].
	FineWindow float64
	BoundLow   float64
	BoundHigh  float64

	Seed int64
	// CumulativeLog, when set, receives one evaluation row per trial.
	CumulativeLog string
}

// Result is the outcome of a completed optimization run.
type Result struct {
	StudyName string               `json:"study_name"`
	Best      domain.TrialResult   `json:"best"`
	History   []domain.TrialResult `json:"history"`
}

// Optimizer searches the boost weight space with a TPE sampler, coarse grid
// first, then a fine grid around the best coarse region.
type Optimizer struct {
	eval   Objective
	cfg    Config
	logger *zap.Logger
}

func New(eval Objective, cfg Config, logger *zap.Logger) *Optimizer {
	return &Optimizer{eval: eval, cfg: cfg, logger: logger}
}

// Run executes both phases and returns the best trial plus the full history.
func (o *Optimizer) Run(ctx context.Context) (*Result, error) {
	name := fmt.Sprintf("search_optimization_%s", time.Now().UTC().Format("2006-01-02_15-04-05"))
	study, err := goptuna.CreateStudy(
		name,
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(o.cfg.Seed))),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize),
		goptuna.StudyOptionLogger(nil),
	)
	if err != nil {
		return nil, fmt.Errorf("create study: %w", err)
	}
	study.WithContext(ctx)

	rec := &recorder{}

	o.logger.Info("optimization phase 1 started",
		zap.Int("trials", o.cfg.CoarseTrials), zap.Float64("step", o.cfg.CoarseStep))
	full := func(domain.Signal) (float64, float64) { return o.cfg.BoundLow, o.cfg.BoundHigh }
	if err := study.Optimize(o.objective(ctx, 1, full, o.cfg.CoarseStep, rec), o.cfg.CoarseTrials); err != nil {
		return nil, fmt.Errorf("phase 1: %w", err)
	}

	best := rec.best()
	o.logger.Info("optimization phase 2 started",
		zap.Int("trials", o.cfg.FineTrials), zap.Float64("step", o.cfg.FineStep),
		zap.Float64("best_so_far", best.Objective))
	window := func(s domain.Signal) (float64, float64) {
		center := best.Config.Weight(s)
		return o.clamp(center - o.cfg.FineWindow), o.clamp(center + o.cfg.FineWindow)
	}
	if err := study.Optimize(o.objective(ctx, 2, window, o.cfg.FineStep, rec), o.cfg.FineTrials); err != nil {
		return nil, fmt.Errorf("phase 2: %w", err)
	}

	result := &Result{StudyName: name, Best: rec.best(), History: rec.trials}
	o.logger.Info("optimization complete",
		zap.Int("trials", len(result.History)),
		zap.Int("best_trial", result.Best.Number),
		zap.Float64("best_objective", result.Best.Objective))
	return result, nil
}

// objective builds the goptuna objective for one phase. Evaluation failures
// and degenerate all-zero weight vectors are recorded with the penalty score
// rather than surfaced, so the study always spends its whole budget.
func (o *Optimizer) objective(ctx context.Context, phase int, bounds func(domain.Signal) (float64, float64), step float64, rec *recorder) goptuna.FuncObjective {
	return func(trial goptuna.Trial) (float64, error) {
		weights := make(map[domain.Signal]float64, len(domain.Signals))
		var total float64
		for _, s := range domain.Signals {
			low, high := bounds(s)
			v, err := trial.SuggestDiscreteFloat(string(s)+"_boost", low, high, step)
			if err != nil {
				o.logger.Warn("suggestion failed", zap.String("signal", string(s)), zap.Error(err))
				rec.add(phase, o.cfg.Base, evaluate.Summary{Objective: penaltyScore})
				return penaltyScore, nil
			}
			weights[s] = round4(v)
			total += v
		}

		cfg := o.cfg.Base.WithWeights(weights)
		if total == 0 {
			o.logger.Warn("all weights zero, penalizing trial")
			rec.add(phase, cfg, evaluate.Summary{Objective: penaltyScore})
			return penaltyScore, nil
		}

		report, err := o.eval.Run(ctx, cfg)
		if err != nil {
			o.logger.Warn("trial evaluation failed", zap.Error(err))
			rec.add(phase, cfg, evaluate.Summary{Objective: penaltyScore})
			return penaltyScore, nil
		}

		if o.cfg.CumulativeLog != "" {
			if err := evaluate.AppendLog(o.cfg.CumulativeLog, report); err != nil {
				o.logger.Warn("run log append failed", zap.Error(err))
			}
		}

		tr := rec.add(phase, cfg, report.Summary)
		o.logger.Info("trial complete",
			zap.Int("trial", tr.Number), zap.Int("phase", phase),
			zap.Float64("objective", tr.Objective))
		return report.Summary.Objective, nil
	}
}

func (o *Optimizer) clamp(v float64) float64 {
	return math.Min(math.Max(v, o.cfg.BoundLow), o.cfg.BoundHigh)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// recorder is the append-only trial history shared by both phases.
type recorder struct {
	mu     sync.Mutex
	trials []domain.TrialResult
}

func (r *recorder) add(phase int, cfg domain.BoostConfig, s evaluate.Summary) domain.TrialResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr := domain.TrialResult{
		Number:    len(r.trials),
		Phase:     phase,
		Config:    cfg,
		Precision: s.AcceptablePrecision,
		Recall:    s.AvgRecall,
		AvgChunks: s.AvgChunksReturned,
		Objective: s.Objective,
	}
	r.trials = append(r.trials, tr)
	return tr
}

// best returns the highest-scoring trial so far, ties going to the earlier
// trial.
func (r *recorder) best() domain.TrialResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best domain.TrialResult
	best.Objective = math.Inf(-1)
	for _, tr := range r.trials {
		if tr.Objective > best.Objective {
			best = tr
		}
	}
	return best
}
