package evaluate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/usecase/search"
)

// TermOutcome is the evaluation of one search term under one configuration.
type TermOutcome struct {
	Term     string          `json:"term"`
	Type     domain.TermType `json:"type"`
	Expected int             `json:"expected"`
	Returned int             `json:"returned"`

	// TruePositives counts returned chunks accepted as relevant, by expected
	// id, by term presence in the chunk text, or by near-duplicate text
	// against an expected chunk.
	TruePositives int `json:"true_positives"`

	// Precision and Recall follow the correct-rejection convention: a term
	// with no expected chunks and no results scores 1 for both; a term with
	// no expected chunks but results scores precision 0 and an undefined
	// recall. Undefined values are excluded from aggregates.
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	HasPrecision bool    `json:"-"`
	HasRecall    bool    `json:"-"`

	// AcceptablePrecision widens the precision numerator to chunks matching
	// the term or any of its acceptable associated terms. Undefined when no
	// chunks were returned.
	AcceptablePrecision    float64 `json:"acceptable_precision"`
	HasAcceptablePrecision bool    `json:"-"`

	MissingChunkIDs []string `json:"missing_chunk_ids,omitempty"`
}

// Summary aggregates term outcomes across one evaluation run.
type Summary struct {
	TotalQueries        int     `json:"total_queries"`
	QueriesWithResults  int     `json:"queries_with_results"`
	ResultRate          float64 `json:"result_rate"`
	AvgChunksReturned   float64 `json:"avg_chunks_returned"`
	AvgPrecision        float64 `json:"avg_precision"`
	AvgRecall           float64 `json:"avg_recall"`
	AvgF1               float64 `json:"avg_f1_score"`
	AcceptablePrecision float64 `json:"avg_acceptable_precision"`

	// Objective is avg chunks returned times acceptable precision squared.
	// Squaring punishes low-precision configurations harder than low recall.
	Objective float64 `json:"objective"`
}

// Report is the full output of one evaluation run.
type Report struct {
	When     time.Time          `json:"timestamp"`
	Config   domain.BoostConfig `json:"config"`
	Outcomes []TermOutcome      `json:"outcomes"`
	Summary  Summary            `json:"summary"`
}

// Evaluator scores a boost configuration against the labelled term corpus.
type Evaluator struct {
	engine Engine
	chunks ChunkSource
	cases  []domain.SearchTermCase
	logger *zap.Logger
}

func New(engine Engine, chunks ChunkSource, cases []domain.SearchTermCase, logger *zap.Logger) *Evaluator {
	return &Evaluator{engine: engine, chunks: chunks, cases: cases, logger: logger}
}

// Run executes every term case through the query engine and aggregates
// precision and recall. An invalid configuration aborts the run; a failed
// individual search only zeroes that term's row.
func (e *Evaluator) Run(ctx context.Context, cfg domain.BoostConfig) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(e.cases) == 0 {
		return nil, fmt.Errorf("%w: no term cases loaded", domain.ErrConfiguration)
	}

	lookup, err := e.chunks.ChunkTexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunk texts: %w", err)
	}

	report := &Report{When: time.Now().UTC(), Config: cfg}
	for _, tc := range e.cases {
		hits, err := e.engine.Search(ctx, &search.Request{Term: tc.Term, Boosts: cfg})
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				return nil, err
			}
			e.logger.Warn("search failed during evaluation",
				zap.String("term", tc.Term), zap.Error(err))
			hits = nil
		}
		report.Outcomes = append(report.Outcomes, scoreTerm(tc, hits, lookup, cfg.FuzzyMatchThreshold))
	}

	report.Summary = summarize(report.Outcomes)
	e.logger.Info("evaluation run complete",
		zap.Int("terms", report.Summary.TotalQueries),
		zap.Float64("avg_precision", report.Summary.AvgPrecision),
		zap.Float64("avg_recall", report.Summary.AvgRecall),
		zap.Float64("objective", report.Summary.Objective))
	return report, nil
}

// scoreTerm classifies each returned chunk and derives the per-term metrics.
func scoreTerm(tc domain.SearchTermCase, hits []domain.ChunkHit, lookup map[string]string, threshold float64) TermOutcome {
	out := TermOutcome{
		Term:     tc.Term,
		Type:     tc.Type,
		Expected: len(tc.ExpectedChunkID),
		Returned: len(hits),
	}

	foundExpected := make(map[string]struct{})
	var acceptableHits int
	for _, hit := range hits {
		text := hit.Text
		if text == "" {
			text = lookup[hit.ChunkID]
		}

		relevant := false
		if _, ok := tc.ExpectedChunkID[hit.ChunkID]; ok {
			foundExpected[hit.ChunkID] = struct{}{}
			relevant = true
		} else if termMatches(tc.Term, tc.Type, text, threshold) {
			relevant = true
		} else {
			for id := range tc.ExpectedChunkID {
				if textsSimilar(text, lookup[id], threshold) {
					relevant = true
					break
				}
			}
		}
		if relevant {
			out.TruePositives++
		}

		acceptable := relevant
		for _, alt := range tc.AcceptableTerms {
			if acceptable {
				break
			}
			acceptable = termMatches(alt, domain.ClassifyTerm(alt), text, threshold)
		}
		if acceptable {
			acceptableHits++
		}
	}

	switch {
	case out.Expected > 0:
		out.Recall = float64(len(foundExpected)) / float64(out.Expected)
		out.HasRecall = true
		if out.Returned > 0 {
			out.Precision = float64(out.TruePositives) / float64(out.Returned)
		}
		out.HasPrecision = true
		for id := range tc.ExpectedChunkID {
			if _, ok := foundExpected[id]; !ok {
				out.MissingChunkIDs = append(out.MissingChunkIDs, id)
			}
		}
		sort.Strings(out.MissingChunkIDs)
	case out.Returned > 0:
		// Results where none were expected are all false positives.
		out.Precision = 0
		out.HasPrecision = true
	default:
		// Correct rejection.
		out.Precision = 1
		out.Recall = 1
		out.HasPrecision = true
		out.HasRecall = true
	}

	if out.Returned > 0 {
		out.AcceptablePrecision = float64(acceptableHits) / float64(out.Returned)
		out.HasAcceptablePrecision = true
	}
	return out
}

func summarize(outcomes []TermOutcome) Summary {
	s := Summary{TotalQueries: len(outcomes)}
	if s.TotalQueries == 0 {
		return s
	}

	var precisionSum, recallSum, acceptableSum float64
	var precisionN, recallN, acceptableN int
	var chunksFromUsefulQueries int
	for _, out := range outcomes {
		if out.Returned > 0 {
			s.QueriesWithResults++
		}
		if out.HasPrecision {
			precisionSum += out.Precision
			precisionN++
		}
		if out.HasRecall {
			recallSum += out.Recall
			recallN++
		}
		if out.HasAcceptablePrecision {
			acceptableSum += out.AcceptablePrecision
			acceptableN++
		}
		// Zero-precision queries return pure noise; keeping their chunks out
		// of the average stops noisy configurations from looking productive.
		if out.HasAcceptablePrecision && out.AcceptablePrecision > 0 {
			chunksFromUsefulQueries += out.Returned
		}
	}

	s.ResultRate = float64(s.QueriesWithResults) / float64(s.TotalQueries)
	s.AvgChunksReturned = float64(chunksFromUsefulQueries) / float64(s.TotalQueries)
	if precisionN > 0 {
		s.AvgPrecision = precisionSum / float64(precisionN)
	}
	if recallN > 0 {
		s.AvgRecall = recallSum / float64(recallN)
	}
	if s.AvgPrecision+s.AvgRecall > 0 {
		s.AvgF1 = 2 * s.AvgPrecision * s.AvgRecall / (s.AvgPrecision + s.AvgRecall)
	}
	if acceptableN > 0 {
		s.AcceptablePrecision = acceptableSum / float64(acceptableN)
	}
	s.Objective = s.AvgChunksReturned * s.AcceptablePrecision * s.AcceptablePrecision
	return s
}
