package search

import (
	"sort"

	"github.com/caseworks/casedex/internal/domain"
)

// signalScores maps chunk key to that signal's raw score.
type signalScores map[string]float64

// normalize rescales scores to [0,1] with min-max. A degenerate signal
// (all scores equal) maps everything to 1 so a single strong hit still
// contributes its full weight.
func normalize(scores signalScores) signalScores {
	if len(scores) == 0 {
		return scores
	}

	lo, hi := scores.bounds()
	if hi == lo {
		out := make(signalScores, len(scores))
		for k := range scores {
			out[k] = 1
		}
		return out
	}

	out := make(signalScores, len(scores))
	for k, v := range scores {
		out[k] = (v - lo) / (hi - lo)
	}
	return out
}

func (s signalScores) bounds() (lo, hi float64) {
	first := true
	for _, v := range s {
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// fuse combines per-signal normalized scores by weighted sum: each signal
// contributes its weight times its normalized score, so a chunk topping a
// single enabled signal scores exactly that signal's weight. A chunk missing
// from a signal contributes zero for that signal. Results below the score
// filter are dropped and the list is capped at k. Ties break on chunk key so
// the ranking is deterministic.
func fuse(bySignal map[domain.Signal]signalScores, cfg domain.BoostConfig, hits map[string]*domain.ChunkHit) []domain.ChunkHit {
	var totalWeight float64
	for signal := range bySignal {
		totalWeight += cfg.Weight(signal)
	}
	if totalWeight == 0 {
		return nil
	}

	fused := make(map[string]float64)
	for signal, scores := range bySignal {
		w := cfg.Weight(signal)
		for key, score := range normalize(scores) {
			fused[key] += w * score
		}
	}

	results := make([]domain.ChunkHit, 0, len(fused))
	for key, score := range fused {
		if cfg.ScoreFilter > 0 && score < cfg.ScoreFilter {
			continue
		}
		hit := hits[key]
		if hit == nil {
			continue
		}
		h := *hit
		h.Score = score
		results = append(results, h)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > cfg.K {
		results = results[:cfg.K]
	}
	return results
}
