// Package search is the hybrid query engine: five retrieval signals over
// the chunk index, fused into one ranked list.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/db"
	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/metrics"
)

// Index field names the engine queries and reads back.
const (
	fieldChunkID     = "chunk_id"
	fieldSourceDocID = "source_doc_id"
	fieldChunkText   = "chunk_text"
	fieldChunkTextEn = "chunk_text_en"
	fieldEmbedding   = "embedding"
	fieldPageNumber  = "page_number"
)

var returnFields = []string{fieldChunkID, fieldSourceDocID, fieldChunkText, fieldPageNumber}

// Request is one hybrid query.
type Request struct {
	Term    string
	Boosts  domain.BoostConfig
	Filters []db.TagFilter // optional case_ref / correspondence_type narrowing
}

// Service executes hybrid queries.
type Service struct {
	repo   Repository
	embed  Embedder
	index  string
	logger *zap.Logger
}

// New creates the hybrid query engine over the named chunk index.
func New(repo Repository, embed Embedder, index string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, index: index, logger: logger}
}

// Search runs every signal with a positive weight, min-max normalizes each
// signal's scores, and fuses them by weighted mean. The configuration is
// validated before any query is issued. Disabled signals are omitted
// entirely, not down-weighted.
func (s *Service) Search(ctx context.Context, req *Request) ([]domain.ChunkHit, error) {
	if err := req.Boosts.Validate(); err != nil {
		return nil, err
	}
	term := strings.TrimSpace(req.Term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", domain.ErrConfiguration)
	}

	hits := make(map[string]*domain.ChunkHit)
	bySignal := make(map[domain.Signal]signalScores)

	for _, signal := range domain.Signals {
		if req.Boosts.Weight(signal) <= 0 {
			continue
		}

		start := time.Now()
		scores, err := s.runSignal(ctx, signal, term, req, hits)
		metrics.SearchSignalDuration.WithLabelValues(string(signal)).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%s signal: %w", signal, err)
		}
		bySignal[signal] = scores
	}

	results := fuse(bySignal, req.Boosts, hits)
	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()

	s.logger.Debug("hybrid search",
		zap.String("term", term),
		zap.Int("signals", len(bySignal)),
		zap.Int("results", len(results)))
	return results, nil
}

// runSignal executes one sub-query and collects its raw scores.
func (s *Service) runSignal(
	ctx context.Context, signal domain.Signal, term string, req *Request, hits map[string]*domain.ChunkHit,
) (signalScores, error) {
	if signal == domain.SignalSemantic {
		return s.runSemantic(ctx, term, req, hits)
	}

	queries, ok := s.textQueries(signal, term, req)
	if !ok {
		return signalScores{}, nil
	}

	scores := make(signalScores)
	for _, q := range queries {
		result, err := s.repo.SearchText(ctx, q)
		if err != nil {
			return nil, err
		}
		collect(result, scores, hits)
	}
	return scores, nil
}

// textQueries builds the sub-queries for one text signal. Date terms search
// every literal rendering of the date as an exact phrase; the fuzzy and
// wildcard signals skip them since edit-distance matching of digit strings
// only adds noise.
func (s *Service) textQueries(signal domain.Signal, term string, req *Request) ([]*db.TextQuery, bool) {
	isDate := domain.ClassifyTerm(term) == domain.TermDate

	base := db.TextQuery{
		IndexName:    s.index,
		Filters:      req.Filters,
		TopK:         req.Boosts.K,
		ReturnFields: returnFields,
	}

	switch signal {
	case domain.SignalKeyword, domain.SignalAnalyzed:
		base.Field = fieldChunkText
		if signal == domain.SignalAnalyzed {
			base.Field = fieldChunkTextEn
		}

		if isDate {
			queries := make([]*db.TextQuery, 0)
			for _, variant := range domain.DateVariants(term) {
				q := base
				q.Terms = strings.Fields(variant)
				q.Mode = db.TextPhrase
				queries = append(queries, &q)
			}
			return queries, true
		}

		q := base
		q.Terms = strings.Fields(term)
		q.Mode = db.TextExact
		if domain.ClassifyTerm(term) == domain.TermPhrase {
			q.Mode = db.TextPhrase
		}
		return []*db.TextQuery{&q}, true

	case domain.SignalFuzzy:
		if isDate {
			return nil, false
		}
		q := base
		q.Field = fieldChunkText
		q.Terms = strings.Fields(term)
		q.Mode = db.TextFuzzy
		q.FuzzyDistance = fuzzyDistance(req.Boosts.Fuzziness, term)
		if req.Boosts.MaxExpansions > 0 && req.Boosts.MaxExpansions < q.TopK {
			q.TopK = req.Boosts.MaxExpansions
		}
		return []*db.TextQuery{&q}, true

	case domain.SignalWildcard:
		if isDate {
			return nil, false
		}
		q := base
		q.Field = fieldChunkText
		q.Terms = strings.Fields(term)
		q.Mode = db.TextWildcard
		return []*db.TextQuery{&q}, true
	}

	return nil, false
}

func (s *Service) runSemantic(
	ctx context.Context, term string, req *Request, hits map[string]*domain.ChunkHit,
) (signalScores, error) {
	embResult, err := s.embed.Embed(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("vectorize term: %w", err)
	}

	result, err := s.repo.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.index,
		VectorField:  fieldEmbedding,
		Vector:       embResult.Embedding,
		K:            req.Boosts.K,
		Filters:      req.Filters,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, err
	}

	scores := make(signalScores)
	collect(result, scores, hits)
	return scores, nil
}

// collect folds one sub-query result into the signal's score map and the
// shared hit registry. The best score wins when date variants overlap.
func collect(result *db.SearchResult, scores signalScores, hits map[string]*domain.ChunkHit) {
	if result == nil {
		return
	}
	for _, entry := range result.Entries {
		key := entry.Fields[fieldChunkID]
		if key == "" {
			key = entry.Key
		}
		if prev, seen := scores[key]; !seen || entry.Score > prev {
			scores[key] = entry.Score
		}
		if _, ok := hits[key]; !ok {
			page, _ := strconv.Atoi(entry.Fields[fieldPageNumber])
			hits[key] = &domain.ChunkHit{
				ChunkID:    key,
				DocID:      entry.Fields[fieldSourceDocID],
				PageNumber: page,
				Text:       entry.Fields[fieldChunkText],
			}
		}
	}
}

// fuzzyDistance resolves the configured fuzziness level. "auto" follows
// term length: short terms tolerate one edit, longer terms two.
func fuzzyDistance(level, term string) int {
	switch level {
	case "1":
		return 1
	case "2":
		return 2
	default:
		if len([]rune(term)) < 6 {
			return 1
		}
		return 2
	}
}
