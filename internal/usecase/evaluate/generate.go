package evaluate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
)

// GenerateTermCases regenerates the expected-chunk ground truth from live
// index contents: for every fixture term with an empty expected column, the
// chunk ids whose text strictly contains the term are filled in. Manual
// entries are never overwritten, so curated ground truth survives a
// rechunking of the corpus.
func GenerateTermCases(ctx context.Context, chunks ChunkSource, path string, logger *zap.Logger) error {
	rows, err := loadRows(path)
	if err != nil {
		return err
	}

	lookup, err := chunks.ChunkTexts(ctx)
	if err != nil {
		return fmt.Errorf("load chunk texts: %w", err)
	}

	for i, row := range rows {
		if row.Term == "" || row.Expected != "" {
			continue
		}
		ids := matchingChunks(row.Term, lookup)
		rows[i].Expected = strings.Join(ids, ", ")
		logger.Info("generated expected chunks",
			zap.String("term", row.Term), zap.Int("chunks", len(ids)))
	}

	return saveRows(path, rows)
}

// matchingChunks finds the chunks containing the term, using strict
// containment only. Ground truth must not inherit the fuzziness it is meant
// to measure.
func matchingChunks(term string, lookup map[string]string) []string {
	termType := domain.ClassifyTerm(term)
	var ids []string
	for id, text := range lookup {
		if termMatches(term, termType, text, 0) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
