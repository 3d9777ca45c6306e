package evaluate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caseworks/casedex/internal/domain"
)

// WriteCSV writes one run's full results: a configuration block, a summary
// block, then the per-term table. The file is named after the run timestamp
// so successive runs never collide. Returns the path written.
func (r *Report) WriteCSV(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(dir, r.When.Format("2006-01-02_15-04-05")+"_search_results.csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("write results csv: %w", err)
	}
	defer f.Close()

	rows := [][]string{
		{"Search Configuration"},
		configKeys,
		configRow(r.Config),
		{},
		{"Summary Statistics"},
		summaryKeys,
		summaryRow(r.Summary),
		{},
		{"search_term", "term_type", "expected", "returned", "true_positives",
			"precision", "recall", "acceptable_precision", "missing_chunk_ids"},
	}
	for _, out := range r.Outcomes {
		rows = append(rows, []string{
			out.Term,
			string(out.Type),
			strconv.Itoa(out.Expected),
			strconv.Itoa(out.Returned),
			strconv.Itoa(out.TruePositives),
			optional(out.Precision, out.HasPrecision),
			optional(out.Recall, out.HasRecall),
			optional(out.AcceptablePrecision, out.HasAcceptablePrecision),
			strings.Join(out.MissingChunkIDs, ", "),
		})
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write results csv %s: %w", path, err)
	}
	return path, f.Close()
}

// AppendLog appends one summary row to the cumulative run log, creating it
// with a header when absent. The log is append-only so historical runs stay
// comparable.
func AppendLog(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		header := append([]string{"timestamp"}, configKeys...)
		header = append(header, summaryKeys...)
		if err := w.Write(header); err != nil {
			return err
		}
	}
	row := append([]string{r.When.Format("2006-01-02 15:04:05")}, configRow(r.Config)...)
	row = append(row, summaryRow(r.Summary)...)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append run log %s: %w", path, err)
	}
	return f.Close()
}

var (
	configKeys = []string{
		"keyword_boost", "analyzed_boost", "semantic_boost", "fuzzy_boost", "wildcard_boost",
		"k", "score_filter", "fuzziness", "max_expansions", "fuzzy_match_threshold",
	}
	summaryKeys = []string{
		"total_queries", "queries_with_results", "result_rate", "avg_chunks_returned",
		"avg_precision", "avg_recall", "avg_f1_score", "avg_acceptable_precision", "objective",
	}
)

func configRow(cfg domain.BoostConfig) []string {
	return []string{
		num(cfg.KeywordBoost),
		num(cfg.AnalyzedBoost),
		num(cfg.SemanticBoost),
		num(cfg.FuzzyBoost),
		num(cfg.WildcardBoost),
		strconv.Itoa(cfg.K),
		num(cfg.ScoreFilter),
		cfg.Fuzziness,
		strconv.Itoa(cfg.MaxExpansions),
		num(cfg.FuzzyMatchThreshold),
	}
}

func summaryRow(s Summary) []string {
	return []string{
		strconv.Itoa(s.TotalQueries),
		strconv.Itoa(s.QueriesWithResults),
		num(s.ResultRate),
		num(s.AvgChunksReturned),
		num(s.AvgPrecision),
		num(s.AvgRecall),
		num(s.AvgF1),
		num(s.AcceptablePrecision),
		num(s.Objective),
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func optional(v float64, defined bool) string {
	if !defined {
		return ""
	}
	return num(v)
}
