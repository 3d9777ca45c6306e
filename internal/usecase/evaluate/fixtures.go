package evaluate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caseworks/casedex/internal/domain"
)

// Fixture CSV columns. Unknown columns are preserved on rewrite.
const (
	colSearchTerm      = "search_term"
	colExpectedChunkID = "expected_chunk_id"
	colAcceptableTerms = "acceptable_terms"
)

// fixtureRow is one raw line of the search terms fixture. Expected and
// acceptable values are comma-separated lists within a single CSV field.
type fixtureRow struct {
	Term       string
	Expected   string
	Acceptable string
}

// LoadTermCases reads the labelled search terms fixture. Rows with an empty
// term are skipped; the term type is inferred from the term's shape.
func LoadTermCases(path string) ([]domain.SearchTermCase, error) {
	rows, err := loadRows(path)
	if err != nil {
		return nil, err
	}

	cases := make([]domain.SearchTermCase, 0, len(rows))
	for _, row := range rows {
		if row.Term == "" {
			continue
		}
		expected := make(map[string]struct{})
		for _, id := range splitList(row.Expected) {
			expected[id] = struct{}{}
		}
		cases = append(cases, domain.SearchTermCase{
			Term:            row.Term,
			Type:            domain.ClassifyTerm(row.Term),
			ExpectedChunkID: expected,
			AcceptableTerms: splitList(row.Acceptable),
		})
	}
	return cases, nil
}

func loadRows(path string) ([]fixtureRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open term fixture: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read term fixture %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("term fixture %s is empty", path)
	}

	idx := columnIndex(records[0])
	termCol, ok := idx[colSearchTerm]
	if !ok {
		return nil, fmt.Errorf("term fixture %s has no %q column", path, colSearchTerm)
	}

	rows := make([]fixtureRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, fixtureRow{
			Term:       strings.TrimSpace(field(rec, termCol)),
			Expected:   strings.TrimSpace(field(rec, col(idx, colExpectedChunkID))),
			Acceptable: strings.TrimSpace(field(rec, col(idx, colAcceptableTerms))),
		})
	}
	return rows, nil
}

func col(idx map[string]int, name string) int {
	if i, ok := idx[name]; ok {
		return i
	}
	return -1
}

func saveRows(path string, rows []fixtureRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write term fixture: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{colSearchTerm, colExpectedChunkID, colAcceptableTerms}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write([]string{row.Term, row.Expected, row.Acceptable}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write term fixture %s: %w", path, err)
	}
	return f.Close()
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return idx
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
