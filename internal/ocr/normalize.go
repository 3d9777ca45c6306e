package ocr

import (
	"fmt"
	"strings"

	"github.com/caseworks/casedex/internal/domain"
)

var blockTypes = map[string]domain.BlockType{
	"LAYOUT_TEXT":           domain.BlockLayoutText,
	"LAYOUT_TITLE":          domain.BlockLayoutTitle,
	"LAYOUT_HEADER":         domain.BlockLayoutHeader,
	"LAYOUT_SECTION_HEADER": domain.BlockLayoutSectionHeader,
	"LAYOUT_TABLE":          domain.BlockLayoutTable,
	"LAYOUT_KEY_VALUE":      domain.BlockLayoutKeyValue,
	"LAYOUT_LIST":           domain.BlockLayoutList,
	"LAYOUT_FOOTER":         domain.BlockLayoutFooter,
}

// Normalize converts one raw page into ordered text blocks. Reported order
// is preserved, confidence is scaled from percent to [0,1], and geometry is
// validated. An empty page yields an empty slice. A block missing text or
// geometry makes the whole page malformed.
func Normalize(raw *RawPage) ([]domain.TextBlock, error) {
	if raw == nil || len(raw.Blocks) == 0 {
		return []domain.TextBlock{}, nil
	}

	blocks := make([]domain.TextBlock, 0, len(raw.Blocks))

	for i, rb := range raw.Blocks {
		text := strings.TrimSpace(rb.Text)
		if text == "" {
			return nil, fmt.Errorf("page %d block %d: missing text: %w",
				raw.PageNumber, i, domain.ErrMalformedOCR)
		}

		box, err := normalizeGeometry(rb.Geometry)
		if err != nil {
			return nil, fmt.Errorf("page %d block %d: %w", raw.PageNumber, i, err)
		}

		if rb.Confidence < 0 || rb.Confidence > 100 {
			return nil, fmt.Errorf("page %d block %d: confidence %g out of range: %w",
				raw.PageNumber, i, rb.Confidence, domain.ErrMalformedOCR)
		}

		blocks = append(blocks, domain.TextBlock{
			Text:       text,
			Confidence: rb.Confidence / 100,
			BlockType:  normalizeBlockType(rb.BlockType),
			TextType:   normalizeTextType(rb.TextType),
			Box:        box,
		})
	}

	return blocks, nil
}

func normalizeGeometry(g *RawGeometry) (domain.BoundingBox, error) {
	if g == nil || g.Top == nil || g.Left == nil || g.Width == nil || g.Height == nil {
		return domain.BoundingBox{}, fmt.Errorf("missing geometry: %w", domain.ErrMalformedOCR)
	}

	box := domain.BoundingBox{
		Top:    *g.Top,
		Left:   *g.Left,
		Width:  *g.Width,
		Height: *g.Height,
	}

	if box.Top < 0 || box.Top > 1 || box.Left < 0 || box.Left > 1 ||
		box.Width < 0 || box.Width > 1 || box.Height < 0 || box.Height > 1 {
		return domain.BoundingBox{}, fmt.Errorf("geometry out of [0,1]: %w", domain.ErrMalformedOCR)
	}

	return box, nil
}

func normalizeBlockType(s string) domain.BlockType {
	if bt, ok := blockTypes[strings.ToUpper(s)]; ok {
		return bt
	}
	return domain.BlockLayoutText
}

func normalizeTextType(s string) domain.TextType {
	switch strings.ToLower(s) {
	case "handwriting":
		return domain.TextHandwriting
	case "mixed":
		return domain.TextMixed
	default:
		return domain.TextPrinted
	}
}
