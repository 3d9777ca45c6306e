package domain

// BlockType classifies the layout element an OCR block came from.
type BlockType string

const (
	BlockLayoutText          BlockType = "LAYOUT_TEXT"
	BlockLayoutTitle         BlockType = "LAYOUT_TITLE"
	BlockLayoutHeader        BlockType = "LAYOUT_HEADER"
	BlockLayoutSectionHeader BlockType = "LAYOUT_SECTION_HEADER"
	BlockLayoutTable         BlockType = "LAYOUT_TABLE"
	BlockLayoutKeyValue      BlockType = "LAYOUT_KEY_VALUE"
	BlockLayoutList          BlockType = "LAYOUT_LIST"
	BlockLayoutFooter        BlockType = "LAYOUT_FOOTER"
)

// TextType distinguishes printed from handwritten content.
type TextType string

const (
	TextPrinted     TextType = "printed"
	TextHandwriting TextType = "handwriting"
	TextMixed       TextType = "mixed"
)

// BoundingBox is page-relative geometry, all values normalized to [0,1].
type BoundingBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Union returns the smallest box covering both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	left := min(b.Left, other.Left)
	top := min(b.Top, other.Top)
	right := max(b.Left+b.Width, other.Left+other.Width)
	bottom := max(b.Top+b.Height, other.Top+other.Height)
	return BoundingBox{
		Top:    top,
		Left:   left,
		Width:  right - left,
		Height: bottom - top,
	}
}

// TextBlock is one OCR-reported span in reading order. It is the Chunk
// Builder's input unit and is never persisted.
type TextBlock struct {
	Text       string
	Confidence float64 // [0,1]
	BlockType  BlockType
	TextType   TextType
	Box        BoundingBox
}

// Chunk is the bounded-size retrieval unit written to the chunk index.
// Invariants: text length is bounded by the configured maximum unless the
// chunk is a single oversized source block, and a chunk never spans pages.
type Chunk struct {
	ID         string
	DocID      string
	PageNumber int // 1-based
	Index      int // 0-based within the page
	Text       string
	Type       TextType
	Confidence float64 // block-count-weighted average, [0,1]
	Box        BoundingBox
	Embedding  []float32
}

// ChunkHit is one ranked result from the hybrid query engine.
type ChunkHit struct {
	ChunkID    string
	DocID      string
	PageNumber int
	Text       string
	Score      float64
}
