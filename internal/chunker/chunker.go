// Package chunker turns a page's ordered text blocks into bounded-size
// chunks. The builder is deterministic: identical input produces identical
// chunk ids and boundaries, which is what makes re-indexing idempotent.
package chunker

import (
	"strings"

	"github.com/caseworks/casedex/internal/domain"
)

// DefaultMaxChunkSize bounds chunk text length in characters.
const DefaultMaxChunkSize = 80

// Builder groups text blocks into chunks without crossing page boundaries.
type Builder struct {
	maxSize int
}

// NewBuilder creates a Builder with the given maximum chunk size in
// characters. Non-positive values fall back to DefaultMaxChunkSize.
func NewBuilder(maxSize int) *Builder {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	return &Builder{maxSize: maxSize}
}

// Build accumulates blocks in order, closing the current chunk when adding
// the next block would push the joined text past the size limit. A single
// block larger than the limit is emitted as its own oversized chunk rather
// than being truncated. Chunk indices start at 0 per page.
func (b *Builder) Build(docID string, pageNumber int, blocks []domain.TextBlock) []domain.Chunk {
	var chunks []domain.Chunk
	var pending []domain.TextBlock

	flush := func() {
		if len(pending) == 0 {
			return
		}
		chunks = append(chunks, b.assemble(docID, pageNumber, len(chunks), pending))
		pending = nil
	}

	for _, block := range blocks {
		if len(pending) > 0 && b.wouldExceed(pending, block.Text) {
			flush()
		}
		pending = append(pending, block)
	}
	flush()

	return chunks
}

func (b *Builder) wouldExceed(pending []domain.TextBlock, next string) bool {
	joined := len(next)
	for _, p := range pending {
		joined += len(p.Text) + 1
	}
	return joined > b.maxSize
}

func (b *Builder) assemble(docID string, pageNumber, index int, blocks []domain.TextBlock) domain.Chunk {
	texts := make([]string, len(blocks))
	box := blocks[0].Box
	confidence := 0.0

	for i, blk := range blocks {
		texts[i] = blk.Text
		box = box.Union(blk.Box)
		confidence += blk.Confidence
	}

	return domain.Chunk{
		ID:         domain.ChunkID(docID, pageNumber, index),
		DocID:      docID,
		PageNumber: pageNumber,
		Index:      index,
		Text:       strings.Join(texts, " "),
		Type:       textType(blocks),
		Confidence: confidence / float64(len(blocks)),
		Box:        box,
	}
}

// textType is the blocks' common text type, or mixed when they disagree.
func textType(blocks []domain.TextBlock) domain.TextType {
	first := blocks[0].TextType
	for _, blk := range blocks[1:] {
		if blk.TextType != first {
			return domain.TextMixed
		}
	}
	return first
}
