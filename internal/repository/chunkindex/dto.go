package chunkindex

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/caseworks/casedex/internal/domain"
)

// Hash field names shared by the chunk and page indexes.
const (
	fieldChunkID            = "chunk_id"
	fieldSourceDocID        = "source_doc_id"
	fieldChunkText          = "chunk_text"
	fieldChunkTextEn        = "chunk_text_en"
	fieldEmbedding          = "embedding"
	fieldSourceFileName     = "source_file_name"
	fieldPageID             = "page_id"
	fieldCaseRef            = "case_ref"
	fieldCorrespondenceType = "correspondence_type"
	fieldReceivedDate       = "received_date"
	fieldPageCount          = "page_count"
	fieldPageNumber         = "page_number"
	fieldChunkIndex         = "chunk_index"
	fieldChunkType          = "chunk_type"
	fieldConfidence         = "confidence"
	fieldBBoxTop            = "bbox_top"
	fieldBBoxLeft           = "bbox_left"
	fieldBBoxWidth          = "bbox_width"
	fieldBBoxHeight         = "bbox_height"
	fieldPageText           = "page_text"
	fieldImageURI           = "image_uri"
)

// chunkFields flattens a chunk and its document metadata into the hash
// written to the chunk index. The same text feeds both the exact and the
// stemmed field so each signal searches its own analyzer.
func chunkFields(doc *domain.SourceDocument, chunk *domain.Chunk) map[string]string {
	return map[string]string{
		fieldChunkID:            chunk.ID,
		fieldSourceDocID:        doc.ID,
		fieldChunkText:          chunk.Text,
		fieldChunkTextEn:        chunk.Text,
		fieldEmbedding:          encodeVector(chunk.Embedding),
		fieldSourceFileName:     doc.SourceFileName,
		fieldPageID:             domain.PageID(doc.StorageURI, doc.CorrespondenceType, doc.CaseRef, chunk.PageNumber),
		fieldCaseRef:            doc.CaseRef,
		fieldCorrespondenceType: doc.CorrespondenceType,
		fieldReceivedDate:       formatDate(doc.ReceivedDate),
		fieldPageCount:          strconv.Itoa(doc.PageCount),
		fieldPageNumber:         strconv.Itoa(chunk.PageNumber),
		fieldChunkIndex:         strconv.Itoa(chunk.Index),
		fieldChunkType:          string(chunk.Type),
		fieldConfidence:         formatFloat(chunk.Confidence),
		fieldBBoxTop:            formatFloat(chunk.Box.Top),
		fieldBBoxLeft:           formatFloat(chunk.Box.Left),
		fieldBBoxWidth:          formatFloat(chunk.Box.Width),
		fieldBBoxHeight:         formatFloat(chunk.Box.Height),
	}
}

// pageFields flattens a page summary into the hash written to the page
// metadata index. Page text is stored for display, not searched.
func pageFields(doc *domain.SourceDocument, page *domain.Page) map[string]string {
	return map[string]string{
		fieldPageID:             page.ID,
		fieldSourceDocID:        doc.ID,
		fieldPageText:           page.Text,
		fieldSourceFileName:     doc.SourceFileName,
		fieldImageURI:           page.ImageURI,
		fieldCaseRef:            doc.CaseRef,
		fieldCorrespondenceType: doc.CorrespondenceType,
		fieldReceivedDate:       formatDate(doc.ReceivedDate),
		fieldPageCount:          strconv.Itoa(doc.PageCount),
		fieldPageNumber:         strconv.Itoa(page.PageNumber),
	}
}

// encodeVector packs float32s as little-endian bytes, the layout FT.SEARCH
// expects for FLOAT32 vector fields.
func encodeVector(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

// formatDate renders the received date as epoch seconds for the NUMERIC
// index field. The zero time becomes 0.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
