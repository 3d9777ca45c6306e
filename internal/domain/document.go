package domain

import "time"

// KeyPrefix namespaces every Redis key written by this service.
const KeyPrefix = "casedex:"

// Stage is a step of the per-document processing state machine.
type Stage string

const (
	StageReceived Stage = "RECEIVED"
	StageFetched  Stage = "FETCHED"
	StageOCRDone  Stage = "OCR_DONE"
	StageChunked  Stage = "CHUNKED"
	StageEmbedded Stage = "EMBEDDED"
	StageIndexed  Stage = "INDEXED"
	StageFailed   Stage = "FAILED"
)

// SourceDocument identifies one scanned case document in the object store.
// The ID is derived from the natural key (see SourceDocID), never random,
// and the value is immutable after creation.
type SourceDocument struct {
	ID                 string
	StorageURI         string
	SourceFileName     string
	CaseRef            string
	CorrespondenceType string
	ReceivedDate       time.Time
	PageCount          int
}

// Page is one page of a source document after OCR.
type Page struct {
	ID         string
	DocID      string
	PageNumber int // 1-based, contiguous
	Text       string
	ImageURI   string
	Width      float64
	Height     float64
}

// WorkItem is one ingestion trigger: a single source document to process.
type WorkItem struct {
	MessageID          string // queue-assigned; empty before enqueue
	StorageURI         string
	CaseRef            string
	CorrespondenceType string
	ReceivedDate       time.Time
	Deliveries         int64
}

// ProcessResult is the Document Processor's terminal record for one work item.
// The document counts as successfully processed only when every page is.
type ProcessResult struct {
	DocID       string
	Stage       Stage
	PageCount   int
	ChunkCount  int
	FailedPages []*PageError
	Elapsed     time.Duration
}

// Succeeded reports whether every page reached the index.
func (r *ProcessResult) Succeeded() bool {
	return r.Stage == StageIndexed && len(r.FailedPages) == 0
}
