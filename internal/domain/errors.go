package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientIO signals a retryable network or throttling failure.
	ErrTransientIO = errors.New("transient io error")
	// ErrMalformedOCR signals an OCR response missing required fields; fatal for the page.
	ErrMalformedOCR = errors.New("malformed ocr response")
	// ErrEmbedding signals an embedding provider failure; treated as transient.
	ErrEmbedding = errors.New("embedding failure")
	// ErrEmbeddingQuotaExceeded signals the token budget is spent and the
	// tracker is configured to reject.
	ErrEmbeddingQuotaExceeded = errors.New("embedding token quota exceeded")
	// ErrIndexWrite signals a failed index upsert after retries.
	ErrIndexWrite = errors.New("index write failure")
	// ErrConfiguration signals an invalid boost configuration; fatal to the caller.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrDocumentNotFound signals a missing source document or index entry.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVectorDimMismatch signals an embedding of the wrong dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// IsRetryable reports whether the failure may succeed on retry.
// Malformed input and configuration errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedOCR) || errors.Is(err, ErrConfiguration) {
		return false
	}
	return errors.Is(err, ErrTransientIO) || errors.Is(err, ErrEmbedding) || errors.Is(err, ErrIndexWrite)
}

// PageError records the failure of a single page's sub-pipeline.
type PageError struct {
	PageNumber int
	Stage      Stage
	Err        error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d failed at %s: %v", e.PageNumber, e.Stage, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
