package ingest

import (
	"context"

	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/ocr"
	"github.com/caseworks/casedex/internal/repository/chunkindex"
)

// Queue is the ingestion trigger contract.
type Queue interface {
	EnsureGroup(ctx context.Context) error
	Dequeue(ctx context.Context, count int) ([]*domain.WorkItem, error)
	Reclaim(ctx context.Context, count int) ([]*domain.WorkItem, error)
	Ack(ctx context.Context, ids ...string) error
	Exhausted(item *domain.WorkItem) bool
	DeadLetter(ctx context.Context, item *domain.WorkItem) error
}

// ObjectStore fetches source documents and materializes page images.
type ObjectStore interface {
	FetchDocument(ctx context.Context, storageURI string) ([]byte, error)
	PutPageImage(ctx context.Context, sourceDocID string, pageNumber int, image []byte) (string, error)
}

// Analyzer is the OCR capability: job submission plus page rendering.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, storageURI string) (*ocr.RawResult, error)
	RenderPage(ctx context.Context, storageURI string, page int) ([]byte, error)
}

// Indexer writes chunk and page documents.
type Indexer interface {
	PurgeDocument(ctx context.Context, sourceDocID string) (int, error)
	UpsertChunks(ctx context.Context, doc *domain.SourceDocument, chunks []domain.Chunk) []chunkindex.UpsertError
	UpsertPage(ctx context.Context, doc *domain.SourceDocument, page *domain.Page) error
}

// Embedder vectorizes chunk text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Corrector is the optional LLM cleanup of OCR text before embedding.
type Corrector interface {
	Correct(ctx context.Context, rawText, promptVersion string) (string, error)
}
