// Package chunkindex is the indexing writer: it owns the chunk and page
// metadata indexes and every hash written under them.
package chunkindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/caseworks/casedex/internal/db"
	"github.com/caseworks/casedex/internal/domain"
)

// store is the consumer interface for index writes (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
}

// Config tunes key layout and the vector index.
type Config struct {
	KeyPrefix       string // defaults to domain.KeyPrefix
	EmbeddingDim    int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo implements the chunk and page index writers.
type Repo struct {
	store store
	cfg   Config
}

// New creates an indexing repository.
func New(s store, cfg Config) *Repo {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = domain.KeyPrefix
	}
	return &Repo{store: s, cfg: cfg}
}

func (r *Repo) chunkKey(chunkID string) string { return r.cfg.KeyPrefix + "chunk:" + chunkID }
func (r *Repo) pageKey(pageID string) string { return r.cfg.KeyPrefix + "page:" + pageID }

// ChunkIndexName is the FT index over chunk hashes.
func (r *Repo) ChunkIndexName() string { return r.cfg.KeyPrefix + "idx:chunks" }

// PageIndexName is the FT index over page metadata hashes.
func (r *Repo) PageIndexName() string { return r.cfg.KeyPrefix + "idx:pages" }

// EnsureIndexes creates the chunk and page indexes if missing. Safe to call
// on every startup; a concurrent create by another instance is tolerated.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	chunkDef, err := db.NewIndex(r.ChunkIndexName()).
		Prefix(r.cfg.KeyPrefix + "chunk:").
		Tag(fieldChunkID).
		Tag(fieldSourceDocID).
		TextNoStem(fieldChunkText).
		Text(fieldChunkTextEn).
		VectorHNSW(fieldEmbedding, r.cfg.EmbeddingDim, db.DistanceCosine, r.cfg.HNSWM, r.cfg.HNSWEFConstruct).
		Tag(fieldSourceFileName).
		Tag(fieldPageID).
		Tag(fieldCaseRef).
		Tag(fieldCorrespondenceType).
		Numeric(fieldReceivedDate).
		Numeric(fieldPageCount).
		Numeric(fieldPageNumber).
		Numeric(fieldChunkIndex).
		Tag(fieldChunkType).
		Numeric(fieldConfidence).
		Numeric(fieldBBoxTop).
		Numeric(fieldBBoxLeft).
		Numeric(fieldBBoxWidth).
		Numeric(fieldBBoxHeight).
		Build()
	if err != nil {
		return fmt.Errorf("chunk index definition: %w", err)
	}

	pageDef, err := db.NewIndex(r.PageIndexName()).
		Prefix(r.cfg.KeyPrefix + "page:").
		Tag(fieldPageID).
		Tag(fieldSourceDocID).
		Tag(fieldSourceFileName).
		Tag(fieldCaseRef).
		Tag(fieldCorrespondenceType).
		Numeric(fieldReceivedDate).
		Numeric(fieldPageCount).
		Numeric(fieldPageNumber).
		Build()
	if err != nil {
		return fmt.Errorf("page index definition: %w", err)
	}

	for _, def := range []*db.IndexDefinition{chunkDef, pageDef} {
		if err := r.ensureIndex(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) ensureIndex(ctx context.Context, def *db.IndexDefinition) error {
	exists, err := r.store.IndexExists(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", def.Name, err)
	}
	if exists {
		return nil
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}

// UpsertError records one chunk that failed to index.
type UpsertError struct {
	ChunkID string
	Err     error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("chunk %s: %v", e.ChunkID, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// UpsertChunks writes chunk hashes keyed by chunk id. The batch is
// pipelined; when the pipeline fails, each chunk is retried individually so
// the caller learns exactly which documents did not land. The returned
// slice is nil when everything succeeded.
func (r *Repo) UpsertChunks(ctx context.Context, doc *domain.SourceDocument, chunks []domain.Chunk) []UpsertError {
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	for i := range chunks {
		items[i] = db.HashSetItem{
			Key:    r.chunkKey(chunks[i].ID),
			Fields: chunkFields(doc, &chunks[i]),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err == nil {
		return nil
	}

	var failed []UpsertError
	for i := range chunks {
		if err := r.store.HSet(ctx, items[i].Key, items[i].Fields); err != nil {
			failed = append(failed, UpsertError{
				ChunkID: chunks[i].ID,
				Err:     fmt.Errorf("%v: %w", err, domain.ErrIndexWrite),
			})
		}
	}
	return failed
}

// PurgeDocument deletes every chunk hash previously written for the
// document. Chunk ids are deterministic, so a re-ingested document
// overwrites its own keys, but a shrunk document would leave stale trailing
// chunks matching searches forever. Returns the number of keys removed.
func (r *Repo) PurgeDocument(ctx context.Context, sourceDocID string) (int, error) {
	keys, err := r.store.Scan(ctx, r.chunkKey(sourceDocID+"_*"))
	if err != nil {
		return 0, fmt.Errorf("scan chunks of %s: %w", sourceDocID, err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return 0, fmt.Errorf("delete chunk %s: %v: %w", key, err, domain.ErrIndexWrite)
		}
	}
	return len(keys), nil
}

// UpsertPage writes one page metadata hash keyed by page id.
func (r *Repo) UpsertPage(ctx context.Context, doc *domain.SourceDocument, page *domain.Page) error {
	if err := r.store.HSet(ctx, r.pageKey(page.ID), pageFields(doc, page)); err != nil {
		return fmt.Errorf("upsert page %s: %v: %w", page.ID, err, domain.ErrIndexWrite)
	}
	return nil
}

// ChunkTexts walks the whole chunk index and returns chunk id to text. Used
// by the evaluator to regenerate term fixtures from live index contents.
func (r *Repo) ChunkTexts(ctx context.Context) (map[string]string, error) {
	const pageSize = 1000
	texts := make(map[string]string)
	fields := []string{fieldChunkID, fieldChunkText}

	for offset := 0; ; offset += pageSize {
		result, err := r.store.SearchList(ctx, r.ChunkIndexName(), "*", offset, pageSize, fields)
		if err != nil {
			return nil, fmt.Errorf("list chunks: %w", err)
		}
		if result == nil || len(result.Entries) == 0 {
			break
		}

		for _, entry := range result.Entries {
			id := entry.Fields[fieldChunkID]
			if id == "" {
				continue
			}
			texts[id] = entry.Fields[fieldChunkText]
		}

		if offset+pageSize >= int(result.Total) {
			break
		}
	}

	return texts, nil
}

// Count returns the number of indexed chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.ChunkIndexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
