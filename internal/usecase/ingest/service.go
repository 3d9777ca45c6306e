// Package ingest is the document processor: it drives one work item through
// fetch, OCR, chunking, embedding, and indexing, isolating failures to the
// page that caused them.
package ingest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/chunker"
	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/logger"
	"github.com/caseworks/casedex/internal/metrics"
	"github.com/caseworks/casedex/internal/ocr"
)

// Config tunes page parallelism, retries, and the optional correction pass.
type Config struct {
	PageWorkers  int
	MaxChunkSize int

	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryMaxElapsed time.Duration

	CorrectionEnabled bool
	PromptVersion     string
}

// Service processes one source document per work item.
type Service struct {
	store     ObjectStore
	analyzer  Analyzer
	indexer   Indexer
	embedder  Embedder
	corrector Corrector // nil unless correction is enabled
	builder   *chunker.Builder
	pages     *ants.Pool
	cfg       Config
}

// New creates the document processor. The page pool is shared across
// documents so total OCR/embedding concurrency stays bounded.
func New(
	store ObjectStore,
	analyzer Analyzer,
	indexer Indexer,
	embedder Embedder,
	corrector Corrector,
	cfg Config,
) (*Service, error) {
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 1
	}
	pool, err := ants.NewPool(cfg.PageWorkers)
	if err != nil {
		return nil, fmt.Errorf("page pool: %w", err)
	}
	if !cfg.CorrectionEnabled {
		corrector = nil
	}

	return &Service{
		store:     store,
		analyzer:  analyzer,
		indexer:   indexer,
		embedder:  embedder,
		corrector: corrector,
		builder:   chunker.NewBuilder(cfg.MaxChunkSize),
		pages:     pool,
		cfg:       cfg,
	}, nil
}

// Release frees the page pool.
func (s *Service) Release() {
	s.pages.Release()
}

// Process runs the state machine for one work item. Pages are fanned out to
// the shared pool and joined; the document succeeds only when every page
// does, otherwise the result names each failed page and its stage. The whole
// run is idempotent: chunk and page ids re-derive identically, so a rerun
// overwrites prior output.
func (s *Service) Process(ctx context.Context, item *domain.WorkItem) *domain.ProcessResult {
	start := time.Now()
	log := logger.FromContext(ctx)

	doc := &domain.SourceDocument{
		ID:                 domain.SourceDocID(item.StorageURI, item.CorrespondenceType, item.CaseRef),
		StorageURI:         item.StorageURI,
		SourceFileName:     path.Base(item.StorageURI),
		CaseRef:            item.CaseRef,
		CorrespondenceType: item.CorrespondenceType,
		ReceivedDate:       item.ReceivedDate,
	}
	log = log.With(zap.String("doc_id", doc.ID), zap.String("storage_uri", doc.StorageURI))

	result := &domain.ProcessResult{DocID: doc.ID, Stage: domain.StageReceived}
	fail := func(stage domain.Stage, err error) *domain.ProcessResult {
		log.Error("document processing failed", zap.String("stage", string(stage)), zap.Error(err))
		result.Stage = domain.StageFailed
		result.FailedPages = append(result.FailedPages, &domain.PageError{PageNumber: 0, Stage: stage, Err: err})
		result.Elapsed = time.Since(start)
		metrics.IngestDocumentsTotal.WithLabelValues(string(domain.StageFailed)).Inc()
		return result
	}

	if _, err := s.store.FetchDocument(ctx, doc.StorageURI); err != nil {
		return fail(domain.StageReceived, err)
	}
	result.Stage = domain.StageFetched

	var raw *ocr.RawResult
	if err := s.retryOCR(ctx, func() error {
		var err error
		raw, err = s.analyzer.AnalyzeDocument(ctx, doc.StorageURI)
		return err
	}); err != nil {
		return fail(domain.StageFetched, err)
	}
	result.Stage = domain.StageOCRDone
	doc.PageCount = len(raw.Pages)
	result.PageCount = doc.PageCount

	// A re-ingested document overwrites its own chunk keys, but when it
	// shrank the trailing chunks of the previous run would survive. Purge
	// failure is logged, not fatal: the upserts below hit the same store.
	if purged, err := s.indexer.PurgeDocument(ctx, doc.ID); err != nil {
		log.Warn("failed to purge previous chunks", zap.Error(err))
	} else if purged > 0 {
		log.Info("purged previous chunks", zap.Int("count", purged))
	}

	outcomes := s.processPages(ctx, doc, raw.Pages)

	for _, out := range outcomes {
		result.ChunkCount += out.chunks
		if out.err != nil {
			result.FailedPages = append(result.FailedPages, out.err)
		}
	}
	sort.Slice(result.FailedPages, func(i, j int) bool {
		return result.FailedPages[i].PageNumber < result.FailedPages[j].PageNumber
	})

	if len(result.FailedPages) > 0 {
		result.Stage = domain.StageFailed
	} else {
		result.Stage = domain.StageIndexed
	}
	result.Elapsed = time.Since(start)

	metrics.IngestDocumentsTotal.WithLabelValues(string(result.Stage)).Inc()
	metrics.IngestDocumentDuration.Observe(result.Elapsed.Seconds())

	log.Info("document processed",
		zap.String("stage", string(result.Stage)),
		zap.Int("pages", result.PageCount),
		zap.Int("chunks", result.ChunkCount),
		zap.Int("failed_pages", len(result.FailedPages)),
		zap.Duration("elapsed", result.Elapsed))
	return result
}

type pageOutcome struct {
	chunks int
	err    *domain.PageError
}

// processPages fans pages out to the shared pool and waits for all of them.
// Pages are independent after OCR, so one page's failure never stops its
// siblings.
func (s *Service) processPages(ctx context.Context, doc *domain.SourceDocument, pages []ocr.RawPage) []pageOutcome {
	outcomes := make([]pageOutcome, len(pages))
	var wg sync.WaitGroup

	for i := range pages {
		wg.Add(1)
		submitErr := s.pages.Submit(func() {
			defer wg.Done()
			outcomes[i] = s.processPage(ctx, doc, &pages[i])
		})
		if submitErr != nil {
			outcomes[i] = pageOutcome{err: &domain.PageError{
				PageNumber: pages[i].PageNumber,
				Stage:      domain.StageOCRDone,
				Err:        submitErr,
			}}
			wg.Done()
		}
	}

	wg.Wait()
	return outcomes
}

// processPage runs one page through normalize, chunk, embed, render, index.
func (s *Service) processPage(ctx context.Context, doc *domain.SourceDocument, raw *ocr.RawPage) pageOutcome {
	pageNum := raw.PageNumber
	pageFail := func(stage domain.Stage, err error) pageOutcome {
		metrics.IngestPageFailuresTotal.WithLabelValues(string(stage)).Inc()
		return pageOutcome{err: &domain.PageError{PageNumber: pageNum, Stage: stage, Err: err}}
	}

	blocks, err := ocr.Normalize(raw)
	if err != nil {
		return pageFail(domain.StageOCRDone, err)
	}

	chunks := s.builder.Build(doc.ID, pageNum, blocks)

	if s.corrector != nil {
		for i := range chunks {
			corrected, corrErr := s.corrector.Correct(ctx, chunks[i].Text, s.cfg.PromptVersion)
			if corrErr != nil {
				// Correction is best-effort; the raw text still indexes.
				continue
			}
			chunks[i].Text = corrected
		}
	}

	for i := range chunks {
		embErr := s.retry(ctx, func() error {
			res, err := s.embedder.Embed(ctx, chunks[i].Text)
			if err != nil {
				return err
			}
			chunks[i].Embedding = res.Embedding
			return nil
		})
		if embErr != nil {
			return pageFail(domain.StageChunked, embErr)
		}
	}

	var image []byte
	if err := s.retryOCR(ctx, func() error {
		var err error
		image, err = s.analyzer.RenderPage(ctx, doc.StorageURI, pageNum)
		return err
	}); err != nil {
		return pageFail(domain.StageEmbedded, err)
	}
	imageURI, err := s.store.PutPageImage(ctx, doc.ID, pageNum, image)
	if err != nil {
		return pageFail(domain.StageEmbedded, err)
	}

	page := &domain.Page{
		ID:         domain.PageID(doc.StorageURI, doc.CorrespondenceType, doc.CaseRef, pageNum),
		DocID:      doc.ID,
		PageNumber: pageNum,
		Text:       joinBlocks(blocks),
		ImageURI:   imageURI,
	}

	var indexErr error
	retryErr := s.retry(ctx, func() error {
		if failed := s.indexer.UpsertChunks(ctx, doc, chunks); len(failed) > 0 {
			indexErr = &failed[0]
			return fmt.Errorf("%d of %d chunks failed: %w", len(failed), len(chunks), domain.ErrIndexWrite)
		}
		indexErr = nil
		return s.indexer.UpsertPage(ctx, doc, page)
	})
	if retryErr != nil {
		if indexErr != nil {
			retryErr = fmt.Errorf("%w: %w", retryErr, indexErr)
		}
		return pageFail(domain.StageEmbedded, retryErr)
	}

	metrics.IngestChunksIndexedTotal.Add(float64(len(chunks)))
	return pageOutcome{chunks: len(chunks)}
}

// retry applies bounded exponential backoff to retryable failures.
func (s *Service) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(s.attempt(op), backoff.WithContext(s.policy(), ctx))
}

// retryOCR is retry with each re-attempt counted. OCR is the slowest and
// flakiest dependency in the pipeline, so its retry rate gets its own counter.
func (s *Service) retryOCR(ctx context.Context, op func() error) error {
	notify := func(error, time.Duration) {
		metrics.IngestOCRRetriesTotal.Inc()
	}
	return backoff.RetryNotify(s.attempt(op), backoff.WithContext(s.policy(), ctx), notify)
}

func (s *Service) attempt(op func() error) backoff.Operation {
	return func() error {
		err := op()
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
}

func (s *Service) policy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	if s.cfg.RetryInitial > 0 {
		policy.InitialInterval = s.cfg.RetryInitial
	}
	if s.cfg.RetryMax > 0 {
		policy.MaxInterval = s.cfg.RetryMax
	}
	if s.cfg.RetryMaxElapsed > 0 {
		policy.MaxElapsedTime = s.cfg.RetryMaxElapsed
	}
	return policy
}

func joinBlocks(blocks []domain.TextBlock) string {
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	return strings.Join(texts, "\n")
}
