package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
)

// Worker consumes the ingestion queue and hands work items to the
// processor. Successful documents are acked; failed ones are left pending
// for redelivery until their delivery budget runs out, then dead-lettered.
type Worker struct {
	queue     Queue
	processor *Service
	workers   int
	logger    *zap.Logger
}

// NewWorker creates the queue consumer. workers bounds how many documents
// process concurrently.
func NewWorker(queue Queue, processor *Service, workers int, logger *zap.Logger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, processor: processor, workers: workers, logger: logger}
}

// Run consumes until the context is cancelled. Each cycle first reclaims
// work abandoned by dead consumers, then reads new messages.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	w.logger.Info("ingest worker started", zap.Int("workers", w.workers))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ingest worker stopping")
			return ctx.Err()
		default:
		}

		reclaimed, err := w.queue.Reclaim(ctx, w.workers)
		if err != nil {
			w.logger.Warn("reclaim failed", zap.Error(err))
		}

		fresh, err := w.queue.Dequeue(ctx, w.workers)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		w.handleBatch(ctx, append(reclaimed, fresh...))
	}
}

// handleBatch processes a batch of items concurrently and waits for all.
func (w *Worker) handleBatch(ctx context.Context, items []*domain.WorkItem) {
	if len(items) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.handle(ctx, item)
		}()
	}
	wg.Wait()
}

func (w *Worker) handle(ctx context.Context, item *domain.WorkItem) {
	log := w.logger.With(
		zap.String("message_id", item.MessageID),
		zap.String("storage_uri", item.StorageURI),
		zap.Int64("deliveries", item.Deliveries))

	if w.queue.Exhausted(item) {
		if err := w.queue.DeadLetter(ctx, item); err != nil {
			log.Error("dead-letter failed", zap.Error(err))
		}
		return
	}

	result := w.processor.Process(ctx, item)
	if !result.Succeeded() {
		// Leave the message pending; redelivery retries the whole document,
		// which is safe because ids are deterministic.
		log.Warn("document failed, leaving for redelivery",
			zap.String("doc_id", result.DocID),
			zap.Int("failed_pages", len(result.FailedPages)))
		return
	}

	if err := w.queue.Ack(ctx, item.MessageID); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}
