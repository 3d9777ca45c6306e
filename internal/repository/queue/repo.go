// Package queue is the ingestion work queue over a Redis Stream consumer
// group. One message is one source document to process.
package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/db"
	"github.com/caseworks/casedex/internal/domain"
	"github.com/caseworks/casedex/internal/metrics"
)

// stream is the consumer interface for queue operations (ISP).
type stream interface {
	StreamAdd(ctx context.Context, stream string, values map[string]string) (string, error)
	StreamEnsureGroup(ctx context.Context, stream, group string) error
	StreamReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]db.StreamMessage, error)
	StreamAck(ctx context.Context, stream, group string, ids ...string) error
	StreamAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int) ([]db.StreamMessage, error)
	StreamPending(ctx context.Context, stream, group string, ids ...string) ([]db.PendingEntry, error)
}

// Config identifies this consumer within the group and bounds redelivery.
type Config struct {
	Stream        string
	Group         string
	Consumer      string
	MaxDeliveries int64
	Block         time.Duration
	ClaimMinIdle  time.Duration
}

// Repo implements the ingestion trigger queue.
type Repo struct {
	stream stream
	cfg    Config
	logger *zap.Logger
}

// New creates a work queue repository.
func New(s stream, cfg Config, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{stream: s, cfg: cfg, logger: logger}
}

// DeadStream is where poisoned messages end up, next to the main stream.
func (r *Repo) DeadStream() string { return r.cfg.Stream + ":dead" }

// EnsureGroup creates the consumer group if missing. Called once at startup.
func (r *Repo) EnsureGroup(ctx context.Context) error {
	if err := r.stream.StreamEnsureGroup(ctx, r.cfg.Stream, r.cfg.Group); err != nil {
		return fmt.Errorf("ensure group %s on %s: %w", r.cfg.Group, r.cfg.Stream, err)
	}
	return nil
}

// Enqueue adds one work item and returns its message id.
func (r *Repo) Enqueue(ctx context.Context, item *domain.WorkItem) (string, error) {
	values, err := marshalWorkItem(item)
	if err != nil {
		return "", err
	}

	id, err := r.stream.StreamAdd(ctx, r.cfg.Stream, values)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", item.StorageURI, err)
	}

	r.logger.Info("work item enqueued",
		zap.String("message_id", id),
		zap.String("storage_uri", item.StorageURI))
	return id, nil
}

// Dequeue blocks up to the configured interval for new work. Returns nil
// when the queue stays empty. Malformed messages are acked away so they do
// not wedge the group.
func (r *Repo) Dequeue(ctx context.Context, count int) ([]*domain.WorkItem, error) {
	msgs, err := r.stream.StreamReadGroup(ctx, r.cfg.Stream, r.cfg.Group, r.cfg.Consumer, count, r.cfg.Block)
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return r.toWorkItems(ctx, msgs)
}

// Ack removes delivered messages from the pending entries list.
func (r *Repo) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.stream.StreamAck(ctx, r.cfg.Stream, r.cfg.Group, ids...); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	metrics.QueueDeliveriesTotal.WithLabelValues("acked").Add(float64(len(ids)))
	return nil
}

// Reclaim takes over messages another consumer left pending past the idle
// threshold. Delivery counts come back on the items so the caller can
// dead-letter the poisoned ones.
func (r *Repo) Reclaim(ctx context.Context, count int) ([]*domain.WorkItem, error) {
	msgs, err := r.stream.StreamAutoClaim(ctx, r.cfg.Stream, r.cfg.Group, r.cfg.Consumer, r.cfg.ClaimMinIdle, count)
	if err != nil {
		return nil, fmt.Errorf("reclaim: %w", err)
	}

	items, err := r.toWorkItems(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		metrics.QueueDeliveriesTotal.WithLabelValues("redelivered").Add(float64(len(items)))
	}
	return items, nil
}

// Exhausted reports whether the item has used up its delivery budget.
func (r *Repo) Exhausted(item *domain.WorkItem) bool {
	return r.cfg.MaxDeliveries > 0 && item.Deliveries > r.cfg.MaxDeliveries
}

// DeadLetter moves an unrecoverable item to the dead stream and acks the
// original so it stops being redelivered.
func (r *Repo) DeadLetter(ctx context.Context, item *domain.WorkItem) error {
	values, err := marshalWorkItem(item)
	if err != nil {
		return err
	}
	values["deliveries"] = fmt.Sprintf("%d", item.Deliveries)

	if _, err := r.stream.StreamAdd(ctx, r.DeadStream(), values); err != nil {
		return fmt.Errorf("dead-letter %s: %w", item.MessageID, err)
	}
	if err := r.stream.StreamAck(ctx, r.cfg.Stream, r.cfg.Group, item.MessageID); err != nil {
		return fmt.Errorf("ack dead-lettered %s: %w", item.MessageID, err)
	}

	metrics.QueueDeliveriesTotal.WithLabelValues("dead_letter").Inc()
	r.logger.Warn("work item dead-lettered",
		zap.String("message_id", item.MessageID),
		zap.String("storage_uri", item.StorageURI),
		zap.Int64("deliveries", item.Deliveries))
	return nil
}

// toWorkItems parses messages and annotates each with its delivery count
// from the pending entries list. Unparseable messages are acked and dropped.
func (r *Repo) toWorkItems(ctx context.Context, msgs []db.StreamMessage) ([]*domain.WorkItem, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	deliveries := map[string]int64{}
	pending, err := r.stream.StreamPending(ctx, r.cfg.Stream, r.cfg.Group, ids...)
	if err != nil {
		return nil, fmt.Errorf("pending lookup: %w", err)
	}
	for _, p := range pending {
		deliveries[p.ID] = p.Deliveries
	}

	items := make([]*domain.WorkItem, 0, len(msgs))
	for _, m := range msgs {
		item, err := unmarshalWorkItem(m.ID, m.Values)
		if err != nil {
			r.logger.Warn("dropping malformed work item",
				zap.String("message_id", m.ID),
				zap.Error(err))
			if ackErr := r.stream.StreamAck(ctx, r.cfg.Stream, r.cfg.Group, m.ID); ackErr != nil {
				return nil, fmt.Errorf("ack malformed %s: %w", m.ID, ackErr)
			}
			continue
		}
		item.Deliveries = deliveries[m.ID]
		if item.Deliveries == 0 {
			item.Deliveries = 1
		}
		items = append(items, item)
	}
	return items, nil
}
