package ingest

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
)

type mockQueue struct {
	mu sync.Mutex

	items     []*domain.WorkItem
	reclaimed []*domain.WorkItem
	maxDeliv  int64

	acked       []string
	deadLetters []string
	served      bool
	cancel      context.CancelFunc
}

func (m *mockQueue) EnsureGroup(_ context.Context) error { return nil }

func (m *mockQueue) Dequeue(_ context.Context, _ int) ([]*domain.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.served {
		if m.cancel != nil {
			m.cancel()
		}
		return nil, nil
	}
	m.served = true
	return m.items, nil
}

func (m *mockQueue) Reclaim(_ context.Context, _ int) ([]*domain.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.reclaimed
	m.reclaimed = nil
	return out, nil
}

func (m *mockQueue) Ack(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, ids...)
	return nil
}

func (m *mockQueue) Exhausted(item *domain.WorkItem) bool {
	return m.maxDeliv > 0 && item.Deliveries > m.maxDeliv
}

func (m *mockQueue) DeadLetter(_ context.Context, item *domain.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, item.MessageID)
	return nil
}

func runWorker(t *testing.T, q *mockQueue, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	w := NewWorker(q, svc, 2, zap.NewNop())
	_ = w.Run(ctx)
}

func TestWorker_AcksSuccess(t *testing.T) {
	q := &mockQueue{items: []*domain.WorkItem{testWorkItem()}, maxDeliv: 5}
	svc := newTestService(t, &mockObjectStore{}, &mockAnalyzer{result: twoPageResult()}, &mockIndexer{}, &mockEmbedder{}, nil, testConfig())

	runWorker(t, q, svc)

	if len(q.acked) != 1 || q.acked[0] != "1-0" {
		t.Errorf("acked = %v", q.acked)
	}
	if len(q.deadLetters) != 0 {
		t.Errorf("deadLetters = %v", q.deadLetters)
	}
}

func TestWorker_LeavesFailureForRedelivery(t *testing.T) {
	q := &mockQueue{items: []*domain.WorkItem{testWorkItem()}, maxDeliv: 5}
	store := &mockObjectStore{fetchErr: domain.ErrTransientIO}
	svc := newTestService(t, store, &mockAnalyzer{}, &mockIndexer{}, &mockEmbedder{}, nil, testConfig())

	runWorker(t, q, svc)

	if len(q.acked) != 0 {
		t.Errorf("failed item must not be acked: %v", q.acked)
	}
	if len(q.deadLetters) != 0 {
		t.Errorf("item within budget must not be dead-lettered: %v", q.deadLetters)
	}
}

func TestWorker_DeadLettersExhausted(t *testing.T) {
	item := testWorkItem()
	item.Deliveries = 6

	q := &mockQueue{items: []*domain.WorkItem{item}, maxDeliv: 5}
	idx := &mockIndexer{}
	svc := newTestService(t, &mockObjectStore{}, &mockAnalyzer{result: twoPageResult()}, idx, &mockEmbedder{}, nil, testConfig())

	runWorker(t, q, svc)

	if len(q.deadLetters) != 1 || q.deadLetters[0] != "1-0" {
		t.Errorf("deadLetters = %v", q.deadLetters)
	}
	if len(idx.chunks) != 0 {
		t.Error("exhausted item must not be processed")
	}
}

func TestWorker_ProcessesReclaimed(t *testing.T) {
	item := testWorkItem()
	item.MessageID = "9-0"
	item.Deliveries = 2

	q := &mockQueue{reclaimed: []*domain.WorkItem{item}, maxDeliv: 5}
	svc := newTestService(t, &mockObjectStore{}, &mockAnalyzer{result: twoPageResult()}, &mockIndexer{}, &mockEmbedder{}, nil, testConfig())

	runWorker(t, q, svc)

	if len(q.acked) != 1 || q.acked[0] != "9-0" {
		t.Errorf("acked = %v", q.acked)
	}
}
