package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline Prometheus metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "ingest_documents_total",
			Help:      "Documents processed by terminal stage",
		},
		[]string{"stage"}, // INDEXED / FAILED
	)

	IngestDocumentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "casedex",
			Name:      "ingest_document_duration_seconds",
			Help:      "End-to-end document processing duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	IngestPageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "ingest_page_failures_total",
			Help:      "Page-level failures by pipeline stage",
		},
		[]string{"stage"},
	)

	IngestOCRRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "ingest_ocr_retries_total",
			Help:      "OCR calls re-attempted after a retryable failure",
		},
	)

	IngestChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "ingest_chunks_indexed_total",
			Help:      "Chunks written to the search index",
		},
	)

	QueueDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "queue_deliveries_total",
			Help:      "Work queue deliveries by outcome",
		},
		[]string{"outcome"}, // acked / redelivered / dead_letter
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "search_requests_total",
			Help:      "Hybrid search requests by status",
		},
		[]string{"status"},
	)

	SearchSignalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casedex",
			Name:      "search_signal_duration_seconds",
			Help:      "Per-signal query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"signal"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ingestion and search metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestDocumentsTotal)
	prometheus.MustRegister(IngestDocumentDuration)
	prometheus.MustRegister(IngestPageFailuresTotal)
	prometheus.MustRegister(IngestOCRRetriesTotal)
	prometheus.MustRegister(IngestChunksIndexedTotal)
	prometheus.MustRegister(QueueDeliveriesTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchSignalDuration)
	pipelineMetricsRegistered = true
}
