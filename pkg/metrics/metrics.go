package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_enqueued_total",
			Help: "Total number of envelopes appended to queue streams (count)",
		},
		[]string{"queue", "mode"},
	)

	MessagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_processed_total",
			Help: "Total number of envelopes handled by the processor (count)",
		},
		[]string{"queue", "status"},
	)

	ProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_processing_duration_ms",
			Help:    "Handler dispatch duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"queue", "status"},
	)

	BatchFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_batch_flushes_total",
			Help: "Total number of producer batch flushes (count)",
		},
		[]string{"queue", "status"},
	)

	BatchFlushSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_batch_flush_size",
			Help:    "Number of envelopes per producer batch flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		},
		[]string{"queue"},
	)

	MessagesRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_retried_total",
			Help: "Total number of envelopes re-enqueued by the poison router (count)",
		},
		[]string{"queue"},
	)

	MessagesPoisonedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_poisoned_total",
			Help: "Total number of envelopes moved to a poison stream (count)",
		},
		[]string{"queue"},
	)

	MessagesReclaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_reclaimed_total",
			Help: "Total number of idle pending entries claimed from other consumers (count)",
		},
		[]string{"queue"},
	)

	MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_dropped_total",
			Help: "Total number of malformed envelopes acknowledged and dropped (count)",
		},
		[]string{"queue"},
	)

	PendingEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_pending_entries",
			Help: "Entries delivered but not yet acknowledged, per queue (count)",
		},
		[]string{"queue"},
	)

	DelayedEntriesReady = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_delayed_entries_ready_total",
			Help: "Delayed entries observed by the scanner as newly eligible (count)",
		},
		[]string{"queue"},
	)

	StoreReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_store_reconnects_total",
			Help: "Total number of stream store reconnect attempts (count)",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterProducerMetrics() {
	prometheus.MustRegister(MessagesEnqueuedTotal)
	prometheus.MustRegister(BatchFlushesTotal)
	prometheus.MustRegister(BatchFlushSize)
}

func RegisterProcessorMetrics() {
	prometheus.MustRegister(MessagesProcessedTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(MessagesRetriedTotal)
	prometheus.MustRegister(MessagesPoisonedTotal)
	prometheus.MustRegister(MessagesReclaimedTotal)
	prometheus.MustRegister(MessagesDroppedTotal)
	prometheus.MustRegister(PendingEntries)
	prometheus.MustRegister(StoreReconnectsTotal)
}

func RegisterScannerMetrics() {
	prometheus.MustRegister(DelayedEntriesReady)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterOpsMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveProcessingDuration(queue, status string, duration time.Duration) {
	ProcessingDuration.WithLabelValues(queue, status).Observe(float64(duration.Milliseconds()))
}

func IncMessagesProcessed(queue, status string) {
	MessagesProcessedTotal.WithLabelValues(queue, status).Inc()
}

func IncMessagesEnqueued(queue, mode string) {
	MessagesEnqueuedTotal.WithLabelValues(queue, mode).Inc()
}

func ObserveBatchFlush(queue string, size int, status string) {
	BatchFlushesTotal.WithLabelValues(queue, status).Inc()
	BatchFlushSize.WithLabelValues(queue).Observe(float64(size))
}

func SetPendingEntries(queue string, count int) {
	PendingEntries.WithLabelValues(queue).Set(float64(count))
}
