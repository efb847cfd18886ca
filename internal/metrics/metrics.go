// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Parser/dedup cache efficiency
// - Checker bank firing rates
// - Audit pipeline throughput, queue depth, and dead-letter handling
// - Storage write latency and retention sweeps
// - Circuit breaker state

var (
	// Cache Metrics (General) — shared by the SQL parser cache and the
	// per-goroutine dedup filter (internal/sqlguard).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "parser", "dedup"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions (capacity or TTL expiry)",
		},
		[]string{"cache_type"},
	)

	// Checker Bank Metrics — the prevention engine's rule checkers
	// (internal/sqlguard) and the audit checker bank (internal/auditcheck)
	// share this by labeling "bank".
	CheckerFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checker_firings_total",
			Help: "Total number of times a checker produced a non-safe finding",
		},
		[]string{"bank", "checker_id", "severity"},
	)

	DedupSuppressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_suppressions_total",
			Help: "Total number of violations suppressed as duplicates within the dedup window",
		},
		[]string{"checker_id"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Dead Letter Queue Metrics
	DLQEntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_entries_total",
			Help: "Current number of entries in the Dead Letter Queue",
		},
	)

	DLQEntriesByCategory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dlq_entries_by_category",
			Help: "Current number of DLQ entries by error category",
		},
		[]string{"category"}, // connection, timeout, validation, storage, capacity, unknown
	)

	DLQMessagesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_added_total",
			Help: "Total number of messages added to the DLQ",
		},
	)

	DLQMessagesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_removed_total",
			Help: "Total number of messages removed from the DLQ (successfully reprocessed)",
		},
	)

	DLQMessagesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_expired_total",
			Help: "Total number of messages expired from the DLQ",
		},
	)

	DLQRetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_retry_attempts_total",
			Help: "Total number of retry attempts for DLQ messages",
		},
	)

	DLQRetrySuccesses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_retry_successes_total",
			Help: "Total number of successful DLQ message retries",
		},
	)

	DLQRetryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_retry_failures_total",
			Help: "Total number of failed DLQ message retries",
		},
	)

	DLQOldestEntryAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_oldest_entry_age_seconds",
			Help: "Age of the oldest entry in the DLQ in seconds",
		},
	)

	// Audit Pipeline (NATS) Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of audit events published to the broker",
		},
	)

	NATSMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_consumed_total",
			Help: "Total number of audit events consumed from the broker",
		},
	)

	NATSMessagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_processed_total",
			Help: "Total number of audit events successfully processed into a report",
		},
	)

	NATSMessagesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_deduplicated_total",
			Help: "Total number of broker messages skipped as duplicates",
		},
	)

	NATSMessagesParseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_parse_failed_total",
			Help: "Total number of broker messages that failed to decode",
		},
	)

	NATSProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_processing_duration_seconds",
			Help:    "Duration of one audit event's checker-bank-to-persist processing",
			Buckets: prometheus.DefBuckets,
		},
	)

	NATSBatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_batch_flush_duration_seconds",
			Help:    "Duration of batch flush operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NATSBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_batch_size",
			Help:    "Number of events in each batch flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// NATSQueueDepth is the worker pool's bounded in-memory queue depth
	// (SPEC_FULL.md §4.10: "oldest-available metric and queue-depth metric
	// are exported" for the consumer/worker-pool boundary).
	NATSQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_queue_depth",
			Help: "Current depth of the audit pipeline's worker queue",
		},
	)

	NATSConsumerLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_consumer_lag",
			Help: "Number of pending messages in the audit broker consumer",
		},
	)

	// Storage Metrics
	StorageWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_write_duration_seconds",
			Help:    "Duration of a storage write, by role and backend mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role", "mode"}, // role: "metadata", "log"
	)

	StorageWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_write_errors_total",
			Help: "Total number of failed storage writes, by role and backend mode",
		},
		[]string{"role", "mode"},
	)

	// Retention Metrics
	RetentionRowsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_rows_deleted_total",
			Help: "Total number of audit report rows deleted by the retention job",
		},
	)

	RetentionRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retention_run_duration_seconds",
			Help:    "Duration of one retention job run",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetentionRunErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_run_errors_total",
			Help: "Total number of retention job runs that failed",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordCheckerFiring records a checker finding. bank distinguishes the
// prevention engine ("sqlguard") from the audit checker bank ("auditcheck").
func RecordCheckerFiring(bank, checkerID, severity string) {
	CheckerFirings.WithLabelValues(bank, checkerID, severity).Inc()
}

// RecordDedupSuppression records a violation suppressed as a duplicate
// within the dedup filter's window.
func RecordDedupSuppression(checkerID string) {
	DedupSuppressions.WithLabelValues(checkerID).Inc()
}

// RecordStorageWrite records one storage write's outcome and latency.
func RecordStorageWrite(role, mode string, duration time.Duration, err error) {
	StorageWriteDuration.WithLabelValues(role, mode).Observe(duration.Seconds())
	if err != nil {
		StorageWriteErrors.WithLabelValues(role, mode).Inc()
	}
}

// RecordRetentionRun records the outcome of one retention job run.
func RecordRetentionRun(duration time.Duration, rowsDeleted int64, err error) {
	RetentionRunDuration.Observe(duration.Seconds())
	if err != nil {
		RetentionRunErrors.Inc()
		return
	}
	RetentionRowsDeleted.Add(float64(rowsDeleted))
}

// RecordDLQEntry records a new DLQ entry by error category.
func RecordDLQEntry(category string) {
	DLQMessagesAdded.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Inc()
}

// RecordDLQRemoval records a DLQ entry removed after a successful retry.
func RecordDLQRemoval(category string) {
	DLQMessagesRemoved.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Dec()
}

// RecordDLQExpiry records a DLQ entry dropped for exceeding retention or
// capacity.
func RecordDLQExpiry(category string) {
	DLQMessagesExpired.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Dec()
}

// RecordDLQRetry records the outcome of a DLQ retry attempt.
func RecordDLQRetry(success bool) {
	DLQRetryAttempts.Inc()
	if success {
		DLQRetrySuccesses.Inc()
	} else {
		DLQRetryFailures.Inc()
	}
}

// UpdateDLQGauges refreshes the point-in-time DLQ gauges. Called
// periodically rather than per-event, since gauges need only be as fresh
// as the scrape interval.
func UpdateDLQGauges(totalEntries int64, oldestEntryAge float64, entriesByCategory map[string]int64) {
	DLQEntriesTotal.Set(float64(totalEntries))
	DLQOldestEntryAge.Set(oldestEntryAge)
	for category, count := range entriesByCategory {
		DLQEntriesByCategory.WithLabelValues(category).Set(float64(count))
	}
}

// RecordNATSPublish records one audit event published to the broker.
func RecordNATSPublish() {
	NATSMessagesPublished.Inc()
}

// RecordNATSConsume records one message consumed from the broker.
func RecordNATSConsume() {
	NATSMessagesConsumed.Inc()
}

// RecordNATSProcessed records one event successfully turned into a report.
func RecordNATSProcessed() {
	NATSMessagesProcessed.Inc()
}

// RecordNATSDeduplicated records one message dropped as a duplicate
// delivery.
func RecordNATSDeduplicated() {
	NATSMessagesDeduplicated.Inc()
}

// RecordNATSParseFailed records one message that failed to decode.
func RecordNATSParseFailed() {
	NATSMessagesParseFailed.Inc()
}

// RecordNATSProcessingDuration records one event's processing latency.
func RecordNATSProcessingDuration(duration time.Duration) {
	NATSProcessingDuration.Observe(duration.Seconds())
}

// RecordNATSBatchFlush records a batch flush's duration and size.
func RecordNATSBatchFlush(duration time.Duration, batchSize int) {
	NATSBatchFlushDuration.Observe(duration.Seconds())
	NATSBatchSize.Observe(float64(batchSize))
}

// UpdateNATSQueueDepth updates the worker pool's queue-depth gauge.
func UpdateNATSQueueDepth(depth int64) {
	NATSQueueDepth.Set(float64(depth))
}

// UpdateNATSConsumerLag updates the broker consumer-lag gauge.
func UpdateNATSConsumerLag(lag int64) {
	NATSConsumerLag.Set(float64(lag))
}
