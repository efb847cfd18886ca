// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements comprehensive application instrumentation using the Prometheus
client library, exposing metrics for monitoring the SQL safety checker bank, the audit
event pipeline, storage write health, and retention sweeps.

# Overview

The package provides metrics for:
  - Parser and dedup cache hit/miss rates
  - Checker bank firings and dedup suppressions
  - Audit pipeline ingestion via NATS JetStream
  - Dead letter queue depth and retry outcomes
  - Storage write latency and errors across storage modes
  - Retention sweep duration and rows deleted
  - Circuit breaker state transitions

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:9090/metrics

# Available Metrics

Cache Metrics:
  - cache_hits_total: Cache hits (counter)
    Labels: cache_type (parser, dedup)
  - cache_misses_total: Cache misses (counter)
    Labels: cache_type
  - cache_evictions_total: Cache evictions (counter)
    Labels: cache_type
  - cache_entries: Current cache entry count (gauge)
    Labels: cache_type

Checker Bank Metrics:
  - checker_firings_total: Checker results raised per bank run (counter)
    Labels: bank, checker_id, severity
  - dedup_suppressions_total: Duplicate findings suppressed by the
    per-goroutine dedup filter (counter)
    Labels: checker_id

Audit Pipeline (NATS) Metrics:
  - nats_messages_published_total: Events published to the audit subject (counter)
  - nats_messages_consumed_total: Messages pulled off the subscription (counter)
  - nats_messages_processed_total: Messages successfully processed (counter)
  - nats_messages_deduplicated_total: Messages dropped by the router
    deduplication middleware (counter)
  - nats_messages_parse_failed_total: Payloads that failed to decode (counter)
  - nats_processing_duration_seconds: Time from dequeue to persisted or
    dead-lettered (histogram)
  - nats_batch_flush_duration_seconds / nats_batch_size: Batch writer timing
  - nats_queue_depth: Depth of the in-process worker queue (gauge)
  - nats_consumer_lag: Estimated JetStream consumer lag (gauge)

Dead Letter Queue Metrics:
  - dlq_entries_total: Current entry count (gauge)
  - dlq_entries_by_category: Entries by error category (gauge)
    Labels: category
  - dlq_messages_added_total / dlq_messages_removed_total / dlq_messages_expired_total
  - dlq_retry_attempts_total / dlq_retry_successes_total / dlq_retry_failures_total
  - dlq_oldest_entry_age_seconds: Age of the oldest entry (gauge)

Storage Metrics:
  - storage_write_duration_seconds: Write latency (histogram)
    Labels: role (metadata, log), mode
  - storage_write_errors_total: Failed writes (counter)
    Labels: role, mode

Retention Metrics:
  - retention_rows_deleted_total: Rows removed by retention sweeps (counter)
  - retention_run_duration_seconds: Sweep duration (histogram)
  - retention_run_errors_total: Failed sweeps (counter)

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Request outcomes (counter)
    Labels: name, result
  - circuit_breaker_consecutive_failures: Current consecutive failure streak (gauge)
    Labels: name
  - circuit_breaker_state_transitions_total: State transitions (counter)
    Labels: name, from_state, to_state

System Metrics:
  - app_info: Build metadata (gauge, always 1)
    Labels: version, go_version
  - app_uptime_seconds: Process uptime (gauge)

# Usage Example

Basic setup in main.go:

	import (
	    "runtime"

	    "github.com/wmenjoy/sql-tools-sub019/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    metrics.AppInfo.WithLabelValues("1.0.0", runtime.Version()).Set(1)

	    http.Handle("/metrics", promhttp.Handler())

	    metrics.RecordCheckerFiring("default", "no-where-clause", "high")
	    metrics.RecordStorageWrite("metadata", "sqlite", elapsed, err)
	}

# Prometheus Configuration

Example prometheus.yml configuration:

	scrape_configs:
	  - job_name: 'sql-tools'
	    static_configs:
	      - targets: ['localhost:9090']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

# Example PromQL queries

	# Checker firing rate by severity
	sum(rate(checker_firings_total[5m])) by (severity)

	# Storage write error ratio
	sum(rate(storage_write_errors_total[5m])) / sum(rate(storage_write_duration_seconds_count[5m]))

	# DLQ growth
	delta(dlq_entries_total[15m])

	# Cache hit rate
	sum(rate(cache_hits_total[5m])) / (sum(rate(cache_hits_total[5m])) + sum(rate(cache_misses_total[5m])))

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# Cardinality Management

To prevent high cardinality issues:
  - checker_id is bounded by the number of registered checkers
  - storage role/mode labels are both small fixed sets
  - category labels are drawn from the fixed ErrorCategory enum

# See Also

  - internal/auditcheck: checker bank producing checker_firings_total
  - internal/auditpipe: audit pipeline and DLQ producing nats_* and dlq_* metrics
  - internal/storage: storage writers producing storage_write_* metrics
  - internal/retention: retention sweeps producing retention_* metrics
  - https://prometheus.io/docs/practices/naming/: Metric naming conventions
  - https://prometheus.io/docs/practices/instrumentation/: Instrumentation guide
*/
package metrics
