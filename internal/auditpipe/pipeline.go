// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditcheck"
	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
	"github.com/wmenjoy/sql-tools-sub019/internal/metrics"
	"github.com/wmenjoy/sql-tools-sub019/internal/storage"
)

// job is one unit of work handed from the broker handler goroutine to a
// worker: the decoded event plus enough of the message to ack/nack it once
// the worker finishes.
type job struct {
	event     *auditmodel.AuditEvent
	messageID string
}

// Pipeline is the bounded worker pool that turns broker-delivered
// AuditEvents into persisted AuditReports (SPEC_FULL.md §4.10-§4.11): the
// broker handler decodes and enqueues, a fixed pool of workers runs the
// checker bank and writes through a circuit breaker, and anything that
// fails after the breaker trips or storage errors lands in the DLQ for
// retry instead of being dropped.
type Pipeline struct {
	cfg   WorkerPoolConfig
	bank  *auditcheck.Bank
	store *storage.Pair
	dlq   *DLQHandler

	metaBreaker *gobreaker.CircuitBreaker[any]
	logBreaker  *gobreaker.CircuitBreaker[any]

	queue chan job
	wg    sync.WaitGroup

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPipeline wires a checker bank and storage pair behind a bounded queue.
// Each of the two storage roles (metadata, log) gets its own breaker since
// a MySQL-only deployment shares role but ModeMysqlEs splits them across
// two different backends that can fail independently.
func NewPipeline(cfg WorkerPoolConfig, bank *auditcheck.Bank, store *storage.Pair, dlq *DLQHandler) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		bank:        bank,
		store:       store,
		dlq:         dlq,
		metaBreaker: NewStorageBreaker(DefaultCircuitBreakerConfig("audit-metadata-store")),
		logBreaker:  NewStorageBreaker(DefaultCircuitBreakerConfig("audit-log-store")),
		queue:       make(chan job, cfg.QueueDepth),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the worker pool. Workers run until ctx is canceled or
// Stop is called; Stop then waits up to DrainTimeout for queued work to
// finish.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop closes the queue to new work and blocks until in-flight jobs drain
// or DrainTimeout elapses.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.DrainTimeout):
		logging.Warn().Msg("audit pipeline drain timed out, workers still in flight")
	}
}

// Handler returns the Watermill NoPublishHandlerFunc the router's consumer
// handler runs per delivered message: it decodes the payload and enqueues
// it, applying backpressure against the bounded queue rather than
// buffering unboundedly in front of the worker pool.
func (p *Pipeline) Handler() message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		metrics.RecordNATSConsume()

		event, err := auditmodel.UnmarshalAuditEvent(msg.Payload)
		if err != nil {
			metrics.RecordNATSParseFailed()
			// Malformed payloads will never parse on redelivery either,
			// so the error is marked permanent. The router's retry
			// middleware does not inspect that marking.
			return NewPermanentError("decode audit event", err)
		}

		select {
		case p.queue <- job{event: event, messageID: msg.UUID}:
			return nil
		case <-msg.Context().Done():
			return msg.Context().Err()
		case <-p.stopCh:
			return NewRetryableError("pipeline stopping", nil, ErrorCategoryCapacity)
		}
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := logging.With().Int("worker", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.drainQueueNonBlocking(ctx)
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, j, &logger)
		}
	}
}

// drainQueueNonBlocking processes whatever is already queued after a stop
// signal, without waiting for new work.
func (p *Pipeline) drainQueueNonBlocking(ctx context.Context) {
	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, j, nil)
		default:
			return
		}
	}
}

func (p *Pipeline) process(ctx context.Context, j job, logger *zerolog.Logger) {
	start := time.Now()
	results := p.bank.Run(j.event)
	report := auditmodel.BuildReport(j.event, results)

	if err := p.persist(ctx, report); err != nil {
		metrics.RecordNATSProcessingDuration(time.Since(start))
		entry := p.dlq.AddEntry(j.event, err, j.messageID)
		if logger != nil {
			logger.Error().Err(err).Str("sql_id", j.event.SqlID).Str("message_id", entry.MessageID).Msg("audit report persist failed, queued to dead letter queue")
		}
		return
	}

	metrics.RecordNATSProcessed()
	metrics.RecordNATSProcessingDuration(time.Since(start))
}

// persist writes a report to both halves of the storage pair behind their
// respective circuit breakers. Metadata and log writes are independent;
// SPEC_FULL.md §7 only requires that a failure on either side dead-letters
// the whole event, not that both succeed atomically.
func (p *Pipeline) persist(ctx context.Context, report *auditmodel.AuditReport) error {
	_, metaErr := ExecuteWithBreaker(p.metaBreaker, func() (any, error) {
		return nil, p.store.Metadata.Save(ctx, report)
	})
	if metaErr != nil {
		return p.classifyStorageError("metadata store save", metaErr)
	}

	_, logErr := ExecuteWithBreaker(p.logBreaker, func() (any, error) {
		return nil, p.store.Log.Log(ctx, report)
	})
	if logErr != nil {
		return p.classifyStorageError("log store write", logErr)
	}
	return nil
}

func (p *Pipeline) classifyStorageError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewRetryableError(op+" rejected by open circuit breaker", err, ErrorCategoryCapacity)
	}
	return NewRetryableError(op+" failed", err, ErrorCategoryStorage)
}

// Healthy implements httpapi.HealthChecker: the pipeline is unhealthy when
// either storage breaker is open, since every write is failing outright
// rather than just running behind.
func (p *Pipeline) Healthy() (ok bool, reason string) {
	if state := BreakerState(p.metaBreaker); state == "open" {
		return false, "metadata store circuit breaker open"
	}
	if state := BreakerState(p.logBreaker); state == "open" {
		return false, "log store circuit breaker open"
	}
	return true, ""
}

// RetryDue drains due DLQ entries and retries persisting them, returning
// the number retried. A background loop (run by the caller, typically on
// a ticker) calls this to give dead-lettered events another chance without
// occupying a worker-pool slot.
func (p *Pipeline) RetryDue(ctx context.Context) int {
	return p.RetryDueAt(ctx, time.Now())
}

// RetryDueAt is RetryDue parameterized on "now", so tests can force entries
// due without sleeping past their backoff.
func (p *Pipeline) RetryDueAt(ctx context.Context, now time.Time) int {
	due := p.dlq.DueForRetry(now)
	for _, entry := range due {
		results := p.bank.Run(entry.Event)
		report := auditmodel.BuildReport(entry.Event, results)
		err := p.persist(ctx, report)
		p.dlq.RecordRetryOutcome(entry.MessageID, err == nil, err)
	}
	return len(due)
}
