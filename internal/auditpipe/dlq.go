// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/cache"
	"github.com/wmenjoy/sql-tools-sub019/internal/metrics"
)

// ErrorCategory categorizes a processing failure for DLQ routing and
// metrics.
type ErrorCategory int

const (
	ErrorCategoryUnknown ErrorCategory = iota
	ErrorCategoryConnection
	ErrorCategoryTimeout
	ErrorCategoryValidation
	ErrorCategoryStorage
	ErrorCategoryCapacity
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryConnection:
		return "connection"
	case ErrorCategoryTimeout:
		return "timeout"
	case ErrorCategoryValidation:
		return "validation"
	case ErrorCategoryStorage:
		return "storage"
	case ErrorCategoryCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// RetryableError marks a transient failure (broker fetch, store write)
// eligible for the pipeline's exponential backoff retry per SPEC_FULL.md §7.
type RetryableError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

func NewRetryableError(message string, cause error, category ErrorCategory) *RetryableError {
	return &RetryableError{Message: message, Cause: cause, Category: category}
}

func (e *RetryableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error { return e.Cause }

// PermanentError marks a failure that will never succeed on retry
// (malformed event, invariant violation). IsPermanentError reports whether
// an error carries this marking.
type PermanentError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

func NewPermanentError(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause, Category: ErrorCategoryValidation}
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// IsRetryableError reports whether err (or something it wraps) is a
// RetryableError.
func IsRetryableError(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// IsPermanentError reports whether err (or something it wraps) is a
// PermanentError.
func IsPermanentError(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// DLQEntry is one event that failed processing in the audit pipeline
// worker pool and is queued for retry or operator inspection.
type DLQEntry struct {
	Event         *auditmodel.AuditEvent
	MessageID     string
	OriginalError string
	LastError     string
	RetryCount    int
	FirstFailure  time.Time
	LastFailure   time.Time
	NextRetry     time.Time
	Category      ErrorCategory
}

func newDLQEntry(event *auditmodel.AuditEvent, err error, messageID string) *DLQEntry {
	now := time.Now()
	category := ErrorCategoryUnknown

	var retryErr *RetryableError
	var permErr *PermanentError
	switch {
	case errors.As(err, &retryErr):
		category = retryErr.Category
	case errors.As(err, &permErr):
		category = permErr.Category
	}

	return &DLQEntry{
		Event:         event,
		MessageID:     messageID,
		OriginalError: err.Error(),
		LastError:     err.Error(),
		FirstFailure:  now,
		LastFailure:   now,
		NextRetry:     now,
		Category:      category,
	}
}

// DLQConfig controls retry scheduling and capacity for the dead letter
// queue backing the audit pipeline's worker-boundary error handling
// (SPEC_FULL.md §7: "always caught at the worker boundary ... re-queued or
// dead-lettered per policy").
type DLQConfig struct {
	MaxRetries        int
	MaxEntries        int
	RetentionTime     time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFraction    float64
	RandomSeed        int64
}

// DefaultDLQConfig returns production defaults.
func DefaultDLQConfig() DLQConfig {
	return DLQConfig{
		MaxRetries:        5,
		MaxEntries:        10000,
		RetentionTime:     7 * 24 * time.Hour,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// DLQHandler manages the dead letter queue for audit events that failed
// processing. Entries are ordered by first-failure time in a bounded
// min-heap so eviction under capacity is O(log n), never a linear scan.
type DLQHandler struct {
	config DLQConfig

	mu      sync.RWMutex
	entries *cache.MinHeap[*DLQEntry]

	totalAdded   atomic.Int64
	totalRemoved atomic.Int64
	totalRetries atomic.Int64
	totalExpired atomic.Int64

	randMu sync.Mutex
	rng    *rand.Rand
}

// NewDLQHandler builds a DLQHandler. It rejects a non-positive MaxRetries,
// MaxEntries or InitialBackoff, and applies defaults to a zero-valued
// MaxBackoff, BackoffMultiplier or JitterFraction.
func NewDLQHandler(cfg DLQConfig) (*DLQHandler, error) {
	if cfg.MaxRetries <= 0 {
		return nil, errors.New("max retries must be positive")
	}
	if cfg.MaxEntries <= 0 {
		return nil, errors.New("max entries must be positive")
	}
	if cfg.InitialBackoff <= 0 {
		return nil, errors.New("initial backoff must be positive")
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = cfg.InitialBackoff * 64
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.JitterFraction <= 0 || cfg.JitterFraction > 1.0 {
		cfg.JitterFraction = 0.1
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &DLQHandler{
		config:  cfg,
		entries: cache.NewMinHeap[*DLQEntry](cfg.MaxEntries),
		//nolint:gosec // G404: non-cryptographic jitter for backoff timing
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// AddEntry records a failed event, computing its first retry time from the
// backoff schedule. If the DLQ is at capacity, the oldest entry is evicted.
// It returns the new entry.
func (h *DLQHandler) AddEntry(event *auditmodel.AuditEvent, err error, messageID string) *DLQEntry {
	entry := newDLQEntry(event, err, messageID)

	h.mu.Lock()
	defer h.mu.Unlock()

	entry.NextRetry = time.Now().Add(h.calculateBackoffLocked(0))

	evicted := h.entries.Push(messageID, entry, entry.FirstFailure)
	if evicted != nil {
		h.totalExpired.Add(1)
		metrics.RecordDLQExpiry(evicted.Value.Category.String())
	}

	h.totalAdded.Add(1)
	metrics.RecordDLQEntry(entry.Category.String())

	return entry
}

// DueForRetry returns entries whose NextRetry has passed, without removing
// them.
func (h *DLQHandler) DueForRetry(now time.Time) []*DLQEntry {
	heapEntries := h.entries.All()
	due := make([]*DLQEntry, 0, len(heapEntries))
	for _, e := range heapEntries {
		if !e.Value.NextRetry.After(now) {
			due = append(due, e.Value)
		}
	}
	return due
}

// RecordRetryOutcome updates an entry after a retry attempt. On success the
// entry is removed; on failure (if under MaxRetries) its backoff advances;
// past MaxRetries the entry is removed and the failure is permanent.
func (h *DLQHandler) RecordRetryOutcome(messageID string, success bool, retryErr error) {
	h.totalRetries.Add(1)
	metrics.RecordDLQRetry(success)

	h.mu.Lock()
	defer h.mu.Unlock()

	heapEntry := h.entries.Get(messageID)
	if heapEntry == nil {
		return
	}
	entry := heapEntry.Value

	if success {
		h.entries.Remove(messageID)
		h.totalRemoved.Add(1)
		metrics.RecordDLQRemoval(entry.Category.String())
		return
	}

	entry.RetryCount++
	entry.LastFailure = time.Now()
	if retryErr != nil {
		entry.LastError = retryErr.Error()
	}

	if entry.RetryCount >= h.config.MaxRetries {
		h.entries.Remove(messageID)
		h.totalRemoved.Add(1)
		metrics.RecordDLQRemoval(entry.Category.String())
		return
	}

	entry.NextRetry = time.Now().Add(h.calculateBackoffLocked(entry.RetryCount))
	h.entries.Update(messageID, entry.FirstFailure)
}

// PurgeExpired removes entries older than RetentionTime, reporting how many
// were dropped.
func (h *DLQHandler) PurgeExpired() int {
	cutoff := time.Now().Add(-h.config.RetentionTime)
	expired := h.entries.PopBefore(cutoff)
	for _, e := range expired {
		h.totalExpired.Add(1)
		metrics.RecordDLQExpiry(e.Value.Category.String())
	}
	return len(expired)
}

// Len returns the current number of DLQ entries.
func (h *DLQHandler) Len() int {
	return h.entries.Len()
}

// calculateBackoffLocked computes the exponential backoff with jitter for
// the given retry attempt. Must be called with h.mu held (the jitter
// source is separately synchronized).
func (h *DLQHandler) calculateBackoffLocked(attempt int) time.Duration {
	backoff := float64(h.config.InitialBackoff) * math.Pow(h.config.BackoffMultiplier, float64(attempt))
	if backoff > float64(h.config.MaxBackoff) {
		backoff = float64(h.config.MaxBackoff)
	}

	h.randMu.Lock()
	jitter := (h.rng.Float64()*2 - 1) * h.config.JitterFraction * backoff
	h.randMu.Unlock()

	result := time.Duration(backoff + jitter)
	if result < 0 {
		result = 0
	}
	return result
}
