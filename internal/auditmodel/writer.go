// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package auditmodel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
)

// Sink is whatever the writer hands confirmed events to: the audit
// pipeline's broker producer in production, an in-process channel in
// tests. It must not block indefinitely; Write treats a Sink error as
// "unreachable" and falls back to the spool.
type Sink interface {
	Publish(ctx context.Context, event *AuditEvent) error
}

// Writer is the contract every interceptor adapter's post-execution hook
// writes through: write/writeBatch, never propagating failure into the
// caller's execution path.
type Writer interface {
	Write(ctx context.Context, event *AuditEvent)
	WriteBatch(ctx context.Context, events []*AuditEvent)
}

// SpooledWriter sends to Sink first; on failure it durably spools the
// event to an embedded BadgerDB queue instead of dropping it, and a
// background loop periodically retries the spool against Sink. This is
// the "local append-only writer as fallback, replayed when the broker
// returns" sink pair required by SPEC_FULL.md §4.8.
type SpooledWriter struct {
	sink  Sink
	spool *badger.DB

	replayInterval time.Duration
	closeCh        chan struct{}

	spooledCount atomic.Int64
	sentCount    atomic.Int64
}

const spoolKeyPrefix = "spool:"

// NewSpooledWriter opens (or creates) the BadgerDB spool at path and starts
// the background replay loop. Following the teacher's write-ahead-log
// pattern, keys are ordered so the replay loop drains oldest-first.
func NewSpooledWriter(sink Sink, spoolPath string, replayInterval time.Duration) (*SpooledWriter, error) {
	opts := badger.DefaultOptions(spoolPath)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit event spool: %w", err)
	}

	if replayInterval <= 0 {
		replayInterval = 30 * time.Second
	}

	w := &SpooledWriter{
		sink:           sink,
		spool:          db,
		replayInterval: replayInterval,
		closeCh:        make(chan struct{}),
	}
	go w.replayLoop()
	return w, nil
}

// Write never returns an error: on a Sink failure it spools the event and
// logs; the caller's execution path is never blocked on audit delivery.
func (w *SpooledWriter) Write(ctx context.Context, event *AuditEvent) {
	if err := w.sink.Publish(ctx, event); err != nil {
		logging.Warn().Err(err).Str("sqlId", event.SqlID).Msg("audit sink unreachable, spooling event")
		if spoolErr := w.spoolOne(event); spoolErr != nil {
			logging.Error().Err(spoolErr).Str("sqlId", event.SqlID).Msg("failed to spool audit event, dropping")
		}
		return
	}
	w.sentCount.Add(1)
}

// WriteBatch writes each event independently; a failure on one event does
// not block or drop the others.
func (w *SpooledWriter) WriteBatch(ctx context.Context, events []*AuditEvent) {
	for _, e := range events {
		w.Write(ctx, e)
	}
}

func (w *SpooledWriter) spoolOne(event *AuditEvent) error {
	data, err := event.MarshalCanonicalJSON()
	if err != nil {
		return fmt.Errorf("marshal spooled event: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%020d:%s", spoolKeyPrefix, time.Now().UnixNano(), uuid.New().String()))
	if err := w.spool.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return err
	}
	w.spooledCount.Add(1)
	return nil
}

// replayLoop periodically tries to flush spooled events back to Sink. It
// mirrors the teacher's WAL compactor cadence, but replaying instead of
// compacting: a successful publish deletes the spooled key.
func (w *SpooledWriter) replayLoop() {
	ticker := time.NewTicker(w.replayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closeCh:
			return
		case <-ticker.C:
			w.replayPending()
		}
	}
}

func (w *SpooledWriter) replayPending() {
	var keys [][]byte
	var events []*AuditEvent

	err := w.spool.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(spoolKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := append([]byte(nil), item.Key()...)
			err := item.Value(func(val []byte) error {
				event, uerr := UnmarshalAuditEvent(val)
				if uerr != nil {
					return uerr
				}
				keys = append(keys, key)
				events = append(events, event)
				return nil
			})
			if err != nil {
				logging.Warn().Err(err).Msg("audit spool: skipping malformed entry")
			}
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("audit spool: replay scan failed")
		return
	}

	ctx := context.Background()
	for i, event := range events {
		if err := w.sink.Publish(ctx, event); err != nil {
			continue
		}
		if delErr := w.spool.Update(func(txn *badger.Txn) error {
			return txn.Delete(keys[i])
		}); delErr != nil {
			logging.Warn().Err(delErr).Msg("audit spool: failed to delete replayed entry")
			continue
		}
		w.sentCount.Add(1)
		w.spooledCount.Add(-1)
	}
}

// PendingCount reports how many events currently sit in the spool.
func (w *SpooledWriter) PendingCount() int64 {
	return w.spooledCount.Load()
}

// Close stops the replay loop and closes the spool database.
func (w *SpooledWriter) Close() error {
	close(w.closeCh)
	return w.spool.Close()
}

// ErrSinkUnavailable is returned by in-process test Sinks simulating a
// broker outage.
var ErrSinkUnavailable = errors.New("audit sink unavailable")
