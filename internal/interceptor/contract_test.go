// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package interceptor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

type captureWriter struct {
	mu     sync.Mutex
	events []*auditmodel.AuditEvent
}

func (w *captureWriter) Write(_ context.Context, event *auditmodel.AuditEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
}

func (w *captureWriter) WriteBatch(ctx context.Context, events []*auditmodel.AuditEvent) {
	for _, e := range events {
		w.Write(ctx, e)
	}
}

func (w *captureWriter) last() *auditmodel.AuditEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.events) == 0 {
		return nil
	}
	return w.events[len(w.events)-1]
}

func newTestAdapter(t *testing.T, strategy ViolationStrategy) (*Adapter, *captureWriter) {
	t.Helper()
	engine := sqlguard.NewEngine(sqlguard.NewConfigStore(sqlguard.DefaultCheckerConfig()))
	writer := &captureWriter{}
	return NewAdapter(engine, writer, sqlguard.LayerPoolLevel, strategy), writer
}

func TestAdapter_BlockStrategyRejectsViolatingStatement(t *testing.T) {
	a, _ := newTestAdapter(t, StrategyBlock)

	_, err := a.Before(context.Background(), "call-1", "db", "UPDATE user SET status = 'X'", nil)
	if err == nil {
		t.Fatalf("expected Block strategy to return an error for a missing WHERE clause")
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected a *BlockedError, got %T", err)
	}
}

func TestAdapter_WarnStrategyProceedsDespiteViolation(t *testing.T) {
	a, _ := newTestAdapter(t, StrategyWarn)

	_, err := a.Before(context.Background(), "call-2", "db", "UPDATE user SET status = 'X'", nil)
	if err != nil {
		t.Fatalf("expected Warn strategy not to block, got %v", err)
	}
}

func TestAdapter_AfterEmitsAuditEventWithPreExecutionViolations(t *testing.T) {
	a, writer := newTestAdapter(t, StrategyWarn)

	ctx := context.Background()
	callID := "call-3"
	if _, err := a.Before(ctx, callID, "db", "UPDATE user SET status = 'X'", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.After(ctx, callID, "db", 1, nil)

	event := writer.last()
	if event == nil {
		t.Fatalf("expected an audit event to be written")
	}
	if len(event.PreExecViolations) == 0 {
		t.Fatalf("expected pre-execution violations to be carried into the audit event")
	}
	if event.RowsAffected != 1 {
		t.Fatalf("expected rowsAffected 1, got %d", event.RowsAffected)
	}
}

func TestAdapter_AfterWithoutMatchingBeforeDoesNotPanic(t *testing.T) {
	a, writer := newTestAdapter(t, StrategyLog)

	a.After(context.Background(), "never-called-before", "db", 0, nil)
	if writer.last() != nil {
		t.Fatalf("expected no audit event when there is no matching Before call")
	}
}

func TestAdapter_ReleaseClearsStashWithoutEmitting(t *testing.T) {
	a, writer := newTestAdapter(t, StrategyLog)

	ctx := context.Background()
	callID := "call-4"
	if _, err := a.Before(ctx, callID, "db", "SELECT * FROM user WHERE id = 1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Release(callID)
	a.After(ctx, callID, "db", 1, nil)

	if writer.last() != nil {
		t.Fatalf("expected Release to clear the stash so the later After is a no-op")
	}
}
