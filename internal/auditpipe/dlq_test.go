// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	"errors"
	"testing"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

func newTestEvent(sqlID string) *auditmodel.AuditEvent {
	return auditmodel.NewAuditEvent("SELECT 1", sqlguard.CommandSelect, sqlID, "orders-db")
}

func TestDLQEntry_Creation(t *testing.T) {
	t.Parallel()

	event := newTestEvent("sql-1")
	originalErr := errors.New("connection refused")
	entry := newDLQEntry(event, originalErr, "msg-1")

	if entry.Event != event {
		t.Fatal("entry.Event should be the event passed in")
	}
	if entry.OriginalError != originalErr.Error() {
		t.Errorf("OriginalError = %q, want %q", entry.OriginalError, originalErr.Error())
	}
	if entry.MessageID != "msg-1" {
		t.Errorf("MessageID = %q, want msg-1", entry.MessageID)
	}
	if entry.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", entry.RetryCount)
	}
	if entry.FirstFailure.IsZero() || entry.LastFailure.IsZero() {
		t.Error("FirstFailure and LastFailure should be set")
	}
}

func TestDLQEntry_CategoryFromError(t *testing.T) {
	t.Parallel()

	event := newTestEvent("sql-1")

	retryable := newDLQEntry(event, NewRetryableError("timed out", nil, ErrorCategoryTimeout), "m1")
	if retryable.Category != ErrorCategoryTimeout {
		t.Errorf("Category = %v, want ErrorCategoryTimeout", retryable.Category)
	}

	permanent := newDLQEntry(event, NewPermanentError("bad payload", nil), "m2")
	if permanent.Category != ErrorCategoryValidation {
		t.Errorf("Category = %v, want ErrorCategoryValidation", permanent.Category)
	}

	unknown := newDLQEntry(event, errors.New("plain error"), "m3")
	if unknown.Category != ErrorCategoryUnknown {
		t.Errorf("Category = %v, want ErrorCategoryUnknown", unknown.Category)
	}
}

func TestErrorIdentification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		isRetryable bool
		isPermanent bool
	}{
		{"retryable", NewRetryableError("timeout", nil, ErrorCategoryTimeout), true, false},
		{"permanent", NewPermanentError("invalid sql", nil), false, true},
		{"wrapped retryable", NewRetryableError("db error", errors.New("refused"), ErrorCategoryConnection), true, false},
		{"plain error", errors.New("unrelated"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.isRetryable {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.isRetryable)
			}
			if got := IsPermanentError(tt.err); got != tt.isPermanent {
				t.Errorf("IsPermanentError() = %v, want %v", got, tt.isPermanent)
			}
		})
	}
}

func TestDLQHandler_AddEntryAndRetry(t *testing.T) {
	t.Parallel()

	cfg := DefaultDLQConfig()
	cfg.MaxRetries = 2
	cfg.InitialBackoff = time.Millisecond
	cfg.RandomSeed = 1

	h, err := NewDLQHandler(cfg)
	if err != nil {
		t.Fatalf("NewDLQHandler() error = %v", err)
	}

	event := newTestEvent("sql-1")
	entry := h.AddEntry(event, NewRetryableError("write failed", nil, ErrorCategoryStorage), "msg-1")
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}

	time.Sleep(5 * time.Millisecond)
	due := h.DueForRetry(time.Now())
	if len(due) != 1 || due[0].MessageID != entry.MessageID {
		t.Fatalf("DueForRetry() returned %d entries, want 1 matching %s", len(due), entry.MessageID)
	}

	h.RecordRetryOutcome(entry.MessageID, false, errors.New("still failing"))
	if h.Len() != 1 {
		t.Fatalf("Len() after one failed retry = %d, want 1 (under MaxRetries)", h.Len())
	}

	h.RecordRetryOutcome(entry.MessageID, false, errors.New("still failing"))
	if h.Len() != 0 {
		t.Fatalf("Len() after exhausting MaxRetries = %d, want 0", h.Len())
	}
}

func TestDLQHandler_RetryOutcomeSuccessRemovesEntry(t *testing.T) {
	t.Parallel()

	h, err := NewDLQHandler(DefaultDLQConfig())
	if err != nil {
		t.Fatalf("NewDLQHandler() error = %v", err)
	}

	entry := h.AddEntry(newTestEvent("sql-2"), NewRetryableError("timeout", nil, ErrorCategoryTimeout), "msg-2")
	h.RecordRetryOutcome(entry.MessageID, true, nil)

	if h.Len() != 0 {
		t.Errorf("Len() after successful retry = %d, want 0", h.Len())
	}
}

func TestDLQHandler_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	cfg := DefaultDLQConfig()
	cfg.MaxEntries = 2
	h, err := NewDLQHandler(cfg)
	if err != nil {
		t.Fatalf("NewDLQHandler() error = %v", err)
	}

	h.AddEntry(newTestEvent("sql-1"), errors.New("e1"), "msg-1")
	time.Sleep(time.Millisecond)
	h.AddEntry(newTestEvent("sql-2"), errors.New("e2"), "msg-2")
	time.Sleep(time.Millisecond)
	h.AddEntry(newTestEvent("sql-3"), errors.New("e3"), "msg-3")

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after eviction", h.Len())
	}
	if h.entries.Get("msg-1") != nil {
		t.Error("oldest entry msg-1 should have been evicted")
	}
}

func TestNewDLQHandler_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewDLQHandler(DLQConfig{MaxRetries: 0, MaxEntries: 1, InitialBackoff: time.Second}); err == nil {
		t.Error("expected error for MaxRetries <= 0")
	}
	if _, err := NewDLQHandler(DLQConfig{MaxRetries: 1, MaxEntries: 0, InitialBackoff: time.Second}); err == nil {
		t.Error("expected error for MaxEntries <= 0")
	}
	if _, err := NewDLQHandler(DLQConfig{MaxRetries: 1, MaxEntries: 1, InitialBackoff: 0}); err == nil {
		t.Error("expected error for InitialBackoff <= 0")
	}
}
