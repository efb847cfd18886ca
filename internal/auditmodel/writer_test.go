// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package auditmodel

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu       sync.Mutex
	fail     bool
	received []*AuditEvent
}

func (s *recordingSink) Publish(_ context.Context, event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return ErrSinkUnavailable
	}
	s.received = append(s.received, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestSpooledWriter_WritesThroughWhenSinkHealthy(t *testing.T) {
	sink := &recordingSink{}
	w, err := NewSpooledWriter(sink, filepath.Join(t.TempDir(), "spool"), time.Hour)
	if err != nil {
		t.Fatalf("unexpected error opening spool: %v", err)
	}
	defer w.Close()

	event := NewAuditEvent("SELECT 1", "SELECT", "test:db:1", "db")
	w.Write(context.Background(), event)

	if sink.count() != 1 {
		t.Fatalf("expected event delivered to sink, got %d", sink.count())
	}
	if w.PendingCount() != 0 {
		t.Fatalf("expected no pending spooled events, got %d", w.PendingCount())
	}
}

func TestSpooledWriter_SpoolsOnSinkFailure(t *testing.T) {
	sink := &recordingSink{fail: true}
	w, err := NewSpooledWriter(sink, filepath.Join(t.TempDir(), "spool"), time.Hour)
	if err != nil {
		t.Fatalf("unexpected error opening spool: %v", err)
	}
	defer w.Close()

	event := NewAuditEvent("UPDATE user SET x = 1", "UPDATE", "test:db:2", "db")
	w.Write(context.Background(), event)

	if sink.count() != 0 {
		t.Fatalf("expected no event delivered while sink is down, got %d", sink.count())
	}
	if w.PendingCount() != 1 {
		t.Fatalf("expected one spooled event, got %d", w.PendingCount())
	}
}

func TestSpooledWriter_ReplaysOnceSinkRecovers(t *testing.T) {
	sink := &recordingSink{fail: true}
	w, err := NewSpooledWriter(sink, filepath.Join(t.TempDir(), "spool"), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error opening spool: %v", err)
	}
	defer w.Close()

	event := NewAuditEvent("DELETE FROM user WHERE id = 1", "DELETE", "test:db:3", "db")
	w.Write(context.Background(), event)
	if w.PendingCount() != 1 {
		t.Fatalf("expected spooled event before recovery")
	}

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	deadline := time.After(2 * time.Second)
	for w.PendingCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("spool was never replayed after sink recovery")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if sink.count() != 1 {
		t.Fatalf("expected replayed event delivered to sink, got %d", sink.count())
	}
}

func TestBuildReport_AggregatesMaxSeverity(t *testing.T) {
	event := NewAuditEvent("SELECT 1", "SELECT", "test:db:4", "db")
	results := []CheckerResult{
		{CheckerID: "SlowQuery", Score: nil},
		{CheckerID: "LargeResult", Score: &RiskScore{Severity: 3, Confidence: 80, Justification: "result too large"}},
		{CheckerID: "ErrorPattern", Score: &RiskScore{Severity: 2, Confidence: 60, Justification: "syntax error pattern"}},
	}

	report := BuildReport(event, results)
	if report.Aggregated.Severity != 3 {
		t.Fatalf("expected aggregated severity 3, got %d", report.Aggregated.Severity)
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected all checker results retained even when no finding, got %d", len(report.Results))
	}
}

func TestNewReportID_StableWithinBucket(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	later := base.Add(10 * time.Second)

	if NewReportID("sql-1", base) != NewReportID("sql-1", later) {
		t.Fatalf("expected identical bucket to produce identical reportId")
	}

	muchLater := base.Add(2 * time.Minute)
	if NewReportID("sql-1", base) == NewReportID("sql-1", muchLater) {
		t.Fatalf("expected distinct buckets to produce distinct reportId")
	}
}
