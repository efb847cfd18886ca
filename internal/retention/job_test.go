// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
)

type fakeLogStore struct {
	deleteErr    error
	deletedCount int64
	lastCutoff   time.Time
	calls        int
}

func (f *fakeLogStore) Log(ctx context.Context, r *auditmodel.AuditReport) error { return nil }
func (f *fakeLogStore) LogBatch(ctx context.Context, rs []*auditmodel.AuditReport) error {
	return nil
}
func (f *fakeLogStore) FindByTimeRange(ctx context.Context, start, end time.Time) ([]*auditmodel.AuditReport, error) {
	return nil, nil
}
func (f *fakeLogStore) CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.deletedCount, nil
}
func (f *fakeLogStore) Close() error { return nil }

func TestJob_RunOnce_Success(t *testing.T) {
	store := &fakeLogStore{deletedCount: 42}
	cfg := DefaultConfig()
	cfg.LogRetentionDays = 90

	job, err := NewJob(cfg, store)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 DeleteOlderThan call, got %d", store.calls)
	}

	wantCutoff := time.Now().UTC().AddDate(0, 0, -90)
	if store.lastCutoff.Sub(wantCutoff).Abs() > time.Minute {
		t.Errorf("cutoff = %v, want approximately %v", store.lastCutoff, wantCutoff)
	}

	at, lastErr := job.LastRun()
	if at.IsZero() || lastErr != nil {
		t.Errorf("LastRun = %v, %v; want non-zero time, nil error", at, lastErr)
	}
}

func TestJob_RunOnce_FailureIsRetriableNextTick(t *testing.T) {
	store := &fakeLogStore{deleteErr: errors.New("store unavailable")}
	job, err := NewJob(DefaultConfig(), store)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	if err := job.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error from RunOnce")
	}

	_, lastErr := job.LastRun()
	if lastErr == nil {
		t.Error("expected LastRun to report the failure")
	}

	// A subsequent tick retries with a fresh cutoff rather than being stuck.
	store.deleteErr = nil
	store.deletedCount = 1
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("retry RunOnce: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected 2 total calls, got %d", store.calls)
	}
}

func TestNewJob_InvalidCron(t *testing.T) {
	store := &fakeLogStore{}
	cfg := DefaultConfig()
	cfg.Cron = "not a cron"
	if _, err := NewJob(cfg, store); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
