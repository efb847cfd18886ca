// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditcheck"
	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/storage"
)

func newTestMessage(ctx context.Context, payload []byte) *message.Message {
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	return msg
}

// alwaysSafeChecker is a checker stub that never flags anything, exercising
// the Bank.Run → BuildReport → persist happy path.
type alwaysSafeChecker struct{}

func (alwaysSafeChecker) ID() string { return "always-safe" }
func (alwaysSafeChecker) Audit(*auditmodel.AuditEvent) *auditmodel.RiskScore { return nil }

// fakePair is an in-memory storage.Pair double: Metadata and Log are the
// same struct so tests can assert both halves were written.
type fakePair struct {
	mu          sync.Mutex
	saved       []*auditmodel.AuditReport
	logged      []*auditmodel.AuditReport
	saveErr     error
	logErr      error
	failNSaves  int
	failNLogs   int
}

func (f *fakePair) Save(_ context.Context, report *auditmodel.AuditReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNSaves > 0 {
		f.failNSaves--
		return errors.New("save temporarily unavailable")
	}
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, report)
	return nil
}

func (f *fakePair) FindReport(context.Context, string) (*auditmodel.AuditReport, error) { return nil, nil }
func (f *fakePair) FindByStatementID(context.Context, string) ([]*auditmodel.AuditReport, error) {
	return nil, nil
}

func (f *fakePair) Log(_ context.Context, report *auditmodel.AuditReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNLogs > 0 {
		f.failNLogs--
		return errors.New("log store temporarily unavailable")
	}
	if f.logErr != nil {
		return f.logErr
	}
	f.logged = append(f.logged, report)
	return nil
}

func (f *fakePair) LogBatch(ctx context.Context, reports []*auditmodel.AuditReport) error {
	for _, r := range reports {
		if err := f.Log(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
func (f *fakePair) FindByTimeRange(context.Context, time.Time, time.Time) ([]*auditmodel.AuditReport, error) {
	return nil, nil
}
func (f *fakePair) CountByTimeRange(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakePair) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakePair) Close() error                                              { return nil }

func newTestPipeline(t *testing.T, pair *fakePair) *Pipeline {
	t.Helper()
	bank := auditcheck.NewBank(alwaysSafeChecker{})
	dlq, err := NewDLQHandler(DefaultDLQConfig())
	if err != nil {
		t.Fatalf("NewDLQHandler() error = %v", err)
	}
	storePair := &storage.Pair{Metadata: pair, Log: pair}
	cfg := DefaultWorkerPoolConfig()
	cfg.WorkerCount = 2
	cfg.QueueDepth = 8
	cfg.DrainTimeout = time.Second
	return NewPipeline(cfg, bank, storePair, dlq)
}

func TestPipeline_ProcessWritesBothStores(t *testing.T) {
	t.Parallel()

	pair := &fakePair{}
	p := newTestPipeline(t, pair)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	p.process(ctx, job{event: newTestEvent("sql-1"), messageID: "m1"}, nil)

	pair.mu.Lock()
	defer pair.mu.Unlock()
	if len(pair.saved) != 1 || len(pair.logged) != 1 {
		t.Fatalf("saved=%d logged=%d, want 1 and 1", len(pair.saved), len(pair.logged))
	}
}

func TestPipeline_PersistFailureGoesToDLQ(t *testing.T) {
	t.Parallel()

	pair := &fakePair{saveErr: errors.New("boom")}
	p := newTestPipeline(t, pair)

	ctx := context.Background()
	p.process(ctx, job{event: newTestEvent("sql-2"), messageID: "m2"}, nil)

	if p.dlq.Len() != 1 {
		t.Fatalf("dlq.Len() = %d, want 1 after persist failure", p.dlq.Len())
	}
}

func TestPipeline_RetryDueSucceedsAfterStoreRecovers(t *testing.T) {
	t.Parallel()

	pair := &fakePair{failNSaves: 1}
	p := newTestPipeline(t, pair)

	ctx := context.Background()
	p.process(ctx, job{event: newTestEvent("sql-3"), messageID: "m3"}, nil)
	if p.dlq.Len() != 1 {
		t.Fatalf("dlq.Len() = %d, want 1 after first failure", p.dlq.Len())
	}

	// NextRetry is backed off into the future; force it due now.
	due := p.dlq.DueForRetry(time.Now().Add(time.Hour))
	if len(due) != 1 {
		t.Fatalf("DueForRetry() = %d, want 1", len(due))
	}

	retried := p.RetryDueAt(ctx, time.Now().Add(time.Hour))
	if retried != 1 {
		t.Fatalf("RetryDueAt() = %d, want 1", retried)
	}
	if p.dlq.Len() != 0 {
		t.Errorf("dlq.Len() after successful retry = %d, want 0", p.dlq.Len())
	}
}

func TestPipeline_HandlerEnqueuesDecodedEvent(t *testing.T) {
	t.Parallel()

	pair := &fakePair{}
	p := newTestPipeline(t, pair)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	event := newTestEvent("sql-4")
	payload, err := event.MarshalCanonicalJSON()
	if err != nil {
		t.Fatalf("MarshalCanonicalJSON() error = %v", err)
	}

	msg := newTestMessage(ctx, payload)
	handler := p.Handler()
	if err := handler(msg); err != nil {
		t.Fatalf("handler() error = %v", err)
	}

	deadline := time.After(time.Second)
	for {
		pair.mu.Lock()
		n := len(pair.logged)
		pair.mu.Unlock()
		if n == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("event was not processed within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPipeline_HandlerRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	pair := &fakePair{}
	p := newTestPipeline(t, pair)
	handler := p.Handler()

	err := handler(newTestMessage(context.Background(), []byte("not json")))
	if !IsPermanentError(err) {
		t.Fatalf("expected a permanent error for malformed payload, got %v", err)
	}
}
