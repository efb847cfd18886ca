// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	"context"
	"sync"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
)

// DLQRetryLoop periodically retries dead-lettered events against storage on
// a ticker, so a transient storage outage recovers without waiting for a
// new event to arrive and without occupying a worker-pool slot per retry
// (SPEC_FULL.md §7).
type DLQRetryLoop struct {
	pipeline *Pipeline
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDLQRetryLoop builds a retry loop against pipeline, ticking every
// interval. A non-positive interval defaults to one minute.
func NewDLQRetryLoop(pipeline *Pipeline, interval time.Duration) *DLQRetryLoop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DLQRetryLoop{pipeline: pipeline, interval: interval, stop: make(chan struct{})}
}

// Start launches the ticker loop in the background.
func (l *DLQRetryLoop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (l *DLQRetryLoop) Stop() {
	close(l.stop)
	l.wg.Wait()
}

func (l *DLQRetryLoop) run(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			if n := l.pipeline.RetryDue(ctx); n > 0 {
				logging.Info().Int("retried", n).Msg("dead letter queue retry pass completed")
			}
		}
	}
}
