// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package retention

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
	"github.com/wmenjoy/sql-tools-sub019/internal/storage"
)

// Config controls the retention job's schedule and cutoffs (SPEC_FULL.md
// §4.12, §6 audit.storage.retention-days / audit.storage.retention.cron).
// Metadata retention is configured separately from log retention because
// operators typically want reports to outlive the raw event log.
type Config struct {
	// Cron is a standard 5-field expression; default runs daily off-peak.
	Cron string
	// LogRetentionDays ages out raw AuditEvents from the log store.
	LogRetentionDays int
	// MetadataRetentionDays is the configured retention for AuditReports in
	// the metadata store, typically longer-lived than the log store. Job
	// does not read it: no metadata-store deletion runs in this module.
	MetadataRetentionDays int
	// Timezone the cron schedule is evaluated in. Empty means UTC.
	Timezone string
}

// DefaultConfig returns the spec's stated default: daily, off-peak (03:00
// UTC), 90-day log retention.
func DefaultConfig() Config {
	return Config{
		Cron:                  "0 3 * * *",
		LogRetentionDays:      90,
		MetadataRetentionDays: 365,
		Timezone:              "UTC",
	}
}

// LoadConfig returns DefaultConfig with environment overrides applied.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("AUDIT_RETENTION_CRON"); v != "" {
		cfg.Cron = v
	}
	if v := os.Getenv("AUDIT_RETENTION_DAYS"); v != "" {
		if d, err := parsePositiveInt(v); err == nil {
			cfg.LogRetentionDays = d
		}
	}
	if v := os.Getenv("AUDIT_METADATA_RETENTION_DAYS"); v != "" {
		if d, err := parsePositiveInt(v); err == nil {
			cfg.MetadataRetentionDays = d
		}
	}
	if v := os.Getenv("AUDIT_RETENTION_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	return cfg
}

func parsePositiveInt(s string) (int, error) {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// Job runs the cron-scheduled log-store compaction: compute a cutoff, call
// LogStore.DeleteOlderThan, log the outcome, never commit partial results
// (DeleteOlderThan is the store's own all-or-nothing range delete).
// Failures are logged and retried on the next tick (§4.12).
type Job struct {
	cfg      Config
	logStore storage.LogStore
	cron     *CronExpression
	loc      *time.Location

	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewJob builds a retention Job against the given log store. Returns an
// error if cfg.Cron or cfg.Timezone fail to parse.
func NewJob(cfg Config, logStore storage.LogStore) (*Job, error) {
	cron, err := ParseCron(cfg.Cron)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}

	return &Job{
		cfg:      cfg,
		logStore: logStore,
		cron:     cron,
		loc:      loc,
		stop:     make(chan struct{}),
	}, nil
}

// Start runs the scheduler loop in a background goroutine. Call Stop (or
// cancel ctx) to shut down; Start returns immediately.
func (j *Job) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop signals the scheduler loop to exit and waits for it to finish.
func (j *Job) Stop() {
	close(j.stop)
	j.wg.Wait()
}

// RunOnce executes one retention pass immediately, outside the schedule.
// Used by Start's loop and exposed for operator-triggered runs and tests.
func (j *Job) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.cfg.LogRetentionDays)

	deleted, err := j.logStore.DeleteOlderThan(ctx, cutoff)

	j.mu.Lock()
	j.lastRun = time.Now().UTC()
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		logging.Error().Err(err).Time("cutoff", cutoff).Msg("retention job failed, will retry next tick")
		return err
	}

	logging.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention job completed")
	return nil
}

func (j *Job) run(ctx context.Context) {
	defer j.wg.Done()

	next := j.cron.NextRun(time.Now().In(j.loc), j.loc)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-timer.C:
			if err := j.RunOnce(ctx); err != nil {
				// Never partially commit: DeleteOlderThan already failed
				// atomically, so the stored cutoff state is unchanged and
				// the next tick retries from the same starting point.
				_ = err
			}
			next = j.cron.NextRun(time.Now().In(j.loc), j.loc)
			timer.Reset(time.Until(next))
		}
	}
}

// LastRun reports when the job last ran and whether it failed.
func (j *Job) LastRun() (at time.Time, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun, j.lastErr
}
