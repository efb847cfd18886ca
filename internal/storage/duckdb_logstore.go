// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

// DuckDBLogStore is the embedded-columnar LogStore used by ModeFullPgClickhouse
// (standing in for ClickHouse) and by ModePgOnly.
type DuckDBLogStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBLogStore wraps the already-open db and ensures the audit_reports table exists.
func NewDuckDBLogStore(ctx context.Context, db *sql.DB) (*DuckDBLogStore, error) {
	s := &DuckDBLogStore{db: db}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DuckDBLogStore) createTable(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS audit_reports (
			report_id TEXT PRIMARY KEY,
			sql_id TEXT NOT NULL,
			statement_id TEXT NOT NULL,
			datasource TEXT NOT NULL,
			command TEXT NOT NULL,
			sql_text TEXT NOT NULL,
			execution_time_ms BIGINT NOT NULL,
			rows_affected BIGINT NOT NULL,
			error_message TEXT,
			severity TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			justification TEXT NOT NULL,
			checker_results JSON NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_audit_reports_timestamp ON audit_reports(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_reports_statement_id ON audit_reports(statement_id);
		CREATE INDEX IF NOT EXISTS idx_audit_reports_severity ON audit_reports(severity);
	`
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	logging.Info().Msg("audit_reports table created/verified")
	return nil
}

const insertReportQuery = `
	INSERT INTO audit_reports (
		report_id, sql_id, statement_id, datasource, command, sql_text,
		execution_time_ms, rows_affected, error_message,
		severity, confidence, justification, checker_results, event_timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (report_id) DO NOTHING
`

// Log persists a single report. Idempotent on reportID: a redelivered
// event from the at-least-once broker resolves to the same report ID
// within its time bucket and is silently deduplicated.
func (s *DuckDBLogStore) Log(ctx context.Context, report *auditmodel.AuditReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := reportParams(report)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertReportQuery, params...); err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}
	return nil
}

// LogBatch persists reports within a single transaction.
func (s *DuckDBLogStore) LogBatch(ctx context.Context, reports []*auditmodel.AuditReport) error {
	if len(reports) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertReportQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, report := range reports {
		params, err := reportParams(report)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, params...); err != nil {
			return fmt.Errorf("failed to save audit report %s: %w", report.ReportID, err)
		}
	}
	return tx.Commit()
}

func reportParams(report *auditmodel.AuditReport) ([]interface{}, error) {
	checkerJSON, err := json.Marshal(report.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checker results: %w", err)
	}
	return []interface{}{
		report.ReportID,
		report.SqlID,
		report.Event.StatementID,
		report.Event.Datasource,
		string(report.Event.Command),
		report.Event.SQL,
		report.Event.ExecutionTimeMs,
		report.Event.RowsAffected,
		report.Event.ErrorMessage,
		report.Aggregated.Severity.String(),
		report.Aggregated.Confidence,
		report.Aggregated.Justification,
		string(checkerJSON),
		report.Event.Timestamp,
	}, nil
}

const selectReportColumns = `
	report_id, sql_id, statement_id, datasource, command, sql_text,
	execution_time_ms, rows_affected, error_message,
	severity, confidence, justification,
	CAST(checker_results AS VARCHAR), event_timestamp
`

// FindByTimeRange returns reports with event_timestamp in [start, end),
// ordered oldest-first.
func (s *DuckDBLogStore) FindByTimeRange(ctx context.Context, start, end time.Time) ([]*auditmodel.AuditReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT %s FROM audit_reports
		WHERE event_timestamp >= ? AND event_timestamp < ?
		ORDER BY event_timestamp ASC
	`, selectReportColumns)

	rows, err := s.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit reports: %w", err)
	}
	defer rows.Close()

	var reports []*auditmodel.AuditReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to scan audit report row")
			continue
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit reports: %w", err)
	}
	return reports, nil
}

// CountByTimeRange returns the number of reports with event_timestamp in
// [start, end).
func (s *DuckDBLogStore) CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	query := `SELECT COUNT(*) FROM audit_reports WHERE event_timestamp >= ? AND event_timestamp < ?`
	if err := s.db.QueryRowContext(ctx, query, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit reports: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes reports whose event_timestamp predates cutoff,
// returning the number of rows removed. This is the retention job's only
// write path into the log store.
func (s *DuckDBLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_reports WHERE event_timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit reports: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	if count > 0 {
		logging.Info().Int64("deleted", count).Time("cutoff", cutoff).Msg("deleted expired audit reports")
	}
	return count, nil
}

// Close closes the underlying database handle.
func (s *DuckDBLogStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func commandFromString(s string) sqlguard.CommandType {
	return sqlguard.CommandType(s)
}

func severityFromString(s string) sqlguard.RiskLevel {
	switch s {
	case "Low":
		return sqlguard.RiskLow
	case "Medium":
		return sqlguard.RiskMedium
	case "High":
		return sqlguard.RiskHigh
	case "Critical":
		return sqlguard.RiskCritical
	default:
		return sqlguard.RiskSafe
	}
}

func scanReport(row rowScanner) (*auditmodel.AuditReport, error) {
	var (
		reportID, sqlID, statementID, datasource, command, sqlText string
		executionTimeMs, rowsAffected                               int64
		errorMessage                                                 sql.NullString
		severity, justification                                      string
		confidence                                                   int
		checkerResultsJSON                                           string
		eventTimestamp                                               time.Time
	)
	if err := row.Scan(
		&reportID, &sqlID, &statementID, &datasource, &command, &sqlText,
		&executionTimeMs, &rowsAffected, &errorMessage,
		&severity, &confidence, &justification,
		&checkerResultsJSON, &eventTimestamp,
	); err != nil {
		return nil, err
	}

	var results []auditmodel.CheckerResult
	if err := json.Unmarshal([]byte(checkerResultsJSON), &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checker results: %w", err)
	}

	event := &auditmodel.AuditEvent{
		SqlID:           sqlID,
		SQL:             sqlText,
		StatementID:     statementID,
		Datasource:      datasource,
		ExecutionTimeMs: executionTimeMs,
		RowsAffected:    rowsAffected,
		Timestamp:       eventTimestamp,
	}
	event.Command = commandFromString(command)
	if errorMessage.Valid {
		event.ErrorMessage = &errorMessage.String
	}

	return &auditmodel.AuditReport{
		ReportID: reportID,
		SqlID:    sqlID,
		Event:    event,
		Results:  results,
		Aggregated: auditmodel.RiskScore{
			Severity:      severityFromString(severity),
			Confidence:    confidence,
			Justification: justification,
		},
		CreatedAt: eventTimestamp,
	}, nil
}
