// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// Default pool configuration values, mirrored from the pooled-connection
// pattern used elsewhere in this module's domain dependencies.
const (
	defaultMaxConns        = 25
	defaultMinConns        = 5
	defaultMaxConnLifetime = 5 * time.Minute
	defaultMaxConnIdleTime = time.Minute
)

// PostgresMetadataStore is the MetadataStore used by ModeFullPgClickhouse
// and ModePgOnly. It stores one row per report keyed by reportID, with a
// secondary index on statementID for lookups by logical statement.
type PostgresMetadataStore struct {
	pool *pgxpool.Pool
}

// NewPostgresMetadataStore connects to dsn, runs pending goose migrations
// and returns a ready store.
func NewPostgresMetadataStore(ctx context.Context, dsn string) (*PostgresMetadataStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = defaultMaxConns
	poolCfg.MinConns = defaultMinConns
	poolCfg.MaxConnLifetime = defaultMaxConnLifetime
	poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := runPostgresMigrations(dsn); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresMetadataStore{pool: pool}, nil
}

// runPostgresMigrations applies every pending migration in
// migrations/postgres through goose, using a stdlib *sql.DB since goose
// drives database/sql rather than pgx's native pool interface. The pgx
// stdlib driver registers itself as "pgx" on import and accepts the same
// DSN the pool uses.
func runPostgresMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(postgresMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations/postgres"); err != nil {
		return fmt.Errorf("failed to run postgres migrations: %w", err)
	}
	return nil
}

const insertMetadataQuery = `
	INSERT INTO audit_report_metadata (
		report_id, sql_id, statement_id, datasource, command, sql_text,
		execution_time_ms, rows_affected, error_message,
		severity, confidence, justification, checker_results, event_timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (report_id) DO NOTHING
`

// Save persists report metadata, deduplicated on reportID the same way the
// log store is. Callers that pair a metadata store with a log store (§4.11
// MysqlOnly/PgOnly/Sqlite modes) write through both via Pair.
func (s *PostgresMetadataStore) Save(ctx context.Context, report *auditmodel.AuditReport) error {
	checkerJSON, err := json.Marshal(report.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal checker results: %w", err)
	}
	_, err = s.pool.Exec(ctx, insertMetadataQuery,
		report.ReportID, report.SqlID, report.Event.StatementID, report.Event.Datasource,
		string(report.Event.Command), report.Event.SQL,
		report.Event.ExecutionTimeMs, report.Event.RowsAffected, report.Event.ErrorMessage,
		report.Aggregated.Severity.String(), report.Aggregated.Confidence, report.Aggregated.Justification,
		string(checkerJSON), report.Event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save report metadata: %w", err)
	}
	return nil
}

// FindReport looks up a single report by its primary key.
func (s *PostgresMetadataStore) FindReport(ctx context.Context, reportID string) (*auditmodel.AuditReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT report_id, sql_id, statement_id, datasource, command, sql_text,
		       execution_time_ms, rows_affected, error_message,
		       severity, confidence, justification, checker_results, event_timestamp
		FROM audit_report_metadata WHERE report_id = $1
	`, reportID)
	return scanMetadataRow(row)
}

// FindByStatementID returns every report recorded for a logical statement,
// newest first.
func (s *PostgresMetadataStore) FindByStatementID(ctx context.Context, statementID string) ([]*auditmodel.AuditReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT report_id, sql_id, statement_id, datasource, command, sql_text,
		       execution_time_ms, rows_affected, error_message,
		       severity, confidence, justification, checker_results, event_timestamp
		FROM audit_report_metadata WHERE statement_id = $1
		ORDER BY event_timestamp DESC
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports by statement id: %w", err)
	}
	defer rows.Close()

	var reports []*auditmodel.AuditReport
	for rows.Next() {
		report, err := scanMetadataRow(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresMetadataStore) Close() error {
	s.pool.Close()
	return nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanMetadataRow(row pgxRow) (*auditmodel.AuditReport, error) {
	var (
		reportID, sqlID, statementID, datasource, command, sqlText string
		executionTimeMs, rowsAffected                               int64
		errorMessage                                                 *string
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan report metadata: %w", err)
	}

	var results []auditmodel.CheckerResult
	if err := json.Unmarshal([]byte(checkerResultsJSON), &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checker results: %w", err)
	}

	event := &auditmodel.AuditEvent{
		SqlID:           sqlID,
		SQL:             sqlText,
		Command:         sqlguard.CommandType(command),
		StatementID:     statementID,
		Datasource:      datasource,
		ExecutionTimeMs: executionTimeMs,
		RowsAffected:    rowsAffected,
		ErrorMessage:    errorMessage,
		Timestamp:       eventTimestamp,
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
