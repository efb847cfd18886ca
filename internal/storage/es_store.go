// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

const esReportsIndex = "audit-reports"

// ESLogStore is the log-store half of ModeMysqlEs and the combined store
// for ModeEsOnly. One document per report, _id set to reportID so
// redelivered events from the at-least-once broker overwrite rather than
// duplicate.
type ESLogStore struct {
	client *elasticsearch.Client
}

// esDocument is the JSON body indexed per report; it flattens AuditReport
// into the shape Elasticsearch range/term queries expect.
type esDocument struct {
	ReportID        string         `json:"reportId"`
	SqlID           string         `json:"sqlId"`
	StatementID     string         `json:"statementId"`
	Datasource      string         `json:"datasource"`
	Command         string         `json:"command"`
	SQL             string         `json:"sql"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	RowsAffected    int64          `json:"rowsAffected"`
	ErrorMessage    *string        `json:"errorMessage,omitempty"`
	Severity        string         `json:"severity"`
	Confidence      int            `json:"confidence"`
	Justification   string         `json:"justification"`
	Results         []esResult     `json:"checkerResults"`
	Timestamp       time.Time      `json:"timestamp"`
}

type esResult struct {
	CheckerID string  `json:"checkerId"`
	Severity  *string `json:"severity,omitempty"`
}

// NewESLogStore builds a client against addrs and ensures the report index
// exists.
func NewESLogStore(ctx context.Context, addrs []string) (*ESLogStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addrs})
	if err != nil {
		return nil, fmt.Errorf("failed to build elasticsearch client: %w", err)
	}

	s := &ESLogStore{client: client}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ESLogStore) ensureIndex(ctx context.Context) error {
	const mapping = `{
		"mappings": {
			"properties": {
				"reportId": {"type": "keyword"},
				"statementId": {"type": "keyword"},
				"severity": {"type": "keyword"},
				"timestamp": {"type": "date"}
			}
		}
	}`
	res, err := esapi.IndicesCreateRequest{
		Index: esReportsIndex,
		Body:  strings.NewReader(mapping),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	// A 400 "resource_already_exists_exception" means another instance
	// created the index first; that's fine, not an error.
	if res.IsError() && res.StatusCode != 400 {
		return fmt.Errorf("elasticsearch index creation failed: %s", res.String())
	}
	return nil
}

func toDocument(report *auditmodel.AuditReport) esDocument {
	results := make([]esResult, 0, len(report.Results))
	for _, r := range report.Results {
		doc := esResult{CheckerID: r.CheckerID}
		if r.Score != nil {
			sev := r.Score.Severity.String()
			doc.Severity = &sev
		}
		results = append(results, doc)
	}
	return esDocument{
		ReportID:        report.ReportID,
		SqlID:           report.SqlID,
		StatementID:     report.Event.StatementID,
		Datasource:      report.Event.Datasource,
		Command:         string(report.Event.Command),
		SQL:             report.Event.SQL,
		ExecutionTimeMs: report.Event.ExecutionTimeMs,
		RowsAffected:    report.Event.RowsAffected,
		ErrorMessage:    report.Event.ErrorMessage,
		Severity:        report.Aggregated.Severity.String(),
		Confidence:      report.Aggregated.Confidence,
		Justification:   report.Aggregated.Justification,
		Results:         results,
		Timestamp:       report.Event.Timestamp,
	}
}

// Log indexes a single report, keyed by reportID so redelivery overwrites.
func (s *ESLogStore) Log(ctx context.Context, report *auditmodel.AuditReport) error {
	body, err := json.Marshal(toDocument(report))
	if err != nil {
		return fmt.Errorf("failed to marshal report document: %w", err)
	}
	res, err := esapi.IndexRequest{
		Index:      esReportsIndex,
		DocumentID: report.ReportID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to index report: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch index failed: %s", res.String())
	}
	return nil
}

// LogBatch indexes reports one at a time. The bulk API would reduce round
// trips further, but the worker pool already batches at the channel level
// (§5), keeping per-call volume modest.
func (s *ESLogStore) LogBatch(ctx context.Context, reports []*auditmodel.AuditReport) error {
	for _, report := range reports {
		if err := s.Log(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

func (s *ESLogStore) search(ctx context.Context, query map[string]any) ([]*auditmodel.AuditReport, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	res, err := esapi.SearchRequest{
		Index: []string{esReportsIndex},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to search reports: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	reports := make([]*auditmodel.AuditReport, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		reports = append(reports, fromDocument(hit.Source))
	}
	return reports, nil
}

func fromDocument(doc esDocument) *auditmodel.AuditReport {
	event := &auditmodel.AuditEvent{
		SqlID:           doc.SqlID,
		SQL:             doc.SQL,
		Command:         sqlguard.CommandType(doc.Command),
		StatementID:     doc.StatementID,
		Datasource:      doc.Datasource,
		ExecutionTimeMs: doc.ExecutionTimeMs,
		RowsAffected:    doc.RowsAffected,
		ErrorMessage:    doc.ErrorMessage,
		Timestamp:       doc.Timestamp,
	}
	return &auditmodel.AuditReport{
		ReportID: doc.ReportID,
		SqlID:    doc.SqlID,
		Event:    event,
		Aggregated: auditmodel.RiskScore{
			Severity:      severityFromString(doc.Severity),
			Confidence:    doc.Confidence,
			Justification: doc.Justification,
		},
		CreatedAt: doc.Timestamp,
	}
}

// FindByTimeRange returns reports with timestamp in [start, end).
func (s *ESLogStore) FindByTimeRange(ctx context.Context, start, end time.Time) ([]*auditmodel.AuditReport, error) {
	return s.search(ctx, map[string]any{
		"sort": []map[string]any{{"timestamp": "asc"}},
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": start.Format(time.RFC3339Nano),
					"lt":  end.Format(time.RFC3339Nano),
				},
			},
		},
	})
}

// CountByTimeRange returns the number of reports with timestamp in
// [start, end).
func (s *ESLogStore) CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": start.Format(time.RFC3339Nano),
					"lt":  end.Format(time.RFC3339Nano),
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal count query: %w", err)
	}
	res, err := esapi.CountRequest{
		Index: []string{esReportsIndex},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count failed: %s", res.String())
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return parsed.Count, nil
}

// DeleteOlderThan removes documents whose timestamp predates cutoff via
// delete-by-query, the closest Elasticsearch analogue to a retention scan.
func (s *ESLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{"lt": cutoff.Format(time.RFC3339Nano)},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal delete query: %w", err)
	}
	res, err := esapi.DeleteByQueryRequest{
		Index: []string{esReportsIndex},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old reports: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch delete-by-query failed: %s", res.String())
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode delete response: %w", err)
	}
	if parsed.Deleted > 0 {
		logging.Info().Int64("deleted", parsed.Deleted).Time("cutoff", cutoff).Msg("deleted expired audit reports")
	}
	return parsed.Deleted, nil
}

// FindReport looks up a single report by its document ID (reportID).
func (s *ESLogStore) FindReport(ctx context.Context, reportID string) (*auditmodel.AuditReport, error) {
	res, err := esapi.GetRequest{Index: esReportsIndex, DocumentID: reportID}.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch get failed: %s", res.String())
	}

	var parsed struct {
		Source esDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode get response: %w", err)
	}
	return fromDocument(parsed.Source), nil
}

// FindByStatementID returns every report recorded for a logical statement.
func (s *ESLogStore) FindByStatementID(ctx context.Context, statementID string) ([]*auditmodel.AuditReport, error) {
	return s.search(ctx, map[string]any{
		"sort":  []map[string]any{{"timestamp": "desc"}},
		"query": map[string]any{"term": map[string]any{"statementId": statementID}},
	})
}

// Close is a no-op: the Elasticsearch client holds no socket to release
// until a request is in flight.
func (s *ESLogStore) Close() error { return nil }

// AsPair exposes one ESLogStore as both halves of a Pair for ModeEsOnly.
func (s *ESLogStore) AsPair() *Pair {
	return &Pair{Metadata: s, Log: s}
}

// Save persists an AuditReport's metadata. ModeEsOnly indexes both roles
// into the same single index, so Save is just Log under the
// MetadataStore name the pipeline writes through.
func (s *ESLogStore) Save(ctx context.Context, report *auditmodel.AuditReport) error {
	return s.Log(ctx, report)
}
