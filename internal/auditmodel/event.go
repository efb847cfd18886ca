// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package auditmodel holds the canonical post-execution record types that
// flow from an interceptor adapter through the broker into the audit
// pipeline and storage tier.
package auditmodel

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

// AuditEvent is the canonical post-execution record emitted by an
// interceptor adapter after a statement has run. Its JSON encoding is the
// wire contract between the adapter, the broker, and every storage
// backend, so field names and omitempty behavior must stay stable.
type AuditEvent struct {
	SqlID             string               `json:"sqlId"`
	SQL               string               `json:"sql"`
	Command           sqlguard.CommandType `json:"command"`
	StatementID       string               `json:"statementId"`
	Datasource        string               `json:"datasource"`
	Params            map[string]any       `json:"params"`
	ExecutionTimeMs   int64                `json:"executionTimeMs"`
	RowsAffected      int64                `json:"rowsAffected"`
	ErrorMessage      *string              `json:"errorMessage"`
	Timestamp         time.Time            `json:"timestamp"`
	PreExecViolations []sqlguard.Violation `json:"preExecutionViolations"`
}

// NewAuditEvent builds an event from the fields the post-execution hook has
// on hand, deriving sqlId from sql the same way the validator's dedup and
// statementId derivation do, so correlation across the two paths holds.
func NewAuditEvent(sql string, command sqlguard.CommandType, statementID, datasource string) *AuditEvent {
	return &AuditEvent{
		SqlID:        sqlguard.ShortHash(sql),
		SQL:          sql,
		Command:      command,
		StatementID:  statementID,
		Datasource:   datasource,
		RowsAffected: -1,
		Timestamp:    time.Now().UTC(),
	}
}

// WithResult fills in post-execution outcome fields and returns the event
// for chaining at the call site.
func (e *AuditEvent) WithResult(executionTimeMs, rowsAffected int64, execErr error) *AuditEvent {
	e.ExecutionTimeMs = executionTimeMs
	e.RowsAffected = rowsAffected
	if execErr != nil {
		msg := execErr.Error()
		e.ErrorMessage = &msg
	}
	return e
}

// WithViolations attaches the pre-execution ValidationResult's violations,
// if any, so the audit trail carries what the prevention layer already saw.
func (e *AuditEvent) WithViolations(violations []sqlguard.Violation) *AuditEvent {
	if len(violations) > 0 {
		e.PreExecViolations = violations
	}
	return e
}

// MarshalCanonicalJSON renders the event with stable field order and
// explicit nulls, per the wire contract in SPEC_FULL.md §4.8. go-json
// preserves struct field order and encodes nil *string as JSON null rather
// than omitting it, so this is just a named entry point for that contract
// rather than custom marshaling logic.
func (e *AuditEvent) MarshalCanonicalJSON() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalAuditEvent decodes a canonical-JSON-encoded event, e.g. when
// replaying spooled events from the local writer's backlog.
func UnmarshalAuditEvent(data []byte) (*AuditEvent, error) {
	var e AuditEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
