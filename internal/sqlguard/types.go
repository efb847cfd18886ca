// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package sqlguard is the SQL safety validation engine: it turns raw SQL
// plus call-site context into a deterministic ValidationResult by running
// an ordered chain of stateless rule checkers.
package sqlguard

import (
	"github.com/goccy/go-json"
)

// RiskLevel is an ordered severity scale. Higher values are more severe;
// aggregation is always the max over a set of levels.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the canonical name used in logs, metrics and JSON output.
func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "Safe"
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders the level as its string name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses the string name produced by MarshalJSON.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "Low":
		*r = RiskLow
	case "Medium":
		*r = RiskMedium
	case "High":
		*r = RiskHigh
	case "Critical":
		*r = RiskCritical
	default:
		*r = RiskSafe
	}
	return nil
}

// CommandType is the closed tagged variant the parser assigns to every
// statement. Checkers such as DdlOperation, ReadOnlyTable and CallStatement
// test it directly; dispatch in visitor.go switches on the AST's concrete
// type rather than on CommandType.
type CommandType string

const (
	CommandSelect  CommandType = "SELECT"
	CommandInsert  CommandType = "INSERT"
	CommandUpdate  CommandType = "UPDATE"
	CommandDelete  CommandType = "DELETE"
	CommandDdl     CommandType = "DDL"
	CommandCall    CommandType = "CALL"
	CommandUnknown CommandType = "UNKNOWN"
)

// ExecutionLayer tags which kind of host invoked the validator.
type ExecutionLayer string

const (
	LayerOrmLevel     ExecutionLayer = "OrmLevel"
	LayerPoolLevel    ExecutionLayer = "PoolLevel"
	LayerJdbcListener ExecutionLayer = "JdbcListener"
	LayerUnknown      ExecutionLayer = "Unknown"
)

// RowBounds is the optional out-of-band pagination request a framework
// applies on top of whatever LIMIT/OFFSET the SQL text itself contains.
type RowBounds struct {
	Offset int
	Limit  int
}

// SqlContext is the input to the validator. It is created per call by the
// adapter, consumed within a single synchronous validate() call, and
// discarded after result emission — it is never retained past one call.
type SqlContext struct {
	SQL             string
	Command         CommandType
	Statement       *StatementHandle
	Params          map[string]any
	RowBounds       *RowBounds
	StatementID     string
	Datasource      string
	Layer           ExecutionLayer
	MapperID        string
	DynamicVariants []string
}

// Violation is a single finding produced by one checker.
type Violation struct {
	CheckerID  string    `json:"checkerId"`
	Level      RiskLevel `json:"level"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// ValidationResult is the output of the prevention engine. Adding a
// violation is monotonic: RiskLevel never decreases within one call, and
// Violations is append-only.
type ValidationResult struct {
	RiskLevel  RiskLevel         `json:"riskLevel"`
	Violations []Violation       `json:"violations"`
	Details    map[string]string `json:"details,omitempty"`
}

// Passed reports whether no violations were recorded.
func (v ValidationResult) Passed() bool {
	return len(v.Violations) == 0
}

// add appends a violation and raises RiskLevel if needed. Never lowers it.
func (v *ValidationResult) add(vi Violation) {
	v.Violations = append(v.Violations, vi)
	if vi.Level > v.RiskLevel {
		v.RiskLevel = vi.Level
	}
}
