// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package interceptor defines the uniform boundary by which execution
// hosts (ORM hooks, connection-pool filters, generic JDBC-style listeners)
// feed sqlguard's validation engine and emit audit events. Host-specific
// glue beyond the illustrative adapter in adapter_example.go is out of
// scope; this package only fixes the contract every host must honor.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

// ViolationStrategy is the policy a host applies to a non-passing
// ValidationResult.
type ViolationStrategy string

const (
	// StrategyBlock fails the execution with a BlockedError; no SQL reaches
	// the database.
	StrategyBlock ViolationStrategy = "block"
	// StrategyWarn logs at WARN and proceeds with execution.
	StrategyWarn ViolationStrategy = "warn"
	// StrategyLog logs at INFO and proceeds with execution.
	StrategyLog ViolationStrategy = "log"
)

// BlockedError is returned by Adapter.Before when the configured strategy
// is Block and the validator found a violation. Hosts surface this to
// their own caller instead of sending the statement.
type BlockedError struct {
	Result sqlguard.ValidationResult
}

func (e *BlockedError) Error() string {
	if len(e.Result.Violations) == 0 {
		return "sql blocked by guard policy"
	}
	return fmt.Sprintf("sql blocked by guard policy: %s", e.Result.Violations[0].Message)
}

// Adapter is the contract every host-specific interceptor must implement.
// A host wraps Adapter around its own hook points; Adapter itself performs
// no I/O beyond the validator call and the audit writer.
type Adapter struct {
	engine   *sqlguard.Engine
	writer   auditmodel.Writer
	layer    sqlguard.ExecutionLayer
	strategy ViolationStrategy

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// pendingCall is the "thread-local" stash of a pre-execution
// ValidationResult, keyed by callID, released deterministically by
// After regardless of whether the statement succeeded or errored.
type pendingCall struct {
	result    sqlguard.ValidationResult
	sql       string
	command   sqlguard.CommandType
	startedAt time.Time
}

// NewAdapter builds an Adapter bound to one engine, one audit writer, one
// execution layer tag, and one violation strategy. A process may hold
// several Adapters (e.g. one per datasource) sharing a single Engine,
// since the engine itself is stateless across calls.
func NewAdapter(engine *sqlguard.Engine, writer auditmodel.Writer, layer sqlguard.ExecutionLayer, strategy ViolationStrategy) *Adapter {
	return &Adapter{
		engine:   engine,
		writer:   writer,
		layer:    layer,
		strategy: strategy,
		pending:  make(map[string]*pendingCall),
	}
}

// Before is the pre-execution hook point. It builds the SqlContext,
// validates, enforces the configured strategy, and stashes the result
// under callID for the matching After call. callID identifies this
// specific invocation on hosts where the same goroutine handles both
// hooks (e.g. a JDBC-style listener); callers on hosts with a natural
// request-scoped context should derive callID from that context instead of
// minting one per call.
func (a *Adapter) Before(ctx context.Context, callID, datasource, sql string, rowBounds *sqlguard.RowBounds) (sqlguard.ValidationResult, error) {
	statementID := sqlguard.DeriveStatementID(a.layer, datasource, sql)

	sqlCtx := &sqlguard.SqlContext{
		SQL:         sql,
		StatementID: statementID,
		Datasource:  datasource,
		Layer:       a.layer,
		RowBounds:   rowBounds,
	}
	result := a.engine.Validate(sqlCtx)

	a.stash(callID, &pendingCall{result: result, sql: sql, command: sqlCtx.Command, startedAt: time.Now()})

	switch a.strategy {
	case StrategyBlock:
		if !result.Passed() {
			return result, &BlockedError{Result: result}
		}
	case StrategyWarn:
		if !result.Passed() {
			log.Warn().Str("statementId", statementID).Str("riskLevel", result.RiskLevel.String()).Msg("sql guard violation (warn policy)")
		}
	case StrategyLog:
		if !result.Passed() {
			log.Info().Str("statementId", statementID).Str("riskLevel", result.RiskLevel.String()).Msg("sql guard violation (log policy)")
		}
	}
	return result, nil
}

// After is the post-execution hook point. It releases the stashed
// pre-execution result (guaranteed by the deferred Release a host calls
// alongside this, or directly here when the host has no separate release
// phase) and emits an AuditEvent summarizing the full call.
func (a *Adapter) After(ctx context.Context, callID, datasource string, rowsAffected int64, execErr error) {
	pc, ok := a.release(callID)
	if !ok {
		log.Warn().Str("callId", callID).Msg("interceptor: After called with no matching Before; no audit event emitted")
		return
	}

	elapsedMs := time.Since(pc.startedAt).Milliseconds()
	statementID := sqlguard.DeriveStatementID(a.layer, datasource, pc.sql)

	event := auditmodel.NewAuditEvent(pc.sql, pc.command, statementID, datasource).
		WithResult(elapsedMs, rowsAffected, execErr).
		WithViolations(pc.result.Violations)

	a.writer.Write(ctx, event)
}

// Release clears any stashed pre-execution state for callID without
// emitting an audit event. Hosts that cannot guarantee After always runs
// (e.g. a panic unwinds past the hook point) should call this in a
// deferred scoped-release block, mirroring the "cleared deterministically
// regardless of success or error exit" requirement.
func (a *Adapter) Release(callID string) {
	a.release(callID)
}

func (a *Adapter) stash(callID string, pc *pendingCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[callID] = pc
}

func (a *Adapter) release(callID string) (*pendingCall, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pc, ok := a.pending[callID]
	if ok {
		delete(a.pending, callID)
	}
	return pc, ok
}

// ErrNoAdapter is returned by host glue that requires an Adapter to have
// been configured before use.
var ErrNoAdapter = errors.New("interceptor: no adapter configured")
