// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Engine is the SQL safety validation engine: parse once (cached), dispatch
// to the checker bank in priority order, deduplicate, and aggregate into a
// ValidationResult. A single Engine is shared by every adapter instance in
// a process; it holds no per-call mutable state.
type Engine struct {
	cfg         *ConfigStore
	parserCache *ParserCache
	bank        *checkerBank
	dedup       *DedupFilter
	dialect     *DialectAdapter
}

// NewEngine builds an engine wired against the given (already-loaded)
// config. It constructs every checker, the parser cache, the dedup filter,
// and the dialect adapter from that single snapshot's settings.
func NewEngine(store *ConfigStore) *Engine {
	cfg := store.Load()

	dedupTTL, err := time.ParseDuration(cfg.DedupTTL)
	if err != nil {
		dedupTTL = 5 * time.Minute
	}
	parserTTL, err := time.ParseDuration(cfg.ParserCacheTTL)
	if err != nil {
		parserTTL = 30 * time.Minute
	}

	checkers := []Checker{
		NewNoWhereClauseChecker(),
		NewDummyConditionChecker(store),
		NewBlacklistFieldChecker(store),
		NewWhitelistFieldChecker(store),
		NewMultiStatementChecker(),
		NewSetOperationChecker(),
		NewSqlCommentChecker(),
		NewIntoOutfileChecker(),
		NewDdlOperationChecker(),
		NewDangerousFunctionChecker(store),
		NewCallStatementChecker(),
		NewMetadataStatementChecker(),
		NewSetStatementChecker(),
		NewDeniedTableChecker(store),
		NewReadOnlyTableChecker(store),
		NewLogicalPaginationChecker(),
		NewDeepPaginationChecker(store),
		NewLargePageSizeChecker(store),
		NewMissingOrderByChecker(),
		NewNoPaginationChecker(store),
	}

	syncEnabled(checkers, cfg)

	return &Engine{
		cfg:         store,
		parserCache: NewParserCache(cfg.ParserCacheSize, parserTTL),
		bank:        newCheckerBank(checkers),
		dedup:       NewDedupFilter(cfg.DedupCacheSize, dedupTTL),
		dialect:     NewDialectAdapter(ParseDialect(cfg.Dialect), cfg.EnforceMaxLimit, cfg.MaxLimit),
	}
}

// SyncCheckerEnablement re-applies the current config snapshot's per-checker
// enable overrides. Call this after ConfigStore.Swap so a hot-reloaded
// enable/disable flag takes effect without rebuilding the engine.
func (e *Engine) SyncCheckerEnablement() {
	syncEnabled(e.bank.checkers, e.cfg.Load())
}

// Checkers exposes the engine's registered checkers, e.g. for a config
// endpoint that reports current enable state.
func (e *Engine) Checkers() []Checker {
	return e.bank.checkers
}

// Validate runs the full engine algorithm against ctx: parse, dispatch,
// dedup, aggregate. It never returns an error for ordinary inputs; a parse
// failure degrades to a conservative Medium finding rather than aborting,
// since a validation failure must never block the caller's own error
// handling.
func (e *Engine) Validate(ctx *SqlContext) ValidationResult {
	var result ValidationResult

	if ctx == nil || ctx.SQL == "" {
		return result
	}

	handle, err := e.parserCache.Get(ctx.SQL)
	if err != nil {
		log.Warn().Err(err).Str("statementId", ctx.StatementID).Msg("sql parse failed, falling back to conservative mode")
		// AST is nil: every AST-dependent checker self-skips on that, so the
		// bank still runs and the regex-only checkers (IntoOutfile,
		// DangerousFunction, SqlComment, MultiStatement, MetadataStatement,
		// SetStatement) get a chance to catch payloads that defeat the
		// parser in the first place.
		ctx.Statement = &StatementHandle{
			OriginalSQL:    ctx.SQL,
			Command:        CommandUnknown,
			StatementCount: bestEffortStatementCount(ctx.SQL),
		}
		if ctx.Command == "" {
			ctx.Command = CommandUnknown
		}
		for _, v := range e.bank.run(ctx) {
			result.add(v)
		}
		result.add(violation("ParseError", RiskMedium, "analysis failed: statement could not be parsed", ""))
		return e.applyDedup(ctx, result)
	}

	if ctx.Command == "" {
		ctx.Command = handle.Command
	}

	if e.cfg.Load().EnforceMaxLimit {
		if capped, ok := e.dialect.ApplyLimit(handle, e.cfg.Load().MaxLimit); ok {
			handle = capped
		}
	}
	ctx.Statement = handle

	for _, v := range e.bank.run(ctx) {
		result.add(v)
	}

	return e.applyDedup(ctx, result)
}

// applyDedup filters result.Violations through the Engine's shared dedup
// filter, rebuilding RiskLevel from the surviving set so a suppressed
// Critical finding never leaves a stale Critical risk level behind.
func (e *Engine) applyDedup(ctx *SqlContext, result ValidationResult) ValidationResult {
	if len(result.Violations) == 0 {
		return result
	}

	statementID := ctx.StatementID
	if statementID == "" {
		statementID = DeriveStatementID(ctx.Layer, ctx.Datasource, ctx.SQL)
	}

	var out ValidationResult
	for _, v := range result.Violations {
		if e.dedup.ShouldReport(statementID, v) {
			out.add(v)
		}
	}
	return out
}

