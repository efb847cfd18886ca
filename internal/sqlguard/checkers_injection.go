// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"regexp"
	"strings"

	"github.com/wmenjoy/sql-tools-sub019/internal/cache"
)

// MultiStatementChecker flags SQL text the parser split into more than one
// top-level statement — a classic stacked-query injection shape.
type MultiStatementChecker struct {
	baseChecker
	visitorBase
}

func NewMultiStatementChecker() *MultiStatementChecker {
	return &MultiStatementChecker{baseChecker: newBaseChecker("MultiStatement", 0)}
}

func (c *MultiStatementChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.StatementCount <= 1 {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"SQL text contains multiple statements separated by ';'",
		"execute exactly one statement per call; never concatenate statements from user input")}
}

// SetOperationChecker flags UNION/INTERSECT/EXCEPT statements whose shape
// suggests a column-count-mismatch injection probe rather than a normal
// reporting query (legitimate set operations are rare on a guarded path).
type SetOperationChecker struct {
	baseChecker
	visitorBase
}

func NewSetOperationChecker() *SetOperationChecker {
	return &SetOperationChecker{baseChecker: newBaseChecker("SetOperation", 32)}
}

func (c *SetOperationChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	op, ok := HasSetOperation(ctx.Statement.AST)
	if !ok {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"statement uses a "+strings.ToUpper(op)+" set operation",
		"verify both sides of the set operation select the same number of columns and are not attacker-controlled")}
}

var (
	sqlCommentRe  = regexp.MustCompile(`(--|#|/\*)`)
	dynamicHintRe = regexp.MustCompile(`\$\{|\{\{|%s|\?\?`)
)

// SqlCommentChecker flags embedded SQL comments when the text also carries
// a dynamic-fragment hint (a templating placeholder), the combination used
// to truncate an intended trailing clause in a classic injection payload.
type SqlCommentChecker struct {
	baseChecker
	visitorBase
}

func NewSqlCommentChecker() *SqlCommentChecker {
	return &SqlCommentChecker{baseChecker: newBaseChecker("SqlComment", 1)}
}

func (c *SqlCommentChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil {
		return nil
	}
	text := ctx.Statement.OriginalSQL
	if !sqlCommentRe.MatchString(text) {
		return nil
	}
	if len(ctx.DynamicVariants) == 0 && !dynamicHintRe.MatchString(text) {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"SQL comment marker found alongside a dynamic SQL fragment",
		"parameterize the dynamic fragment instead of concatenating it into the SQL text")}
}

var intoOutfileRe = regexp.MustCompile(`(?i)\binto\s+(outfile|dumpfile)\b`)

// IntoOutfileChecker flags MySQL's INTO OUTFILE/DUMPFILE, a common
// injection payload used to write arbitrary files from the database host.
type IntoOutfileChecker struct {
	baseChecker
	visitorBase
}

func NewIntoOutfileChecker() *IntoOutfileChecker {
	return &IntoOutfileChecker{baseChecker: newBaseChecker("IntoOutfile", 2)}
}

func (c *IntoOutfileChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || !intoOutfileRe.MatchString(ctx.Statement.OriginalSQL) {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"statement writes to the filesystem via INTO OUTFILE/DUMPFILE",
		"remove file-write clauses; use application-level export instead")}
}

// DangerousFunctionChecker flags calls to functions with no legitimate use
// on an application query path (file/process access, deliberate stalls).
// It uses Aho-Corasick multi-pattern matching so the configured function
// list is checked in a single pass regardless of length.
type DangerousFunctionChecker struct {
	baseChecker
	visitorBase
	cfg     *ConfigStore
	matcher *cache.AhoCorasick
	built   string
}

func NewDangerousFunctionChecker(cfg *ConfigStore) *DangerousFunctionChecker {
	return &DangerousFunctionChecker{baseChecker: newBaseChecker("DangerousFunction", 4), cfg: cfg}
}

func (c *DangerousFunctionChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil {
		return nil
	}
	functions := c.cfg.Load().DangerousFunctions
	if len(functions) == 0 {
		return nil
	}

	matcher := c.matcherFor(functions)
	text := strings.ToLower(ctx.Statement.OriginalSQL)
	matches := matcher.Search(text)
	if len(matches) == 0 {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"call to disallowed function \""+matches[0].Pattern+"\"",
		"remove the call; dangerous functions are never permitted on this path")}
}

// matcherFor rebuilds the Aho-Corasick automaton only when the configured
// function list changes, avoiding a rebuild on every call.
func (c *DangerousFunctionChecker) matcherFor(functions []string) *cache.AhoCorasick {
	key := strings.Join(functions, ",")
	c.mu.RLock()
	if c.built == key && c.matcher != nil {
		m := c.matcher
		c.mu.RUnlock()
		return m
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built == key && c.matcher != nil {
		return c.matcher
	}
	m := cache.NewAhoCorasick()
	m.AddPatterns(functions, nil)
	m.Build()
	c.matcher = m
	c.built = key
	return c.matcher
}

// CallStatementChecker flags CALL/EXEC/EXECUTE, which invoke stored
// procedures outside the checker bank's statement-shape analysis.
type CallStatementChecker struct {
	baseChecker
	visitorBase
}

func NewCallStatementChecker() *CallStatementChecker {
	return &CallStatementChecker{baseChecker: newBaseChecker("CallStatement", 20)}
}

func (c *CallStatementChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Command != CommandCall {
		return nil
	}
	return []Violation{violation(c.id, RiskHigh,
		"statement invokes a stored procedure (CALL/EXEC/EXECUTE)",
		"stored procedure bodies are not analyzed by this engine; review them separately")}
}

var metadataStatementRe = regexp.MustCompile(`(?i)^\s*(show|describe|desc|use)\b`)

// MetadataStatementChecker flags SHOW/DESCRIBE/USE, session-metadata
// statements that should not appear on an application query path.
type MetadataStatementChecker struct {
	baseChecker
	visitorBase
}

func NewMetadataStatementChecker() *MetadataStatementChecker {
	return &MetadataStatementChecker{baseChecker: newBaseChecker("MetadataStatement", 21)}
}

func (c *MetadataStatementChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || !metadataStatementRe.MatchString(ctx.Statement.OriginalSQL) {
		return nil
	}
	return []Violation{violation(c.id, RiskHigh,
		"session-metadata statement (SHOW/DESCRIBE/USE) detected",
		"metadata inspection should not run through the application query path")}
}

var setStatementRe = regexp.MustCompile(`(?i)^\s*set\s+`)

// SetStatementChecker flags session-level SET statements, which can alter
// connection-pooled session state for every subsequent caller on that
// connection.
type SetStatementChecker struct {
	baseChecker
	visitorBase
}

func NewSetStatementChecker() *SetStatementChecker {
	return &SetStatementChecker{baseChecker: newBaseChecker("SetStatement", 22)}
}

func (c *SetStatementChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || !setStatementRe.MatchString(ctx.Statement.OriginalSQL) {
		return nil
	}
	return []Violation{violation(c.id, RiskHigh,
		"session-level SET statement detected on a pooled connection",
		"set session variables at connection-acquisition time, not per-query")}
}

// DeniedTableChecker flags any reference to a table matching a configured
// denylist glob pattern (e.g. "sys_*"), comparing every referenced table
// against every pattern with globMatch.
type DeniedTableChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewDeniedTableChecker(cfg *ConfigStore) *DeniedTableChecker {
	return &DeniedTableChecker{baseChecker: newBaseChecker("DeniedTable", 5), cfg: cfg}
}

func (c *DeniedTableChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	patterns := c.cfg.Load().DenylistTablePatterns
	if len(patterns) == 0 {
		return nil
	}
	for _, t := range TableNames(ctx.Statement.AST) {
		for _, p := range patterns {
			if globMatch(p, t) {
				return []Violation{violation(c.id, RiskCritical,
					"reference to denylisted table \""+t+"\" (matches pattern \""+p+"\")",
					"this table may not be accessed from the application query path")}
			}
		}
	}
	return nil
}

// globMatch supports a single trailing '*' wildcard, the only shape the
// denylist/blacklist config documents use (e.g. "sys_*").
func globMatch(pattern, candidate string) bool {
	pattern = strings.ToLower(pattern)
	candidate = strings.ToLower(candidate)
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(candidate, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == candidate
}
