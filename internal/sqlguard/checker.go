// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

// Checker is a single stateless safety rule. Implementations must not
// mutate instance state during Check; checkers that need configuration read
// the current snapshot from a shared ConfigStore, which ConfigStore.Swap
// replaces as a whole validated value.
type Checker interface {
	// ID is the stable identifier used in Violation.CheckerID, metrics, and
	// configuration (enable flags, priority ordering).
	ID() string
	// Priority determines execution order within one validate() call; lower
	// runs first. Ties are broken by ID for determinism.
	Priority() int
	// Enabled reports whether the checker currently participates.
	Enabled() bool
	// Check runs the rule against ctx and returns zero or more violations.
	// It must be safe to call concurrently with different *SqlContext
	// values and must not block on I/O.
	Check(ctx *SqlContext) []Violation
}

// checkerBank holds an ordered, enabled-filtered view of the registered
// checkers for one validation call.
type checkerBank struct {
	checkers []Checker
}

// newCheckerBank sorts checkers by (Priority, ID) once at construction so
// each validate() call only needs to filter by Enabled().
func newCheckerBank(checkers []Checker) *checkerBank {
	sorted := make([]Checker, len(checkers))
	copy(sorted, checkers)
	insertionSortCheckers(sorted)
	return &checkerBank{checkers: sorted}
}

func insertionSortCheckers(checkers []Checker) {
	for i := 1; i < len(checkers); i++ {
		j := i
		for j > 0 && less(checkers[j], checkers[j-1]) {
			checkers[j], checkers[j-1] = checkers[j-1], checkers[j]
			j--
		}
	}
}

func less(a, b Checker) bool {
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority()
	}
	return a.ID() < b.ID()
}

// enableSetter is satisfied by every concrete checker via baseChecker; it
// lets syncEnabled flip a checker's participation without the Checker
// interface itself exposing a mutator.
type enableSetter interface {
	SetEnabled(bool)
}

// syncEnabled applies cfg's per-checker enable overrides to every checker
// that supports it. Called once at engine construction and again by
// Engine.SyncCheckerEnablement; ConfigStore.Swap does not call it.
func syncEnabled(checkers []Checker, cfg *CheckerConfig) {
	for _, c := range checkers {
		if es, ok := c.(enableSetter); ok {
			es.SetEnabled(cfg.IsEnabled(c.ID()))
		}
	}
}

// run executes every enabled checker in order and returns their combined,
// still-undeduplicated violations.
func (b *checkerBank) run(ctx *SqlContext) []Violation {
	var out []Violation
	for _, c := range b.checkers {
		if !c.Enabled() {
			continue
		}
		out = append(out, c.Check(ctx)...)
	}
	return out
}
