// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/cache"
)

// DedupFilter suppresses repeat violations from the same call site within a
// bounded window. An Engine holds one filter, shared by every goroutine and
// adapter that calls that Engine; the underlying LRUCache serializes access
// with its own mutex. It is not scoped per goroutine.
type DedupFilter struct {
	seen *cache.LRUCache
}

// NewDedupFilter builds a filter with the given bounded size and window.
func NewDedupFilter(size int, ttl time.Duration) *DedupFilter {
	return &DedupFilter{seen: cache.NewLRUCache(size, ttl)}
}

// fingerprint returns hash(statementId, checkerId, riskLevel, message) as a
// fixed-width hex string.
func fingerprint(statementID string, v Violation) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d|%s", statementID, v.CheckerID, v.Level, v.Message)
	return fmt.Sprintf("%x", h.Sum64())
}

// ShouldReport reports whether v (from statementID) has not been seen
// within the dedup window, recording it if so. A false return means the
// violation is observed-and-suppressed, not rejected as invalid.
func (f *DedupFilter) ShouldReport(statementID string, v Violation) bool {
	return !f.seen.IsDuplicate(fingerprint(statementID, v))
}
