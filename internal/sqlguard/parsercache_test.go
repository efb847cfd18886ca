// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"sync"
	"testing"
	"time"
)

// I2: parseCached(sql) == parseCached(sql) for any sql (reference equality
// of the handle within the cache lifetime).
func TestParserCache_ReturnsSharedHandle(t *testing.T) {
	c := NewParserCache(10, time.Minute)

	first, err := c.Get("SELECT * FROM user WHERE id = 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Get("select * from user where id = 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical cached handle pointer, got distinct handles")
	}
}

func TestParserCache_ConcurrentGetSingleFlights(t *testing.T) {
	c := NewParserCache(10, time.Minute)
	const n = 50

	var wg sync.WaitGroup
	handles := make([]*StatementHandle, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Get("SELECT * FROM orders WHERE id = 1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("expected all concurrent callers to share one parsed handle")
		}
	}
}

func TestParserCache_ParseErrorNotCached(t *testing.T) {
	c := NewParserCache(10, time.Minute)

	if _, err := c.Get("SELEKT %%% GARBAGE((("); err == nil {
		t.Fatalf("expected parse error for malformed SQL")
	}
	if _, _, size := c.Stats(); size != 0 {
		t.Fatalf("expected parse error not to be cached, cache size = %d", size)
	}
}

func TestParserCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewParserCache(2, time.Minute)

	mustGet(t, c, "SELECT 1")
	mustGet(t, c, "SELECT 2")
	mustGet(t, c, "SELECT 1") // touch SELECT 1, making SELECT 2 the LRU victim
	mustGet(t, c, "SELECT 3") // evicts SELECT 2

	if c.Len() != 2 {
		t.Fatalf("expected capacity-bounded size 2, got %d", c.Len())
	}
}

func mustGet(t *testing.T, c *ParserCache, sql string) *StatementHandle {
	t.Helper()
	h, err := c.Get(sql)
	if err != nil {
		t.Fatalf("unexpected error parsing %q: %v", sql, err)
	}
	return h
}

func TestParserCache_Stats(t *testing.T) {
	c := NewParserCache(10, time.Minute)
	mustGet(t, c, "SELECT 1")
	mustGet(t, c, "SELECT 1")
	mustGet(t, c, "SELECT 2")

	hits, misses, size := c.Stats()
	if hits != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
	if misses != 2 {
		t.Fatalf("expected 2 misses, got %d", misses)
	}
	if size != 2 {
		t.Fatalf("expected size 2, got %d", size)
	}
}
