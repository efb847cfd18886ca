// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package cache provides the in-memory data structures shared by the SQL
safety engine and the audit pipeline: a TTL cache, an LRU cache, an
Aho-Corasick multi-pattern matcher, and a generic binary min-heap.

# Use Cases

  - internal/sqlguard's ParserCache, which copies LRUCache's list-plus-map
    shape in its own type rather than importing this package
  - internal/sqlguard's per-Engine violation dedup filter (LRU with
    IsDuplicate)
  - internal/sqlguard's DangerousFunction checker (Aho-Corasick over the
    configured function list)
  - internal/auditpipe's dead-letter queue (MinHeap, bounded by age)

# Thread Safety

Every type in this package is safe for concurrent use; locking is
fine-grained (RWMutex for reads, full Mutex only around structural
mutation).

# See Also

  - internal/sqlguard: parser cache and dedup filter built on this package
  - internal/auditpipe: dead-letter queue built on the MinHeap
*/
package cache
