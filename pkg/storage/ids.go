// Package storage defines the page and page-store abstractions the buffer
// pool and heap files share: page identity, the fixed page size, and the
// interfaces a table's backing file must satisfy.
package storage

import (
	"fmt"
	"hash/fnv"
)

// TableID identifies a table's backing heap file.
type TableID uint64

// PageNumber is the zero-based offset of a page within a table file.
type PageNumber uint64

// PageSize is the fixed size in bytes of every page. Settable only through
// SetPageSizeForTest / ResetPageSize.
var PageSize = DefaultPageSize

// DefaultPageSize is the page size used outside of tests.
const DefaultPageSize = 4096

// SetPageSizeForTest overrides PageSize. Tests must call ResetPageSize when done.
func SetPageSizeForTest(n int) { PageSize = n }

// ResetPageSize restores PageSize to DefaultPageSize.
func ResetPageSize() { PageSize = DefaultPageSize }

// TableIDFromPath hashes a file path into a TableID, so the same file always
// maps to the same table identity without a separate allocator.
func TableIDFromPath(path string) TableID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return TableID(h.Sum64())
}

// PageID identifies a page by (table, page number). It is a plain comparable
// value type, usable directly as a map key.
type PageID struct {
	Table  TableID
	Number PageNumber
}

func (id PageID) String() string {
	return fmt.Sprintf("page(table=%d,#%d)", id.Table, id.Number)
}
