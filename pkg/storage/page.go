package storage

import "corestore/pkg/concurrency/txn"

// Page is a page resident in the buffer pool. Implementations hold the
// parsed contents plus the dirtying-transaction bookkeeping the buffer
// manager needs: a dirty page belongs to exactly one live transaction until
// that transaction commits (the page is forced to disk) or aborts (the page
// is reloaded from disk).
type Page interface {
	ID() PageID

	// Dirtier returns the transaction that last dirtied this page, or nil
	// if the page is clean.
	Dirtier() *txn.ID

	// MarkDirty records (or clears, when dirty is false) the dirtying
	// transaction.
	MarkDirty(dirty bool, tid *txn.ID)

	// Bytes serializes the page into its PageSize-byte on-disk form.
	Bytes() []byte
}

// PageStore is the persistent collaborator behind a single table: a
// random-access array of fixed-size pages. It does no caching and no
// locking; both live in the buffer pool.
type PageStore interface {
	ID() TableID

	// ReadPage returns the page stored at id. Reading one page past the
	// end of the file returns a fresh empty page, which is how new pages
	// are allocated.
	ReadPage(id PageID) (Page, error)

	// WritePage stores p at its page number, extending the file when the
	// number equals the current page count.
	WritePage(p Page) error

	NumPages() (PageNumber, error)
	Close() error
}
