package heap

import (
	"corestore/pkg/buffer"
	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

// Iterator walks every tuple in a heap file in page order, acquiring a read
// lock per page through the pool. Locks taken by the scan are held until
// the transaction completes, like any other read. The iterator is finite
// and restartable: Rewind is a close followed by a fresh open.
type Iterator struct {
	file *File
	pool buffer.Pool
	tid  *txn.ID

	opened   bool
	numPages storage.PageNumber
	nextPage storage.PageNumber
	tuples   []*tuple.Tuple
	idx      int
}

// NewIterator creates an unopened iterator over hf.
func NewIterator(hf *File, pool buffer.Pool, tid *txn.ID) *Iterator {
	return &Iterator{file: hf, pool: pool, tid: tid}
}

// Open snapshots the page count and positions the iterator before the
// first tuple.
func (it *Iterator) Open() error {
	n, err := it.file.NumPages()
	if err != nil {
		return err
	}
	it.numPages = n
	it.nextPage = 0
	it.tuples = nil
	it.idx = 0
	it.opened = true
	return nil
}

// HasNext reports whether another tuple is available, loading the next
// non-empty page if needed.
func (it *Iterator) HasNext() (bool, error) {
	if !it.opened {
		return false, dberr.BadInput("iterator is not open")
	}
	for it.idx >= len(it.tuples) {
		if it.nextPage >= it.numPages {
			return false, nil
		}
		pid := storage.PageID{Table: it.file.ID(), Number: it.nextPage}
		it.nextPage++
		p, err := it.pool.GetPage(it.tid, pid, buffer.ReadOnly)
		if err != nil {
			return false, err
		}
		hp, ok := p.(*Page)
		if !ok {
			return false, dberr.BadInput("page %s is not a heap page", pid)
		}
		it.tuples = hp.Tuples()
		it.idx = 0
	}
	return true, nil
}

// Next returns the next tuple.
func (it *Iterator) Next() (*tuple.Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberr.BadInput("iterator is exhausted")
	}
	t := it.tuples[it.idx]
	it.idx++
	return t, nil
}

// Rewind restarts the scan from the first page.
func (it *Iterator) Rewind() error {
	it.Close()
	return it.Open()
}

// Close releases the iterator's cursor state. Page locks stay with the
// transaction.
func (it *Iterator) Close() {
	it.opened = false
	it.tuples = nil
	it.idx = 0
}
