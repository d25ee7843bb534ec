package execution

import (
	"corestore/pkg/buffer"
	"corestore/pkg/catalog"
	"corestore/pkg/concurrency/txn"
	"corestore/pkg/storage"
	"corestore/pkg/storage/heap"
	"corestore/pkg/tuple"
)

// SeqScan reads every tuple of one table in page order under tid's read
// locks.
type SeqScan struct {
	base    *baseIterator
	pool    *buffer.Manager
	cat     *catalog.Catalog
	tid     *txn.ID
	tableID storage.TableID
	desc    tuple.Description
	iter    *heap.Iterator
}

// NewSeqScan creates a scan over tableID.
func NewSeqScan(pool *buffer.Manager, cat *catalog.Catalog, tid *txn.ID, tableID storage.TableID) (*SeqScan, error) {
	desc, err := cat.TupleDesc(tableID)
	if err != nil {
		return nil, err
	}
	ss := &SeqScan{pool: pool, cat: cat, tid: tid, tableID: tableID, desc: desc}
	ss.base = newBaseIterator(ss.readNext)
	return ss, nil
}

func (ss *SeqScan) Open() error {
	f, err := ss.cat.DbFile(ss.tableID)
	if err != nil {
		return err
	}
	hf, ok := f.(*heap.File)
	if !ok {
		// Any TupleFile scans the same way; only the heap iterator is
		// implemented here.
		return errNotHeap(ss.tableID)
	}
	ss.iter = hf.Iterator(ss.pool, ss.tid)
	if err := ss.iter.Open(); err != nil {
		return err
	}
	ss.base.markOpened()
	return nil
}

func (ss *SeqScan) readNext() (*tuple.Tuple, error) {
	ok, err := ss.iter.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return ss.iter.Next()
}

func (ss *SeqScan) HasNext() (bool, error)      { return ss.base.hasNext() }
func (ss *SeqScan) Next() (*tuple.Tuple, error) { return ss.base.next() }
func (ss *SeqScan) Desc() tuple.Description     { return ss.desc }

func (ss *SeqScan) Rewind() error {
	if err := ss.iter.Rewind(); err != nil {
		return err
	}
	ss.base.clearCache()
	return nil
}

func (ss *SeqScan) Close() error {
	if ss.iter != nil {
		ss.iter.Close()
	}
	return ss.base.close()
}
