package heap

import (
	"os"
	"sync"

	"corestore/pkg/buffer"
	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

// File is a heap file: a single OS file holding a table's pages back to
// back, page n at byte offset n*PageSize. It implements buffer.TupleFile.
// Reads and writes here are raw page I/O; locking, caching, and dirty
// tracking all live in the buffer pool, which is also the only caller.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string
	id   storage.TableID
	desc tuple.Description
}

// Open opens (creating if needed) the heap file at path.
func Open(path string, desc tuple.Description) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.WrapIO(err, "opening heap file "+path)
	}
	return &File{
		f:    f,
		path: path,
		id:   storage.TableIDFromPath(path),
		desc: desc,
	}, nil
}

// ID returns the table identity derived from the file path.
func (hf *File) ID() storage.TableID { return hf.id }

// Desc returns the schema of the tuples this file stores.
func (hf *File) Desc() tuple.Description { return hf.desc }

// Path returns the backing file's path.
func (hf *File) Path() string { return hf.path }

// NumPages returns the number of whole pages currently on disk.
func (hf *File) NumPages() (storage.PageNumber, error) {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.numPagesLocked()
}

func (hf *File) numPagesLocked() (storage.PageNumber, error) {
	fi, err := hf.f.Stat()
	if err != nil {
		return 0, dberr.WrapIO(err, "sizing heap file "+hf.path)
	}
	return storage.PageNumber(fi.Size() / int64(storage.PageSize)), nil
}

// ReadPage reads the page id names from disk. Reading at or past the
// current end of the file returns a fresh empty page; that is how new pages
// come into existence, materialized on disk only when they are first
// written.
func (hf *File) ReadPage(id storage.PageID) (storage.Page, error) {
	if id.Table != hf.id {
		return nil, dberr.BadInput("page %s does not belong to table %d", id, hf.id)
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()

	n, err := hf.numPagesLocked()
	if err != nil {
		return nil, err
	}
	if id.Number >= n {
		return NewEmptyPage(id, hf.desc), nil
	}

	data := make([]byte, storage.PageSize)
	if _, err := hf.f.ReadAt(data, int64(id.Number)*int64(storage.PageSize)); err != nil {
		return nil, dberr.WrapIO(err, "reading "+id.String())
	}
	return NewPage(id, data, hf.desc)
}

// WritePage writes p at its page number and syncs, extending the file when
// the number is past the current end.
func (hf *File) WritePage(p storage.Page) error {
	if p == nil {
		return dberr.BadInput("cannot write a nil page")
	}
	id := p.ID()
	if id.Table != hf.id {
		return dberr.BadInput("page %s does not belong to table %d", id, hf.id)
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	if _, err := hf.f.WriteAt(p.Bytes(), int64(id.Number)*int64(storage.PageSize)); err != nil {
		return dberr.WrapIO(err, "writing "+id.String())
	}
	if err := hf.f.Sync(); err != nil {
		return dberr.WrapIO(err, "syncing "+hf.path)
	}
	return nil
}

// AddTuple finds a page with room for t and inserts it there, going through
// pool for every page it touches. Pages are scanned oldest first under a
// read lock; a page that turns out full has its lock released right away
// (the one sanctioned early release, so a long scan does not pin every full
// page until commit), and the page chosen for the insert is upgraded to a
// write lock before the tuple lands. When no existing page has room the
// next page number is materialized through the pool, which yields an empty
// page past the end of the file.
func (hf *File) AddTuple(pool buffer.Pool, tid *txn.ID, t *tuple.Tuple) ([]storage.Page, error) {
	n, err := hf.NumPages()
	if err != nil {
		return nil, err
	}

	for num := storage.PageNumber(0); num < n; num++ {
		pid := storage.PageID{Table: hf.id, Number: num}
		p, err := pool.GetPage(tid, pid, buffer.ReadOnly)
		if err != nil {
			return nil, err
		}
		hp, ok := p.(*Page)
		if !ok {
			return nil, dberr.BadInput("page %s is not a heap page", pid)
		}
		if hp.EmptySlots() == 0 {
			// A page we dirtied earlier keeps its lock: releasing it
			// would let another transaction read uncommitted bytes.
			if hp.Dirtier() != tid {
				pool.UnsafeReleasePage(tid, pid)
			}
			continue
		}

		// Room found under the read lock; upgrade and insert. Nobody can
		// have filled the page in between, the shared lock was never
		// dropped.
		p, err = pool.GetPage(tid, pid, buffer.ReadWrite)
		if err != nil {
			return nil, err
		}
		hp = p.(*Page)
		if err := hp.InsertTuple(t); err != nil {
			return nil, err
		}
		return []storage.Page{hp}, nil
	}

	// Every existing page is full; take fresh page numbers until one has
	// room. A concurrent inserter may have materialized (and filled) the
	// same number first, in which case the loop just moves past it.
	for num := n; ; num++ {
		pid := storage.PageID{Table: hf.id, Number: num}
		p, err := pool.GetPage(tid, pid, buffer.ReadWrite)
		if err != nil {
			return nil, err
		}
		hp, ok := p.(*Page)
		if !ok {
			return nil, dberr.BadInput("page %s is not a heap page", pid)
		}
		if hp.EmptySlots() == 0 {
			if hp.Dirtier() != tid {
				pool.UnsafeReleasePage(tid, pid)
			}
			continue
		}
		if err := hp.InsertTuple(t); err != nil {
			return nil, err
		}
		return []storage.Page{hp}, nil
	}
}

// DeleteTuple removes t from the page its record id names, going through
// pool for the write lock.
func (hf *File) DeleteTuple(pool buffer.Pool, tid *txn.ID, t *tuple.Tuple) (storage.Page, error) {
	if t == nil {
		return nil, dberr.BadInput("cannot delete a nil tuple")
	}
	p, err := pool.GetPage(tid, t.RID.Page, buffer.ReadWrite)
	if err != nil {
		return nil, err
	}
	hp, ok := p.(*Page)
	if !ok {
		return nil, dberr.BadInput("page %s is not a heap page", t.RID.Page)
	}
	if err := hp.DeleteTuple(t); err != nil {
		return nil, err
	}
	return hp, nil
}

// Iterator returns a scan over every tuple in the file under tid's locks.
func (hf *File) Iterator(pool buffer.Pool, tid *txn.ID) *Iterator {
	return NewIterator(hf, pool, tid)
}

// Close closes the backing file.
func (hf *File) Close() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.f == nil {
		return nil
	}
	err := hf.f.Close()
	hf.f = nil
	if err != nil {
		return dberr.WrapIO(err, "closing heap file "+hf.path)
	}
	return nil
}
