package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"corestore/pkg/concurrency/lock"
	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

// Permission is the access level a caller requests for a page. ReadWrite
// subsumes ReadOnly for the holder.
type Permission = lock.Mode

const (
	ReadOnly  = lock.Shared
	ReadWrite = lock.Exclusive
)

// Pool is the slice of the Manager that tuple files call back into while
// scanning for an insertion point or resolving a record id.
type Pool interface {
	GetPage(tid *txn.ID, pid storage.PageID, perm Permission) (storage.Page, error)
	UnsafeReleasePage(tid *txn.ID, pid storage.PageID)
}

// TupleFile is a page store whose pages hold tuples. AddTuple and
// DeleteTuple go through the pool for every page they touch, so all locking
// and caching stays inside the buffer manager; they return the pages they
// modified and the Manager marks those dirty.
type TupleFile interface {
	storage.PageStore
	Desc() tuple.Description
	AddTuple(pool Pool, tid *txn.ID, t *tuple.Tuple) ([]storage.Page, error)
	DeleteTuple(pool Pool, tid *txn.ID, t *tuple.Tuple) (storage.Page, error)
}

// Manager is the buffer pool's public face. Every page read and write in
// the system flows through it: it acquires the page lock, serves the page
// from the cache or disk, tracks which transaction dirtied what, and at
// completion forces (commit) or reloads (abort) exactly those pages before
// releasing the transaction's locks.
type Manager struct {
	cache *Cache
	locks *lock.Table
	log   *logrus.Entry

	hits   atomic.Uint64
	misses atomic.Uint64

	mu     sync.Mutex
	stores map[storage.TableID]storage.PageStore

	// dirtiedBy tracks, per transaction, which pages it has dirtied, so
	// CompleteTransaction knows exactly which pages to force or reload
	// without scanning the whole cache.
	dirtiedBy map[*txn.ID]map[storage.PageID]bool
}

// New creates a Manager with the given page capacity.
func New(capacity int, log *logrus.Entry) *Manager {
	locks := lock.New()
	return &Manager{
		cache:     NewCache(capacity, locks, log),
		locks:     locks,
		log:       log,
		stores:    make(map[storage.TableID]storage.PageStore),
		dirtiedBy: make(map[*txn.ID]map[storage.PageID]bool),
	}
}

// RegisterStore makes store reachable for pages whose PageID.Table matches
// store.ID().
func (m *Manager) RegisterStore(store storage.PageStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[store.ID()] = store
}

func (m *Manager) storeFor(table storage.TableID) (storage.PageStore, error) {
	m.mu.Lock()
	s, ok := m.stores[table]
	m.mu.Unlock()
	if !ok {
		return nil, dberr.BadInput("no page store registered for table %d", table)
	}
	return s, nil
}

func (m *Manager) tupleFileFor(table storage.TableID) (TupleFile, error) {
	s, err := m.storeFor(table)
	if err != nil {
		return nil, err
	}
	f, ok := s.(TupleFile)
	if !ok {
		return nil, dberr.BadInput("table %d does not store tuples", table)
	}
	return f, nil
}

// GetPage acquires the lock for perm, then returns the page, pulling it
// from disk into the cache on a miss. The returned handle aliases the cache
// entry; callers must not retain it across other Manager calls that could
// evict. Lock acquisition happens before the cache lookup, so a page a
// caller is about to read can never be chosen as an eviction victim.
func (m *Manager) GetPage(tid *txn.ID, pid storage.PageID, perm Permission) (storage.Page, error) {
	if err := m.locks.Acquire(tid, pid, perm); err != nil {
		return nil, err
	}

	if p, ok := m.cache.Get(pid); ok {
		m.hits.Add(1)
		return p, nil
	}
	m.misses.Add(1)

	store, err := m.storeFor(pid.Table)
	if err != nil {
		return nil, err
	}
	p, err := store.ReadPage(pid)
	if err != nil {
		return nil, dberr.WrapIO(err, "reading page "+pid.String())
	}
	if err := m.cache.Put(pid, p); err != nil {
		return nil, err
	}
	return p, nil
}

// markDirty records that tid dirtied p, both on the page itself and in the
// per-transaction dirty set, and re-inserts the page so it moves to the
// recent end of the eviction order.
func (m *Manager) markDirty(tid *txn.ID, p storage.Page) error {
	p.MarkDirty(true, tid)
	m.mu.Lock()
	if m.dirtiedBy[tid] == nil {
		m.dirtiedBy[tid] = make(map[storage.PageID]bool)
	}
	m.dirtiedBy[tid][p.ID()] = true
	m.mu.Unlock()
	return m.cache.Put(p.ID(), p)
}

// InsertTuple adds t to the named table under tid. The table's file scans
// for a page with room (taking read locks through GetPage, upgrading the
// chosen page to a write lock, releasing pages that turned out full) and
// this method marks every page the insert modified dirty.
func (m *Manager) InsertTuple(tid *txn.ID, table storage.TableID, t *tuple.Tuple) error {
	if t == nil {
		return dberr.BadInput("cannot insert a nil tuple")
	}
	f, err := m.tupleFileFor(table)
	if err != nil {
		return err
	}
	if !t.Desc.Equals(f.Desc()) {
		return dberr.BadInput("tuple schema does not match table %d", table)
	}
	pages, err := f.AddTuple(m, tid, t)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if err := m.markDirty(tid, p); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTuple removes t from the page its record id names, under tid.
func (m *Manager) DeleteTuple(tid *txn.ID, t *tuple.Tuple) error {
	if t == nil {
		return dberr.BadInput("cannot delete a nil tuple")
	}
	if (t.RID == tuple.RecordID{}) {
		return dberr.BadInput("tuple has no record id; was it ever inserted?")
	}
	f, err := m.tupleFileFor(t.RID.Page.Table)
	if err != nil {
		return err
	}
	p, err := f.DeleteTuple(m, tid, t)
	if err != nil {
		return err
	}
	return m.markDirty(tid, p)
}

// UpdateTuple replaces oldT with newT under tid: a delete followed by an
// insert, not atomic on its own. If the insert fails the delete is undone
// best-effort by re-inserting oldT; the caller is still expected to abort
// the transaction on error.
func (m *Manager) UpdateTuple(tid *txn.ID, oldT, newT *tuple.Tuple) error {
	if err := m.DeleteTuple(tid, oldT); err != nil {
		return err
	}
	if err := m.InsertTuple(tid, oldT.RID.Page.Table, newT); err != nil {
		if rerr := m.InsertTuple(tid, oldT.RID.Page.Table, oldT); rerr != nil && m.log != nil {
			m.log.WithError(rerr).WithField("txn", tid.String()).
				Warn("could not restore tuple after failed update; aborting the transaction will")
		}
		return err
	}
	return nil
}

// HoldsLock reports whether tid holds a lock on pid.
func (m *Manager) HoldsLock(tid *txn.ID, pid storage.PageID) bool {
	return m.locks.Holds(tid, pid)
}

// UnsafeReleasePage releases tid's lock on pid without ending its
// transaction. This breaks two-phase locking if misused; the one sanctioned
// caller is the insert scan, dropping its lock on a full page it inspected
// and did not write to.
func (m *Manager) UnsafeReleasePage(tid *txn.ID, pid storage.PageID) {
	m.locks.Release(tid, pid)
}

// CompleteTransaction ends tid.
//
// Commit (FORCE): every page tid dirtied is written to disk and marked
// clean before any lock is released, so the next reader of those pages sees
// the committed bytes.
//
// Abort: every page tid dirtied is reloaded from disk, replacing the cached
// contents with the last committed bytes. NO STEAL guarantees the disk copy
// never saw tid's writes.
//
// In both cases every lock tid holds is released, even if a write failed
// partway; the first error is returned after the release.
func (m *Manager) CompleteTransaction(tid *txn.ID, commit bool) error {
	m.mu.Lock()
	dirty := m.dirtiedBy[tid]
	delete(m.dirtiedBy, tid)
	m.mu.Unlock()

	var firstErr error
	for pid := range dirty {
		p, ok := m.cache.Get(pid)
		if !ok || p.Dirtier() != tid {
			continue
		}
		if commit {
			if err := m.forcePage(p); err != nil && firstErr == nil {
				firstErr = err
			}
			p.MarkDirty(false, nil)
		} else {
			if err := m.reloadPage(pid); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	m.locks.ReleaseAll(tid)

	if m.log != nil {
		m.log.WithField("txn", tid.String()).WithField("commit", commit).
			WithField("pages_touched", len(dirty)).Debug("transaction completed")
	}
	return firstErr
}

func (m *Manager) forcePage(p storage.Page) error {
	store, err := m.storeFor(p.ID().Table)
	if err != nil {
		return err
	}
	if err := store.WritePage(p); err != nil {
		return dberr.WrapIO(err, "forcing page "+p.ID().String()+" at commit")
	}
	return nil
}

// reloadPage replaces the cached contents of pid with a fresh read from
// disk. The cache entry is swapped, not dropped, so residency is unchanged.
// A page the aborting transaction created past the end of the file simply
// becomes an empty page again.
func (m *Manager) reloadPage(pid storage.PageID) error {
	store, err := m.storeFor(pid.Table)
	if err != nil {
		return err
	}
	fresh, err := store.ReadPage(pid)
	if err != nil {
		return dberr.WrapIO(err, "reloading page "+pid.String()+" at abort")
	}
	m.cache.Discard(pid)
	return m.cache.Put(pid, fresh)
}

// FlushAll writes every dirty resident page to disk regardless of which
// transaction owns it. Administrative use only: forcing another
// transaction's uncommitted writes to disk means a crash before that
// transaction commits leaves them visible. It logs the live transactions
// whose pages it is about to write for exactly that reason.
func (m *Manager) FlushAll() error {
	if m.log != nil {
		m.mu.Lock()
		live := make([]string, 0, len(m.dirtiedBy))
		for tid := range m.dirtiedBy {
			live = append(live, tid.String())
		}
		m.mu.Unlock()
		if len(live) > 0 {
			m.log.WithField("transactions", live).
				Warn("flushing uncommitted pages of live transactions to disk")
		}
	}

	var firstErr error
	for _, p := range m.cache.All() {
		if p.Dirtier() == nil {
			continue
		}
		if err := m.forcePage(p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.MarkDirty(false, nil)
	}
	return firstErr
}

// DiscardPage drops pid from the cache without writing it.
func (m *Manager) DiscardPage(pid storage.PageID) {
	m.cache.Discard(pid)
}

// Stats is a point-in-time snapshot of buffer pool counters.
type Stats struct {
	Resident  int
	Capacity  int
	Dirty     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Deadlocks uint64
}

// Stats returns a snapshot of cache occupancy and counters. It never blocks
// on a lock wait.
func (m *Manager) Stats() Stats {
	pages := m.cache.All()
	dirty := 0
	for _, p := range pages {
		if p.Dirtier() != nil {
			dirty++
		}
	}
	return Stats{
		Resident:  len(pages),
		Capacity:  m.cache.Capacity(),
		Dirty:     dirty,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.cache.Evictions(),
		Deadlocks: m.locks.Deadlocks(),
	}
}

// PageInfo describes one resident page for inspection tooling.
type PageInfo struct {
	ID      storage.PageID
	Dirty   bool
	Dirtier int64
	Locked  bool
}

// ResidentPages returns a snapshot of the cache contents from most to least
// recently inserted or dirtied.
func (m *Manager) ResidentPages() []PageInfo {
	ids := m.cache.IDs()
	out := make([]PageInfo, 0, len(ids))
	for _, pid := range ids {
		p, ok := m.cache.Get(pid)
		if !ok {
			continue
		}
		info := PageInfo{ID: pid, Locked: m.locks.HasAnyLock(pid)}
		if d := p.Dirtier(); d != nil {
			info.Dirty = true
			info.Dirtier = d.Num()
		}
		out = append(out, info)
	}
	return out
}

// WaitsFor exposes the lock table's current waits-for edges for inspection
// tooling.
func (m *Manager) WaitsFor() map[int64][]int64 {
	return m.locks.WaitsFor()
}

// Close flushes every dirty page and releases store resources.
func (m *Manager) Close() error {
	err := m.FlushAll()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stores {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
