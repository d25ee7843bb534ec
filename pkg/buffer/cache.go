// Package buffer implements the transactional buffer pool: a fixed-capacity
// page cache whose eviction respects dirty and locked state, glued to the
// lock table so callers get NO STEAL / FORCE page access. Dirty pages of a
// live transaction never leave the cache through eviction; they are written
// at that transaction's commit and reloaded from disk at its abort.
package buffer

import (
	"container/list"
	"sync"

	"github.com/sirupsen/logrus"

	"corestore/pkg/dberr"
	"corestore/pkg/storage"
)

// entry is the cache's bookkeeping record for one resident page.
type entry struct {
	page storage.Page
	elem *list.Element // position in the touch-order list
}

// Cache is the fixed-capacity page cache. Touch order approximates LRU:
// entries move to the front on insert and re-insert (a page is re-inserted
// whenever it is dirtied), while a pure lookup leaves the order alone.
type Cache struct {
	capacity int

	mu        sync.Mutex
	touch     *list.List // front = most recently inserted/dirtied
	byID      map[storage.PageID]*entry
	locked    locker
	evictions uint64
	log       *logrus.Entry
}

// locker reports whether any transaction holds a lock on a page. Satisfied
// by *lock.Table; kept as a narrow interface so this package does not
// import lock and create a cycle.
type locker interface {
	HasAnyLock(pid storage.PageID) bool
}

// NewCache creates a Cache holding up to capacity pages, consulting lk to
// decide whether a candidate victim is safe to evict.
func NewCache(capacity int, lk locker, log *logrus.Entry) *Cache {
	return &Cache{
		capacity: capacity,
		touch:    list.New(),
		byID:     make(map[storage.PageID]*entry),
		locked:   lk,
		log:      log,
	}
}

// Get returns the cached page for pid, if resident. A lookup does not
// change the touch order.
func (c *Cache) Get(pid storage.PageID) (storage.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[pid]
	if !ok {
		return nil, false
	}
	return e.page, true
}

// Len returns the number of resident pages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Capacity returns the maximum number of resident pages.
func (c *Cache) Capacity() int { return c.capacity }

// Evictions returns the number of pages evicted so far.
func (c *Cache) Evictions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

// Put inserts p into the cache, moving it to the front of the touch order.
// If pid is already resident, its entry is replaced in place. If the cache
// is at capacity, a victim is evicted first; when no clean, unlocked victim
// exists, Put returns dberr.ErrResourceExhausted and the cache is
// unchanged.
func (c *Cache) Put(pid storage.PageID, p storage.Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byID[pid]; ok {
		e.page = p
		c.touch.MoveToFront(e.elem)
		return nil
	}

	if len(c.byID) >= c.capacity {
		if !c.evictOneLocked() {
			return dberr.ErrResourceExhausted
		}
	}

	e := &entry{page: p}
	e.elem = c.touch.PushFront(pid)
	c.byID[pid] = e
	return nil
}

// evictOneLocked scans from the back of the touch order (oldest first) for
// the first page that is both clean and unlocked, and removes it. Returns
// false if every resident page is dirty or locked.
func (c *Cache) evictOneLocked() bool {
	for e := c.touch.Back(); e != nil; e = e.Prev() {
		pid := e.Value.(storage.PageID)
		ent := c.byID[pid]
		if ent.page.Dirtier() != nil {
			continue
		}
		if c.locked.HasAnyLock(pid) {
			continue
		}
		c.touch.Remove(e)
		delete(c.byID, pid)
		c.evictions++
		if c.log != nil {
			c.log.WithField("page", pid.String()).Debug("evicted cache page")
		}
		return true
	}
	return false
}

// Discard removes pid from the cache unconditionally, without regard to
// dirty or locked state and without writing anything.
func (c *Cache) Discard(pid storage.PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[pid]
	if !ok {
		return
	}
	c.touch.Remove(e.elem)
	delete(c.byID, pid)
}

// All returns a snapshot of every resident page.
func (c *Cache) All() []storage.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]storage.Page, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e.page)
	}
	return out
}

// IDs returns the resident page identities from most to least recently
// inserted or dirtied.
func (c *Cache) IDs() []storage.PageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]storage.PageID, 0, len(c.byID))
	for e := c.touch.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(storage.PageID))
	}
	return out
}
