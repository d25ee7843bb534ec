// Package lock implements page-granularity two-phase locking with
// waits-for deadlock detection. All lock decisions run under a single
// mutex; waiters park on a condition variable that every release
// broadcasts, and re-check compatibility from scratch on wakeup.
package lock

import (
	"sync"

	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
)

// Mode is the access mode of a lock request. Shared locks are compatible
// with each other; an exclusive lock is compatible with nothing but its
// own holder.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Table is the authoritative owner of per-page lock state.
type Table struct {
	mu sync.Mutex
	cv *sync.Cond

	sharedHolders   map[storage.PageID]map[*txn.ID]bool
	exclusiveHolder map[storage.PageID]*txn.ID

	// waitsFor[t] is the set of transactions t is currently blocked on.
	// Populated only while t waits; re-waiting overwrites the prior set.
	waitsFor map[*txn.ID]map[*txn.ID]bool

	deadlocks uint64
}

// New creates an empty lock table.
func New() *Table {
	t := &Table{
		sharedHolders:   make(map[storage.PageID]map[*txn.ID]bool),
		exclusiveHolder: make(map[storage.PageID]*txn.ID),
		waitsFor:        make(map[*txn.ID]map[*txn.ID]bool),
	}
	t.cv = sync.NewCond(&t.mu)
	return t
}

// Acquire blocks the caller until (tid, pid, mode) is granted, or returns
// dberr.ErrTransactionAborted without blocking when waiting would close a
// deadlock cycle. The aborted party is always the requester, never an
// incumbent holder.
func (t *Table) Acquire(tid *txn.ID, pid storage.PageID, mode Mode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.canGrantLocked(tid, pid, mode) {
			t.grantLocked(tid, pid, mode)
			delete(t.waitsFor, tid)
			return nil
		}

		t.waitsFor[tid] = t.holdersLocked(pid, tid)

		if t.wouldDeadlockLocked(tid) {
			delete(t.waitsFor, tid)
			t.deadlocks++
			return dberr.ErrTransactionAborted
		}

		// Woken by some release somewhere; compatibility is re-evaluated
		// from scratch, so spurious wakeups are harmless.
		t.cv.Wait()
	}
}

// canGrantLocked decides compatibility for one request against the current
// holders of pid.
func (t *Table) canGrantLocked(tid *txn.ID, pid storage.PageID, mode Mode) bool {
	excl := t.exclusiveHolder[pid]

	if mode == Shared {
		return excl == nil || excl == tid
	}

	if excl == tid {
		return true
	}
	shared := t.sharedHolders[pid]
	if excl == nil && len(shared) == 0 {
		return true
	}
	if excl == nil && len(shared) == 1 && shared[tid] {
		return true // sole shared holder upgrading
	}
	return false
}

// grantLocked records the grant decided by canGrantLocked. An exclusive
// grant clears the shared holders of this page only; shared holders of
// other pages are untouched.
func (t *Table) grantLocked(tid *txn.ID, pid storage.PageID, mode Mode) {
	if mode == Shared {
		if t.sharedHolders[pid] == nil {
			t.sharedHolders[pid] = make(map[*txn.ID]bool)
		}
		t.sharedHolders[pid][tid] = true
		return
	}

	delete(t.sharedHolders, pid)
	t.exclusiveHolder[pid] = tid
}

// holdersLocked returns the transactions currently holding any lock on pid,
// excluding tid itself. A requester upgrading from shared appears in the
// shared set of the page it is requesting; that self-edge never counts as
// a wait.
func (t *Table) holdersLocked(pid storage.PageID, tid *txn.ID) map[*txn.ID]bool {
	out := make(map[*txn.ID]bool)
	if excl := t.exclusiveHolder[pid]; excl != nil && excl != tid {
		out[excl] = true
	}
	for h := range t.sharedHolders[pid] {
		if h != tid {
			out[h] = true
		}
	}
	return out
}

// wouldDeadlockLocked reports whether tid can reach itself over the
// waits-for edges, i.e. whether blocking tid now closes a cycle. Reaching
// an unrelated already-seen node (a diamond, two waiters stuck on the same
// holder) is not a cycle and must not abort anyone.
func (t *Table) wouldDeadlockLocked(tid *txn.ID) bool {
	seen := make(map[*txn.ID]bool)
	stack := make([]*txn.ID, 0, len(t.waitsFor[tid]))
	for n := range t.waitsFor[tid] {
		if n != tid {
			stack = append(stack, n)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == tid {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for next := range t.waitsFor[n] {
			stack = append(stack, next)
		}
	}
	return false
}

// Release drops tid's lock on pid, if any. Idempotent.
func (t *Table) Release(tid *txn.ID, pid storage.PageID) {
	t.mu.Lock()
	t.releaseLocked(tid, pid)
	t.mu.Unlock()
	t.cv.Broadcast()
}

func (t *Table) releaseLocked(tid *txn.ID, pid storage.PageID) {
	if t.exclusiveHolder[pid] == tid {
		delete(t.exclusiveHolder, pid)
	}
	if holders := t.sharedHolders[pid]; holders != nil {
		delete(holders, tid)
		if len(holders) == 0 {
			delete(t.sharedHolders, pid)
		}
	}
}

// ReleaseAll drops every lock tid holds and clears its waits-for edges.
// This is the entire shrinking phase of two-phase locking for tid.
func (t *Table) ReleaseAll(tid *txn.ID) {
	t.mu.Lock()
	for pid, holder := range t.exclusiveHolder {
		if holder == tid {
			delete(t.exclusiveHolder, pid)
		}
	}
	for pid, holders := range t.sharedHolders {
		if holders[tid] {
			delete(holders, tid)
			if len(holders) == 0 {
				delete(t.sharedHolders, pid)
			}
		}
	}
	delete(t.waitsFor, tid)
	t.mu.Unlock()
	t.cv.Broadcast()
}

// Holds reports whether tid currently holds any lock on pid.
func (t *Table) Holds(tid *txn.ID, pid storage.PageID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exclusiveHolder[pid] == tid {
		return true
	}
	return t.sharedHolders[pid][tid]
}

// HasAnyLock reports whether any transaction holds any lock on pid. The
// cache consults this before choosing an eviction victim: evicting a locked
// page would let the next reader of the same identity bypass the lock
// already held on it.
func (t *Table) HasAnyLock(pid storage.PageID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exclusiveHolder[pid] != nil {
		return true
	}
	return len(t.sharedHolders[pid]) > 0
}

// Deadlocks returns the number of requests aborted by cycle detection.
func (t *Table) Deadlocks() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadlocks
}

// WaitsFor returns a snapshot of the current waits-for edges keyed by the
// waiter's numeric id, for inspection tooling.
func (t *Table) WaitsFor() map[int64][]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64][]int64, len(t.waitsFor))
	for waiter, holders := range t.waitsFor {
		for h := range holders {
			out[waiter.Num()] = append(out[waiter.Num()], h.Num())
		}
	}
	return out
}
