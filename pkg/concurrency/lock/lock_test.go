package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
)

func pid(n uint64) storage.PageID {
	return storage.PageID{Table: 1, Number: storage.PageNumber(n)}
}

// acquireAsync runs Acquire in a goroutine and returns a channel carrying
// its result.
func acquireAsync(t *Table, tid *txn.ID, p storage.PageID, mode Mode) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- t.Acquire(tid, p, mode)
	}()
	return done
}

// mustBlock asserts that the acquire has not completed yet.
func mustBlock(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		t.Fatalf("acquire completed with %v, want it to block", err)
	case <-time.After(50 * time.Millisecond):
	}
}

// mustComplete waits for the acquire to finish and returns its error.
func mustComplete(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not complete")
		return nil
	}
}

func TestSharedLocksAreCompatible(t *testing.T) {
	lt := New()
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Shared))
	require.NoError(t, lt.Acquire(t2, pid(0), Shared))

	assert.True(t, lt.Holds(t1, pid(0)))
	assert.True(t, lt.Holds(t2, pid(0)))
}

func TestExclusiveBlocksShared(t *testing.T) {
	lt := New()
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Exclusive))

	done := acquireAsync(lt, t2, pid(0), Shared)
	mustBlock(t, done)

	lt.Release(t1, pid(0))
	require.NoError(t, mustComplete(t, done))
	assert.True(t, lt.Holds(t2, pid(0)))
}

func TestSharedBlocksExclusiveFromOthers(t *testing.T) {
	lt := New()
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Shared))

	done := acquireAsync(lt, t2, pid(0), Exclusive)
	mustBlock(t, done)

	lt.ReleaseAll(t1)
	require.NoError(t, mustComplete(t, done))
}

func TestReacquireIsIdempotent(t *testing.T) {
	lt := New()
	t1 := txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Exclusive))
	require.NoError(t, lt.Acquire(t1, pid(0), Exclusive))
	require.NoError(t, lt.Acquire(t1, pid(0), Shared)) // exclusive subsumes shared
	assert.True(t, lt.Holds(t1, pid(0)))
}

func TestSoleSharedHolderUpgrades(t *testing.T) {
	lt := New()
	t1 := txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Shared))
	require.NoError(t, lt.Acquire(t1, pid(0), Exclusive))
	assert.True(t, lt.Holds(t1, pid(0)))

	// The upgrade must not leave a shared entry that blocks nobody but
	// confuses eviction checks after release.
	lt.ReleaseAll(t1)
	assert.False(t, lt.HasAnyLock(pid(0)))
}

func TestUpgradeClearsOnlyThisPage(t *testing.T) {
	lt := New()
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lt.Acquire(t2, pid(1), Shared))
	require.NoError(t, lt.Acquire(t1, pid(0), Shared))
	require.NoError(t, lt.Acquire(t1, pid(0), Exclusive))

	// t2's shared lock on a different page survives t1's upgrade.
	assert.True(t, lt.Holds(t2, pid(1)))
}

func TestReleaseIsIdempotent(t *testing.T) {
	lt := New()
	t1 := txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Shared))
	lt.Release(t1, pid(0))
	lt.Release(t1, pid(0))
	lt.Release(t1, pid(9)) // never held
	assert.False(t, lt.Holds(t1, pid(0)))
}

func TestReleaseAllDropsEverything(t *testing.T) {
	lt := New()
	t1 := txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Shared))
	require.NoError(t, lt.Acquire(t1, pid(1), Exclusive))
	lt.ReleaseAll(t1)

	assert.False(t, lt.Holds(t1, pid(0)))
	assert.False(t, lt.Holds(t1, pid(1)))
	assert.False(t, lt.HasAnyLock(pid(0)))
	assert.False(t, lt.HasAnyLock(pid(1)))
}

func TestSimpleDeadlockAbortsRequester(t *testing.T) {
	lt := New()
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lt.Acquire(t1, pid(1), Exclusive))
	require.NoError(t, lt.Acquire(t2, pid(2), Exclusive))

	// t1 waits for t2.
	done := acquireAsync(lt, t1, pid(2), Exclusive)
	mustBlock(t, done)

	// Closing the cycle aborts the requester, immediately, and leaves the
	// incumbent waiter alone.
	err := lt.Acquire(t2, pid(1), Exclusive)
	require.Error(t, err)
	assert.True(t, dberr.Aborted(err))
	assert.EqualValues(t, 1, lt.Deadlocks())

	// t2 aborts its transaction; t1 then makes progress.
	lt.ReleaseAll(t2)
	require.NoError(t, mustComplete(t, done))
}

func TestUpgradeDeadlockAbortsLaterRequester(t *testing.T) {
	lt := New()
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Shared))
	require.NoError(t, lt.Acquire(t2, pid(0), Shared))

	// t1's upgrade waits on t2's shared lock; the self-edge on t1 is
	// ignored.
	done := acquireAsync(lt, t1, pid(0), Exclusive)
	mustBlock(t, done)

	// t2's upgrade would wait on t1, closing the cycle.
	err := lt.Acquire(t2, pid(0), Exclusive)
	require.Error(t, err)
	assert.True(t, dberr.Aborted(err))

	lt.ReleaseAll(t2)
	require.NoError(t, mustComplete(t, done))
	assert.True(t, lt.Holds(t1, pid(0)))
}

func TestDiamondWaitIsNotADeadlock(t *testing.T) {
	lt := New()
	a, b, c, d := txn.New(), txn.New(), txn.New(), txn.New()

	require.NoError(t, lt.Acquire(b, pid(1), Shared))
	require.NoError(t, lt.Acquire(c, pid(1), Shared))
	require.NoError(t, lt.Acquire(d, pid(2), Exclusive))

	// b and c both wait on d.
	bDone := acquireAsync(lt, b, pid(2), Shared)
	cDone := acquireAsync(lt, c, pid(2), Shared)
	mustBlock(t, bDone)
	mustBlock(t, cDone)

	// a waits on {b, c}, both of which reach d: two paths to one node,
	// no cycle, nobody may be aborted.
	aDone := acquireAsync(lt, a, pid(1), Exclusive)
	mustBlock(t, aDone)

	lt.ReleaseAll(d)
	require.NoError(t, mustComplete(t, bDone))
	require.NoError(t, mustComplete(t, cDone))

	lt.ReleaseAll(b)
	lt.ReleaseAll(c)
	require.NoError(t, mustComplete(t, aDone))
	assert.Zero(t, lt.Deadlocks())
}

func TestHasAnyLock(t *testing.T) {
	lt := New()
	t1 := txn.New()

	assert.False(t, lt.HasAnyLock(pid(0)))
	require.NoError(t, lt.Acquire(t1, pid(0), Shared))
	assert.True(t, lt.HasAnyLock(pid(0)))
	lt.ReleaseAll(t1)
	assert.False(t, lt.HasAnyLock(pid(0)))
}

func TestWaitsForSnapshot(t *testing.T) {
	lt := New()
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lt.Acquire(t1, pid(0), Exclusive))
	done := acquireAsync(lt, t2, pid(0), Shared)
	mustBlock(t, done)

	edges := lt.WaitsFor()
	require.Contains(t, edges, t2.Num())
	assert.Equal(t, []int64{t1.Num()}, edges[t2.Num()])

	lt.ReleaseAll(t1)
	require.NoError(t, mustComplete(t, done))
	assert.Empty(t, lt.WaitsFor())
}
