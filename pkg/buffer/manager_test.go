package buffer_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corestore/pkg/buffer"
	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/logging"
	"corestore/pkg/storage"
	"corestore/pkg/storage/heap"
	"corestore/pkg/tuple"
)

var testDesc = tuple.Description{
	Columns: []tuple.ColumnDesc{
		{Name: "id", Type: tuple.IntType},
		{Name: "name", Type: tuple.StringType},
	},
}

func row(id int64, name string) *tuple.Tuple {
	return tuple.New(testDesc, []tuple.Field{
		tuple.IntField{Value: id},
		tuple.StringField{Value: name},
	})
}

func newTestPool(t *testing.T, capacity int) (*buffer.Manager, *heap.File) {
	t.Helper()
	pool := buffer.New(capacity, logging.Discard())
	f, err := heap.Open(filepath.Join(t.TempDir(), "test.dat"), testDesc)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	pool.RegisterStore(f)
	return pool, f
}

// smallPages shrinks pages so each holds exactly one testDesc tuple,
// making page counts easy to reason about.
func smallPages(t *testing.T) {
	t.Helper()
	storage.SetPageSizeForTest(256)
	t.Cleanup(storage.ResetPageSize)
}

func scanAll(t *testing.T, pool *buffer.Manager, f *heap.File, tid *txn.ID) []*tuple.Tuple {
	t.Helper()
	it := f.Iterator(pool, tid)
	require.NoError(t, it.Open())
	defer it.Close()
	var out []*tuple.Tuple
	for {
		ok, err := it.HasNext()
		require.NoError(t, err)
		if !ok {
			return out
		}
		tp, err := it.Next()
		require.NoError(t, err)
		out = append(out, tp)
	}
}

func TestSharedReadersDoNotBlock(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t0 := txn.New()
	require.NoError(t, pool.InsertTuple(t0, f.ID(), row(1, "a")))
	require.NoError(t, pool.CompleteTransaction(t0, true))

	pid := storage.PageID{Table: f.ID(), Number: 0}
	t1, t2 := txn.New(), txn.New()

	p1, err := pool.GetPage(t1, pid, buffer.ReadOnly)
	require.NoError(t, err)
	p2, err := pool.GetPage(t2, pid, buffer.ReadOnly)
	require.NoError(t, err)

	assert.Same(t, p1, p2, "both readers share the cached handle")
	require.NoError(t, pool.CompleteTransaction(t1, true))
	require.NoError(t, pool.CompleteTransaction(t2, true))
}

func TestWriterBlocksReaderUntilCommit(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t1 := txn.New()
	require.NoError(t, pool.InsertTuple(t1, f.ID(), row(1, "committed")))
	pid := storage.PageID{Table: f.ID(), Number: 0}

	t2 := txn.New()
	type result struct {
		page storage.Page
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := pool.GetPage(t2, pid, buffer.ReadOnly)
		done <- result{p, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("reader returned (%v, %v) while writer held the page", r.page, r.err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, pool.CompleteTransaction(t1, true))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		tuples := r.page.(*heap.Page).Tuples()
		require.Len(t, tuples, 1)
		assert.Equal(t, "committed", tuples[0].Fields[1].String())
	case <-time.After(2 * time.Second):
		t.Fatal("reader never unblocked after commit")
	}
	require.NoError(t, pool.CompleteTransaction(t2, true))
}

func TestNoStealAndForceAtCommit(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t1 := txn.New()
	require.NoError(t, pool.InsertTuple(t1, f.ID(), row(42, "durable")))

	// Uncommitted writes must not be on disk: the file has no pages yet.
	n, err := f.NumPages()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "dirty page reached disk before commit")

	require.NoError(t, pool.CompleteTransaction(t1, true))

	// After commit the bytes must be on disk, visible to a raw read that
	// bypasses the cache.
	p, err := f.ReadPage(storage.PageID{Table: f.ID(), Number: 0})
	require.NoError(t, err)
	tuples := p.(*heap.Page).Tuples()
	require.Len(t, tuples, 1)
	assert.Equal(t, int64(42), tuples[0].Fields[0].(tuple.IntField).Value)
}

func TestAbortRestoresCommittedBytes(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t0 := txn.New()
	require.NoError(t, pool.InsertTuple(t0, f.ID(), row(1, "keep")))
	require.NoError(t, pool.CompleteTransaction(t0, true))

	t1 := txn.New()
	require.NoError(t, pool.InsertTuple(t1, f.ID(), row(2, "discard")))
	require.NoError(t, pool.CompleteTransaction(t1, false))

	t2 := txn.New()
	rows := scanAll(t, pool, f, t2)
	require.Len(t, rows, 1)
	assert.Equal(t, "keep", rows[0].Fields[1].String())
	require.NoError(t, pool.CompleteTransaction(t2, true))
}

func TestAbortOfFreshPageLeavesTableEmpty(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t1 := txn.New()
	require.NoError(t, pool.InsertTuple(t1, f.ID(), row(1, "ghost")))
	require.NoError(t, pool.CompleteTransaction(t1, false))

	t2 := txn.New()
	assert.Empty(t, scanAll(t, pool, f, t2))
	require.NoError(t, pool.CompleteTransaction(t2, true))
}

func TestResourceExhaustedWhenAllPagesDirty(t *testing.T) {
	smallPages(t)
	pool, f := newTestPool(t, 3)

	t1 := txn.New()
	for i := int64(0); i < 3; i++ {
		require.NoError(t, pool.InsertTuple(t1, f.ID(), row(i, "x")))
	}
	assert.Equal(t, 3, pool.Stats().Dirty)

	err := pool.InsertTuple(t1, f.ID(), row(99, "overflow"))
	require.Error(t, err)
	assert.True(t, dberr.Exhausted(err))

	// After commit the same insert finds an eviction victim.
	require.NoError(t, pool.CompleteTransaction(t1, true))
	t2 := txn.New()
	require.NoError(t, pool.InsertTuple(t2, f.ID(), row(99, "fits")))
	require.NoError(t, pool.CompleteTransaction(t2, true))
	assert.LessOrEqual(t, pool.Stats().Resident, 3)
}

func TestLocksReleasedOnCompletion(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t1 := txn.New()
	require.NoError(t, pool.InsertTuple(t1, f.ID(), row(1, "a")))
	pid := storage.PageID{Table: f.ID(), Number: 0}
	assert.True(t, pool.HoldsLock(t1, pid))

	require.NoError(t, pool.CompleteTransaction(t1, true))
	assert.False(t, pool.HoldsLock(t1, pid))

	t2 := txn.New()
	_, err := pool.GetPage(t2, pid, buffer.ReadOnly)
	require.NoError(t, err)
	require.NoError(t, pool.CompleteTransaction(t2, false))
	assert.False(t, pool.HoldsLock(t2, pid))
}

func TestInsertScanReleasesFullPages(t *testing.T) {
	smallPages(t)
	pool, f := newTestPool(t, 10)

	t0 := txn.New()
	require.NoError(t, pool.InsertTuple(t0, f.ID(), row(1, "full")))
	require.NoError(t, pool.CompleteTransaction(t0, true))

	// t1's insert scans page 0, finds it full, and must drop the scan
	// lock instead of pinning the page until commit.
	t1 := txn.New()
	require.NoError(t, pool.InsertTuple(t1, f.ID(), row(2, "next")))
	assert.False(t, pool.HoldsLock(t1, storage.PageID{Table: f.ID(), Number: 0}))
	assert.True(t, pool.HoldsLock(t1, storage.PageID{Table: f.ID(), Number: 1}))
	require.NoError(t, pool.CompleteTransaction(t1, true))
}

func TestDeleteAndUpdateTuple(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t0 := txn.New()
	require.NoError(t, pool.InsertTuple(t0, f.ID(), row(1, "a")))
	require.NoError(t, pool.InsertTuple(t0, f.ID(), row(2, "b")))
	require.NoError(t, pool.CompleteTransaction(t0, true))

	t1 := txn.New()
	rows := scanAll(t, pool, f, t1)
	require.Len(t, rows, 2)

	require.NoError(t, pool.DeleteTuple(t1, rows[0]))
	require.NoError(t, pool.UpdateTuple(t1, rows[1], row(3, "c")))
	require.NoError(t, pool.CompleteTransaction(t1, true))

	t2 := txn.New()
	rows = scanAll(t, pool, f, t2)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Fields[0].(tuple.IntField).Value)
	require.NoError(t, pool.CompleteTransaction(t2, true))
}

func TestBadInputErrors(t *testing.T) {
	pool, f := newTestPool(t, 10)
	t1 := txn.New()

	err := pool.InsertTuple(t1, f.ID(), nil)
	assert.ErrorIs(t, err, dberr.ErrBadInput)

	err = pool.InsertTuple(t1, 12345, row(1, "a"))
	assert.ErrorIs(t, err, dberr.ErrBadInput)

	mismatched := tuple.New(
		tuple.Description{Columns: []tuple.ColumnDesc{{Name: "only", Type: tuple.IntType}}},
		[]tuple.Field{tuple.IntField{Value: 1}},
	)
	err = pool.InsertTuple(t1, f.ID(), mismatched)
	assert.ErrorIs(t, err, dberr.ErrBadInput)

	err = pool.DeleteTuple(t1, row(1, "never-inserted"))
	assert.ErrorIs(t, err, dberr.ErrBadInput)

	require.NoError(t, pool.CompleteTransaction(t1, false))
}

func TestDiscardPage(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t0 := txn.New()
	require.NoError(t, pool.InsertTuple(t0, f.ID(), row(1, "a")))
	require.NoError(t, pool.CompleteTransaction(t0, true))
	require.Equal(t, 1, pool.Stats().Resident)

	pool.DiscardPage(storage.PageID{Table: f.ID(), Number: 0})
	assert.Zero(t, pool.Stats().Resident)

	// The page is still on disk; the next read repopulates the cache.
	t1 := txn.New()
	assert.Len(t, scanAll(t, pool, f, t1), 1)
	require.NoError(t, pool.CompleteTransaction(t1, true))
}

func TestFlushAllWritesDirtyPages(t *testing.T) {
	pool, f := newTestPool(t, 10)

	t1 := txn.New()
	require.NoError(t, pool.InsertTuple(t1, f.ID(), row(7, "flushed")))
	require.NoError(t, pool.FlushAll())

	p, err := f.ReadPage(storage.PageID{Table: f.ID(), Number: 0})
	require.NoError(t, err)
	require.Len(t, p.(*heap.Page).Tuples(), 1)
	require.NoError(t, pool.CompleteTransaction(t1, true))
}

func TestConcurrentTransactions(t *testing.T) {
	pool, f := newTestPool(t, 10)

	const workers, perWorker = 4, 5
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		w := w
		go func() {
			for i := 0; i < perWorker; i++ {
				for {
					tid := txn.New()
					err := pool.InsertTuple(tid, f.ID(), row(int64(w*100+i), fmt.Sprintf("w%d", w)))
					if err == nil {
						err = pool.CompleteTransaction(tid, true)
						if err == nil {
							break
						}
						errs <- err
						return
					}
					if cerr := pool.CompleteTransaction(tid, false); cerr != nil {
						errs <- cerr
						return
					}
					if !dberr.Aborted(err) && !dberr.Exhausted(err) {
						errs <- err
						return
					}
					time.Sleep(time.Millisecond)
				}
			}
			errs <- nil
		}()
	}
	for w := 0; w < workers; w++ {
		require.NoError(t, <-errs)
	}

	tid := txn.New()
	assert.Len(t, scanAll(t, pool, f, tid), workers*perWorker)
	require.NoError(t, pool.CompleteTransaction(tid, true))
	assert.LessOrEqual(t, pool.Stats().Resident, 10)
}
