package main

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"corestore/pkg/buffer"
	"corestore/pkg/catalog"
	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/execution"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

func newBenchCmd() *cobra.Command {
	var (
		workers int
		txns    int
		rows    int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run concurrent transactions against the bench table",
		Long: `bench drives many transactions at once through the buffer pool:
each transaction inserts rows, scans the table, and then commits or aborts.
Deadlock and pool-exhausted aborts are retried with a jittered delay, so the run doubles as a
manual exerciser for the lock table and the eviction path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			eng, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			return runBench(eng, workers, txns, rows)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent transaction drivers")
	cmd.Flags().IntVar(&txns, "txns", 50, "transactions per worker")
	cmd.Flags().IntVar(&rows, "rows", 10, "rows inserted per transaction")
	return cmd
}

func runBench(eng *engine, workers, txns, rows int) error {
	var commits, aborts, retries atomic.Int64
	start := time.Now()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(w) + start.UnixNano()))
			for i := 0; i < txns; i++ {
				if err := runOneTxn(eng.pool, eng.catalog, eng.bench, rng, w, rows, &aborts, &retries); err != nil {
					return err
				}
				commits.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	s := eng.pool.Stats()
	fmt.Printf("committed %d transactions in %s (%d deadlock or pool-exhausted aborts, %d retries)\n",
		commits.Load(), elapsed.Round(time.Millisecond), aborts.Load(), retries.Load())
	fmt.Printf("pool: %d/%d resident, %d hits, %d misses, %d evictions\n",
		s.Resident, s.Capacity, s.Hits, s.Misses, s.Evictions)
	return nil
}

// runOneTxn runs a single transaction to commit, retrying from scratch
// after a deadlock abort or an exhausted buffer pool.
func runOneTxn(pool *buffer.Manager, cat *catalog.Catalog, table storage.TableID,
	rng *rand.Rand, worker, rows int, aborts, retries *atomic.Int64) error {
	for {
		tid := txn.New()
		err := benchTxnBody(pool, cat, table, tid, rng, worker, rows)
		if err == nil {
			return pool.CompleteTransaction(tid, true)
		}

		if cerr := pool.CompleteTransaction(tid, false); cerr != nil {
			return cerr
		}
		if !dberr.Aborted(err) && !dberr.Exhausted(err) {
			return err
		}
		aborts.Add(1)
		retries.Add(1)
		time.Sleep(time.Duration(rng.Intn(20)+1) * time.Millisecond)
	}
}

func benchTxnBody(pool *buffer.Manager, cat *catalog.Catalog, table storage.TableID,
	tid *txn.ID, rng *rand.Rand, worker, rows int) error {
	for r := 0; r < rows; r++ {
		t := tuple.New(benchDesc, []tuple.Field{
			tuple.IntField{Value: rng.Int63()},
			tuple.StringField{Value: fmt.Sprintf("worker-%d", worker)},
		})
		if err := pool.InsertTuple(tid, table, t); err != nil {
			return err
		}
	}

	// Read back through the operator stack so the scan path, predicate
	// evaluation, and shared locking all get exercised under contention.
	scan, err := execution.NewSeqScan(pool, cat, tid, table)
	if err != nil {
		return err
	}
	pred, err := execution.NewPredicate(1, tuple.Equals,
		tuple.StringField{Value: fmt.Sprintf("worker-%d", worker)})
	if err != nil {
		return err
	}
	filter, err := execution.NewFilter(pred, scan)
	if err != nil {
		return err
	}
	if err := filter.Open(); err != nil {
		return err
	}
	defer filter.Close()

	for {
		ok, err := filter.HasNext()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := filter.Next(); err != nil {
			return err
		}
	}
}
