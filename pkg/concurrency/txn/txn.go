// Package txn defines the transaction identity threaded through every
// buffer-pool and lock-table operation.
package txn

import (
	"fmt"
	"sync/atomic"
)

var counter int64

// ID is an opaque, comparable transaction identity. Two IDs are equal iff
// they are the same pointer; callers must thread the *ID a transaction was
// issued, never reconstruct one from its numeric value.
type ID struct {
	n int64
}

// New allocates a fresh, globally unique transaction ID.
func New() *ID {
	return &ID{n: atomic.AddInt64(&counter, 1)}
}

// Num returns the numeric value, for logging and metrics labels only.
func (t *ID) Num() int64 {
	if t == nil {
		return 0
	}
	return t.n
}

func (t *ID) String() string {
	return fmt.Sprintf("txn#%d", t.Num())
}
