// Package execution holds the query operators that exercise the buffer
// pool end to end: a sequential scan, a predicate filter, and a consuming
// insert. Operators share the pull-based iterator shape: Open, HasNext,
// Next, Rewind, Close, with HasNext caching the tuple Next hands out.
package execution

import (
	"corestore/pkg/dberr"
	"corestore/pkg/tuple"
)

// Iterator is the operator interface.
type Iterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*tuple.Tuple, error)
	Rewind() error
	Close() error
	Desc() tuple.Description
}

// baseIterator factors the HasNext/Next caching every operator needs:
// readNext produces the next tuple or nil when the stream is done, and the
// base makes HasNext idempotent and Next consume.
type baseIterator struct {
	readNext func() (*tuple.Tuple, error)
	cached   *tuple.Tuple
	opened   bool
}

func newBaseIterator(readNext func() (*tuple.Tuple, error)) *baseIterator {
	return &baseIterator{readNext: readNext}
}

func (b *baseIterator) markOpened() { b.opened = true }

func (b *baseIterator) clearCache() { b.cached = nil }

func (b *baseIterator) close() error {
	b.opened = false
	b.cached = nil
	return nil
}

func (b *baseIterator) hasNext() (bool, error) {
	if !b.opened {
		return false, dberr.BadInput("operator is not open")
	}
	if b.cached != nil {
		return true, nil
	}
	t, err := b.readNext()
	if err != nil {
		return false, err
	}
	b.cached = t
	return t != nil, nil
}

func (b *baseIterator) next() (*tuple.Tuple, error) {
	ok, err := b.hasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberr.BadInput("operator is exhausted")
	}
	t := b.cached
	b.cached = nil
	return t, nil
}
