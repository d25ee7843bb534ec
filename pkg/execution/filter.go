package execution

import (
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

func errNotHeap(id storage.TableID) error {
	return dberr.BadInput("table %d is not backed by a heap file", id)
}

// Filter passes through the child's tuples that match a predicate.
type Filter struct {
	base      *baseIterator
	predicate *Predicate
	child     Iterator
}

// NewFilter wraps child with predicate.
func NewFilter(predicate *Predicate, child Iterator) (*Filter, error) {
	if predicate == nil {
		return nil, dberr.BadInput("filter predicate cannot be nil")
	}
	if child == nil {
		return nil, dberr.BadInput("filter child cannot be nil")
	}
	f := &Filter{predicate: predicate, child: child}
	f.base = newBaseIterator(f.readNext)
	return f, nil
}

func (f *Filter) Open() error {
	if err := f.child.Open(); err != nil {
		return err
	}
	f.base.markOpened()
	return nil
}

func (f *Filter) readNext() (*tuple.Tuple, error) {
	for {
		ok, err := f.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		t, err := f.child.Next()
		if err != nil {
			return nil, err
		}
		matches, err := f.predicate.Matches(t)
		if err != nil {
			return nil, err
		}
		if matches {
			return t, nil
		}
	}
}

func (f *Filter) HasNext() (bool, error)      { return f.base.hasNext() }
func (f *Filter) Next() (*tuple.Tuple, error) { return f.base.next() }
func (f *Filter) Desc() tuple.Description     { return f.child.Desc() }

func (f *Filter) Rewind() error {
	if err := f.child.Rewind(); err != nil {
		return err
	}
	f.base.clearCache()
	return nil
}

func (f *Filter) Close() error {
	_ = f.child.Close()
	return f.base.close()
}
