package execution

import (
	"corestore/pkg/buffer"
	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

var insertDesc = tuple.Description{
	Columns: []tuple.ColumnDesc{{Name: "inserted", Type: tuple.IntType}},
}

// Insert drains its child into a table and yields a single tuple holding
// the number of rows inserted.
type Insert struct {
	base    *baseIterator
	pool    *buffer.Manager
	tid     *txn.ID
	tableID storage.TableID
	child   Iterator
	done    bool
}

// NewInsert creates an insert of child's output into tableID.
func NewInsert(pool *buffer.Manager, tid *txn.ID, tableID storage.TableID, child Iterator) (*Insert, error) {
	if child == nil {
		return nil, dberr.BadInput("insert child cannot be nil")
	}
	in := &Insert{pool: pool, tid: tid, tableID: tableID, child: child}
	in.base = newBaseIterator(in.readNext)
	return in, nil
}

func (in *Insert) Open() error {
	if err := in.child.Open(); err != nil {
		return err
	}
	in.base.markOpened()
	return nil
}

func (in *Insert) readNext() (*tuple.Tuple, error) {
	if in.done {
		return nil, nil
	}
	in.done = true

	count := int64(0)
	for {
		ok, err := in.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		t, err := in.child.Next()
		if err != nil {
			return nil, err
		}
		if err := in.pool.InsertTuple(in.tid, in.tableID, t); err != nil {
			return nil, err
		}
		count++
	}
	return tuple.New(insertDesc, []tuple.Field{tuple.IntField{Value: count}}), nil
}

func (in *Insert) HasNext() (bool, error)      { return in.base.hasNext() }
func (in *Insert) Next() (*tuple.Tuple, error) { return in.base.next() }
func (in *Insert) Desc() tuple.Description     { return insertDesc }

func (in *Insert) Rewind() error {
	// Re-running an insert would insert the rows a second time.
	return dberr.BadInput("insert cannot be rewound")
}

func (in *Insert) Close() error {
	_ = in.child.Close()
	return in.base.close()
}
