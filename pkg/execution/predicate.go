package execution

import (
	"fmt"

	"corestore/pkg/dberr"
	"corestore/pkg/tuple"
)

// Predicate compares one column of a tuple against a constant operand.
type Predicate struct {
	Col     int
	Op      tuple.CompareOp
	Operand tuple.Field
}

// NewPredicate builds a predicate over column col.
func NewPredicate(col int, op tuple.CompareOp, operand tuple.Field) (*Predicate, error) {
	if operand == nil {
		return nil, dberr.BadInput("predicate operand cannot be nil")
	}
	if col < 0 {
		return nil, dberr.BadInput("predicate column cannot be negative")
	}
	return &Predicate{Col: col, Op: op, Operand: operand}, nil
}

// Matches evaluates the predicate against t.
func (p *Predicate) Matches(t *tuple.Tuple) (bool, error) {
	if t == nil {
		return false, dberr.BadInput("cannot evaluate predicate on a nil tuple")
	}
	if p.Col >= len(t.Fields) {
		return false, dberr.BadInput("predicate column %d out of range for %d fields", p.Col, len(t.Fields))
	}
	return t.Fields[p.Col].Compare(p.Op, p.Operand)
}

func (p *Predicate) String() string {
	return fmt.Sprintf("col[%d] %s %s", p.Col, p.Op, p.Operand)
}
