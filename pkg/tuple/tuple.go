package tuple

import (
	"bytes"
	"fmt"
	"io"

	"corestore/pkg/storage"
)

// ColumnDesc names and types one column of a Description.
type ColumnDesc struct {
	Name string
	Type Type
}

// Description is a table's schema: an ordered list of typed, named columns.
type Description struct {
	Columns []ColumnDesc
}

// Size returns the fixed encoded width in bytes of a Tuple matching this
// Description.
func (d Description) Size() int {
	n := 0
	for _, c := range d.Columns {
		switch c.Type {
		case IntType:
			n += IntFieldSize
		case StringType:
			n += StringFieldMaxLen
		}
	}
	return n
}

func (d Description) NumFields() int { return len(d.Columns) }

// Equals reports whether two descriptions have the same column types in the
// same order. Column names do not participate; a tuple built against a
// renamed view of the schema still fits the table.
func (d Description) Equals(other Description) bool {
	if len(d.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range d.Columns {
		if c.Type != other.Columns[i].Type {
			return false
		}
	}
	return true
}

// RecordID identifies a Tuple's storage location: the page holding it and
// its slot number within that page.
type RecordID struct {
	Page storage.PageID
	Slot int
}

func (r RecordID) String() string { return fmt.Sprintf("%s[%d]", r.Page, r.Slot) }

// Tuple is one row: a fixed sequence of Fields matching a Description, plus
// the RecordID of its storage location once it has been placed on a page.
type Tuple struct {
	Desc   Description
	Fields []Field
	RID    RecordID
}

// New creates a Tuple with no RecordID assigned yet (a fresh tuple about to
// be inserted).
func New(desc Description, fields []Field) *Tuple {
	return &Tuple{Desc: desc, Fields: fields}
}

// Encode serializes the tuple's fields in column order.
func (t *Tuple) Encode() ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range t.Fields {
		if err := f.Write(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode populates a Tuple's Fields by reading desc's columns in order
// from r.
func Decode(desc Description, r io.Reader) (*Tuple, error) {
	fields := make([]Field, len(desc.Columns))
	for i, col := range desc.Columns {
		switch col.Type {
		case IntType:
			f, err := ReadIntField(r)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		case StringType:
			f, err := ReadStringField(r)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		}
	}
	return &Tuple{Desc: desc, Fields: fields}, nil
}

func (t *Tuple) String() string {
	var buf bytes.Buffer
	for i, f := range t.Fields {
		if i > 0 {
			buf.WriteByte('\t')
		}
		buf.WriteString(f.String())
	}
	return buf.String()
}
