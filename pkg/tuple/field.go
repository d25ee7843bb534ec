// Package tuple defines the record format the heap file and buffer pool
// move around: typed fields, fixed-width tuples, and the record id that
// names a tuple's storage location.
package tuple

import (
	"encoding/binary"
	"fmt"
	"io"

	"corestore/pkg/dberr"
)

// Type identifies a field's on-disk representation.
type Type int

const (
	IntType Type = iota
	StringType
)

// IntFieldSize is the fixed encoded width of an IntField.
const IntFieldSize = 8

// StringFieldMaxLen bounds a StringField's encoded payload, so every
// StringField in a table occupies the same number of bytes on disk and the
// heap page layout can assume fixed-width slots.
const StringFieldMaxLen = 128

// CompareOp is a comparison a predicate applies between a tuple's field and
// an operand.
type CompareOp int

const (
	Equals CompareOp = iota
	NotEquals
	LessThan
	LessOrEq
	GreaterThan
	GreaterOrEq
)

func (op CompareOp) String() string {
	switch op {
	case Equals:
		return "="
	case NotEquals:
		return "!="
	case LessThan:
		return "<"
	case LessOrEq:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterOrEq:
		return ">="
	}
	return "?"
}

// Field is one column's value within a Tuple.
type Field interface {
	Type() Type
	Write(w io.Writer) error
	Compare(op CompareOp, other Field) (bool, error)
	String() string
}

// IntField is a fixed-width 64-bit signed integer field.
type IntField struct{ Value int64 }

func (f IntField) Type() Type { return IntType }

func (f IntField) Write(w io.Writer) error {
	var buf [IntFieldSize]byte
	binary.BigEndian.PutUint64(buf[:], uint64(f.Value))
	_, err := w.Write(buf[:])
	return err
}

func (f IntField) Compare(op CompareOp, other Field) (bool, error) {
	o, ok := other.(IntField)
	if !ok {
		return false, dberr.BadInput("cannot compare int field against %T", other)
	}
	switch op {
	case Equals:
		return f.Value == o.Value, nil
	case NotEquals:
		return f.Value != o.Value, nil
	case LessThan:
		return f.Value < o.Value, nil
	case LessOrEq:
		return f.Value <= o.Value, nil
	case GreaterThan:
		return f.Value > o.Value, nil
	case GreaterOrEq:
		return f.Value >= o.Value, nil
	}
	return false, dberr.BadInput("unknown comparison op %d", op)
}

func (f IntField) String() string { return fmt.Sprintf("%d", f.Value) }

// ReadIntField decodes an IntField previously written by IntField.Write.
func ReadIntField(r io.Reader) (IntField, error) {
	var buf [IntFieldSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return IntField{}, err
	}
	return IntField{Value: int64(binary.BigEndian.Uint64(buf[:]))}, nil
}

// StringField is a variable-length string stored in a fixed-width slot of
// StringFieldMaxLen bytes, length-prefixed within that slot.
type StringField struct{ Value string }

func (f StringField) Type() Type { return StringType }

func (f StringField) Write(w io.Writer) error {
	v := f.Value
	if len(v) > StringFieldMaxLen-2 {
		v = v[:StringFieldMaxLen-2]
	}
	buf := make([]byte, StringFieldMaxLen)
	binary.BigEndian.PutUint16(buf[:2], uint16(len(v)))
	copy(buf[2:], v)
	_, err := w.Write(buf)
	return err
}

func (f StringField) Compare(op CompareOp, other Field) (bool, error) {
	o, ok := other.(StringField)
	if !ok {
		return false, dberr.BadInput("cannot compare string field against %T", other)
	}
	switch op {
	case Equals:
		return f.Value == o.Value, nil
	case NotEquals:
		return f.Value != o.Value, nil
	case LessThan:
		return f.Value < o.Value, nil
	case LessOrEq:
		return f.Value <= o.Value, nil
	case GreaterThan:
		return f.Value > o.Value, nil
	case GreaterOrEq:
		return f.Value >= o.Value, nil
	}
	return false, dberr.BadInput("unknown comparison op %d", op)
}

func (f StringField) String() string { return f.Value }

// ReadStringField decodes a StringField previously written by
// StringField.Write.
func ReadStringField(r io.Reader) (StringField, error) {
	buf := make([]byte, StringFieldMaxLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return StringField{}, err
	}
	n := binary.BigEndian.Uint16(buf[:2])
	if int(n) > StringFieldMaxLen-2 {
		return StringField{}, dberr.BadInput("corrupt string field: length %d", n)
	}
	return StringField{Value: string(buf[2 : 2+n])}, nil
}
