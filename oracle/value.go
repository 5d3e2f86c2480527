package oracle

import (
	"time"
)

// Value is a decoded field. It is one of NullValue, IntValue, FloatValue,
// StringValue, BoolValue, DateTimeValue, TimestampValue, BytesValue or
// CursorValue.
type Value interface {
	isValue()
}

type (
	NullValue   struct{}
	IntValue    int64
	FloatValue  float64
	StringValue string
	BoolValue   bool
	BytesValue  []byte
	// DateTimeValue is a DATE decoded at UTC.
	DateTimeValue struct{ time.Time }
	// TimestampValue carries the time zone offset reported by the server.
	TimestampValue struct{ time.Time }
	// CursorValue is a nested result set. Its cursor belongs to the parent
	// statement.
	CursorValue struct{ *Cursor }
)

func (NullValue) isValue()      {}
func (IntValue) isValue()       {}
func (FloatValue) isValue()     {}
func (StringValue) isValue()    {}
func (BoolValue) isValue()      {}
func (BytesValue) isValue()     {}
func (DateTimeValue) isValue()  {}
func (TimestampValue) isValue() {}
func (CursorValue) isValue()    {}

// Native returns v as a plain Go value: nil, int64, float64, string, bool,
// []byte, time.Time or *Cursor.
func Native(v Value) any {
	switch t := v.(type) {
	case IntValue:
		return int64(t)
	case FloatValue:
		return float64(t)
	case StringValue:
		return string(t)
	case BoolValue:
		return bool(t)
	case BytesValue:
		return []byte(t)
	case DateTimeValue:
		return t.Time
	case TimestampValue:
		return t.Time
	case CursorValue:
		return t.Cursor
	}
	return nil
}
