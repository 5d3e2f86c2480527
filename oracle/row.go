package oracle

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/tomyedwab/ocidb/oci"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Row is the current row of a cursor. Fields read the native result set on
// demand, so a Row and its Fields are only valid until the cursor fetches
// again or is re-executed. Dict and List return snapshots that stay valid.
type Row struct {
	cursor  *Cursor
	gen     uint64
	columns []Column

	list []Value
}

func (r *Row) valid() bool {
	return r.cursor.gen == r.gen
}

func (r *Row) Columns() []Column {
	return r.columns
}

// Field returns the field of the named column, or nil if there is none.
// Names are matched exactly first, then case-insensitively.
func (r *Row) Field(name string) *Field {
	for i, col := range r.columns {
		if col.Name == name {
			return r.FieldAt(i)
		}
	}
	for i, col := range r.columns {
		if strings.EqualFold(col.Name, name) {
			return r.FieldAt(i)
		}
	}
	return nil
}

// FieldAt returns the field at the 0-based position i, or nil when i is
// out of range.
func (r *Row) FieldAt(i int) *Field {
	if i < 0 || i >= len(r.columns) {
		return nil
	}
	return &Field{row: r, index: uint32(i + 1), column: r.columns[i]}
}

// List decodes every column in order.
func (r *Row) List() ([]Value, error) {
	if r.list != nil {
		return r.list, nil
	}
	list := make([]Value, len(r.columns))
	for i := range r.columns {
		v, err := r.FieldAt(i).Value()
		if err != nil {
			return nil, err
		}
		if b, ok := v.(BytesValue); ok {
			v = BytesValue(append([]byte(nil), b...))
		}
		list[i] = v
	}
	r.list = list
	return list, nil
}

// Dict decodes every column keyed by column name.
func (r *Row) Dict() (map[string]Value, error) {
	list, err := r.List()
	if err != nil {
		return nil, err
	}
	dict := make(map[string]Value, len(list))
	for i, col := range r.columns {
		dict[col.Name] = list[i]
	}
	return dict, nil
}

// MarshalJSON renders the row as an object keyed by column name. Nested
// cursors render as null.
func (r *Row) MarshalJSON() ([]byte, error) {
	dict, err := r.Dict()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(dict))
	for name, v := range dict {
		if _, ok := v.(CursorValue); ok {
			out[name] = nil
			continue
		}
		out[name] = Native(v)
	}
	return json.Marshal(out)
}

// Field reads one column of a Row.
type Field struct {
	row    *Row
	index  uint32
	column Column
}

func (f *Field) Name() string {
	return f.column.Name
}

func (f *Field) Type() DataType {
	return f.column.Type
}

// IsNull reports whether the field is null. It is false once the row is no
// longer current.
func (f *Field) IsNull() bool {
	if !f.row.valid() {
		return false
	}
	c := f.row.cursor
	return c.lib.IsNull(c.rs, f.index)
}

func (f *Field) check() (*Cursor, error) {
	if !f.row.valid() {
		return nil, ErrRowInvalid
	}
	c := f.row.cursor
	if c.lib.IsNull(c.rs, f.index) {
		return nil, ErrNullField
	}
	return c, nil
}

func (f *Field) fail(c *Cursor, err error) error {
	return wrapNative(c.lib, KindExecutionFailed, err, c.sql, "failed to read column %s", f.column.Name)
}

// Value decodes the field according to its column type. A null field
// decodes to NullValue whatever the type.
func (f *Field) Value() (Value, error) {
	c, err := f.check()
	if err == ErrNullField {
		return NullValue{}, nil
	}
	if err != nil {
		return nil, err
	}

	switch f.column.Type.Kind {
	case TypeString:
		s, err := c.lib.GetString(c.rs, f.index)
		if err != nil {
			return nil, f.fail(c, err)
		}
		return StringValue(s), nil
	case TypeLong:
		return f.long(c)
	case TypeInteger:
		i, err := c.lib.GetInt(c.rs, f.index)
		if err != nil {
			return nil, f.fail(c, err)
		}
		return IntValue(i), nil
	case TypeNumber, TypeFloat:
		d, err := c.lib.GetDouble(c.rs, f.index)
		if err != nil {
			return nil, f.fail(c, err)
		}
		return FloatValue(d), nil
	case TypeBool:
		b, err := f.Bool()
		if err != nil {
			return nil, err
		}
		return BoolValue(b), nil
	case TypeDate:
		t, err := f.date(c)
		if err != nil {
			return nil, err
		}
		return DateTimeValue{t}, nil
	case TypeTimestamp:
		t, err := f.timestamp(c)
		if err != nil {
			return nil, err
		}
		return TimestampValue{t}, nil
	case TypeRaw:
		b, err := c.lib.GetRaw(c.rs, f.index)
		if err != nil {
			return nil, f.fail(c, err)
		}
		return BytesValue(b), nil
	case TypeCursor:
		stmt, err := c.lib.GetStatement(c.rs, f.index)
		if err != nil {
			return nil, f.fail(c, err)
		}
		nested := &Cursor{lib: c.lib, conn: c.conn, stmt: stmt, nested: true, logger: c.logger}
		nested.sql = c.lib.StatementSQL(stmt)
		nested.finish()
		return CursorValue{nested}, nil
	}
	return nil, newError(KindUnsupportedType, "column %s: no decoder for %s", f.column.Name, f.column.Type)
}

func (f *Field) long(c *Cursor) (Value, error) {
	if f.column.Type.Binary {
		return nil, newError(KindUnsupportedType, "column %s: binary LONG content is not supported", f.column.Name)
	}
	l, err := c.lib.GetLong(c.rs, f.index)
	if err != nil {
		return nil, f.fail(c, err)
	}
	if c.lib.LongType(l) == oci.LongBinary {
		return nil, newError(KindUnsupportedType, "column %s: binary LONG content is not supported", f.column.Name)
	}
	buf, err := c.lib.LongBuffer(l)
	if err != nil {
		return nil, f.fail(c, err)
	}
	return StringValue(buf), nil
}

func (f *Field) date(c *Cursor) (time.Time, error) {
	d, err := c.lib.GetDate(c.rs, f.index)
	if err != nil {
		return time.Time{}, f.fail(c, err)
	}
	year, month, day, hour, min, sec, err := c.lib.DateGetDateTime(d)
	if err != nil {
		return time.Time{}, f.fail(c, err)
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), nil
}

func (f *Field) timestamp(c *Cursor) (time.Time, error) {
	ts, err := c.lib.GetTimestamp(c.rs, f.index)
	if err != nil {
		return time.Time{}, f.fail(c, err)
	}
	year, month, day, hour, min, sec, fsec, err := c.lib.TimestampGetDateTime(ts)
	if err != nil {
		return time.Time{}, f.fail(c, err)
	}
	tzHour, tzMin, err := c.lib.TimestampGetTimeZoneOffset(ts)
	if err != nil {
		return time.Time{}, f.fail(c, err)
	}
	loc := time.UTC
	if offset := tzHour*3600 + tzMin*60; offset != 0 {
		loc = time.FixedZone("", offset)
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, fsec*1000, loc), nil
}

// String reads the field as text, using the session formats for dates and
// numbers.
func (f *Field) String() (string, error) {
	c, err := f.check()
	if err != nil {
		return "", err
	}
	s, err := c.lib.GetString(c.rs, f.index)
	if err != nil {
		return "", f.fail(c, err)
	}
	return s, nil
}

func (f *Field) Int() (int64, error) {
	c, err := f.check()
	if err != nil {
		return 0, err
	}
	i, err := c.lib.GetInt(c.rs, f.index)
	if err != nil {
		return 0, f.fail(c, err)
	}
	return i, nil
}

func (f *Field) Float() (float64, error) {
	c, err := f.check()
	if err != nil {
		return 0, err
	}
	d, err := c.lib.GetDouble(c.rs, f.index)
	if err != nil {
		return 0, f.fail(c, err)
	}
	return d, nil
}

// Bool reads a numeric field as a boolean: any non-zero value is true.
func (f *Field) Bool() (bool, error) {
	i, err := f.Int()
	if err != nil {
		return false, err
	}
	return i != 0, nil
}

// Time reads a date or timestamp field.
func (f *Field) Time() (time.Time, error) {
	c, err := f.check()
	if err != nil {
		return time.Time{}, err
	}
	switch f.column.Type.Kind {
	case TypeDate:
		return f.date(c)
	case TypeTimestamp:
		return f.timestamp(c)
	}
	return time.Time{}, newError(KindUnsupportedType, "column %s: %s is not a date or timestamp", f.column.Name, f.column.Type)
}
