package oracle

import (
	"math"
	"strconv"
	"time"

	"github.com/tomyedwab/ocidb/oci"
)

// BindKind selects how a bind value is encoded for the native library.
type BindKind int

const (
	BindKindInvalid BindKind = iota
	BindKindInt
	BindKindString
	BindKindBool
	BindKindDouble
	BindKindDate
	BindKindCollection
	BindKindNull
)

func (k BindKind) String() string {
	switch k {
	case BindKindInt:
		return "int"
	case BindKindString:
		return "string"
	case BindKindBool:
		return "bool"
	case BindKindDouble:
		return "double"
	case BindKindDate:
		return "date"
	case BindKindCollection:
		return "collection"
	case BindKindNull:
		return "null"
	}
	return "invalid"
}

// BindValue is an input parameter. Each value owns the buffer the native
// library reads during execute; a cursor keeps the values it bound alive
// until it is reset.
type BindValue struct {
	kind BindKind
	text string
	err  error

	i32  *int32
	str  []byte
	f64  *float64
	date time.Time
	coll *BindCollection
}

// Int binds an integer. Values outside the int32 range cannot be bound.
func Int(v int) BindValue {
	b := BindValue{kind: BindKindInt, text: strconv.Itoa(v)}
	if v < math.MinInt32 || v > math.MaxInt32 {
		b.err = newError(KindUnsupportedType, "integer %d overflows the int32 bind buffer", v)
		return b
	}
	n := int32(v)
	b.i32 = &n
	return b
}

// String binds a NUL-terminated copy of v.
func String(v string) BindValue {
	buf := make([]byte, len(v)+1)
	copy(buf, v)
	return BindValue{kind: BindKindString, text: v, str: buf}
}

// Bool binds v as the integer 1 or 0.
func Bool(v bool) BindValue {
	var n int32
	text := "false"
	if v {
		n = 1
		text = "true"
	}
	return BindValue{kind: BindKindBool, text: text, i32: &n}
}

// Double binds a BINARY_DOUBLE value.
func Double(v float64) BindValue {
	return BindValue{kind: BindKindDouble, text: strconv.FormatFloat(v, 'g', -1, 64), f64: &v}
}

// Date binds the wall clock fields of t, to the second.
func Date(t time.Time) BindValue {
	return BindValue{kind: BindKindDate, text: t.Format(time.DateTime), date: t}
}

// Collection binds a collection built with NewBindCollection. The
// collection must stay open until the statement is executed.
func Collection(c *BindCollection) BindValue {
	b := BindValue{kind: BindKindCollection, text: "collection(<nil>)", coll: c}
	if c != nil {
		b.text = "collection(" + c.typeName + ")"
	}
	return b
}

// Null binds SQL NULL.
func Null() BindValue {
	return BindValue{kind: BindKindNull, text: "NULL"}
}

func (b BindValue) Kind() BindKind {
	return b.kind
}

// String returns the textual rendering of the bound value.
func (b BindValue) String() string {
	return b.text
}

// bind binds the value to stmt. The returned release func frees native
// objects created for the bind and must be called once the statement no
// longer needs them.
func (b BindValue) bind(lib oci.Library, stmt oci.Stmt, conn oci.Conn, name string) (func(), error) {
	if b.err != nil {
		return nil, b.err
	}
	var err error
	switch b.kind {
	case BindKindInt:
		err = lib.BindInt(stmt, name, b.i32)
	case BindKindString:
		err = lib.BindString(stmt, name, b.str, uint32(len(b.str)-1))
	case BindKindBool:
		err = lib.BindBoolean(stmt, name, b.i32)
	case BindKindDouble:
		err = lib.BindDouble(stmt, name, b.f64)
	case BindKindNull:
		err = lib.BindNull(stmt, name)
	case BindKindCollection:
		if b.coll == nil || b.coll.handle == "" {
			return nil, newError(KindNotExecuted, "collection bound to %s is closed", name)
		}
		err = lib.BindColl(stmt, name, b.coll.handle)
	case BindKindDate:
		return b.bindDate(lib, stmt, conn, name)
	default:
		return nil, newError(KindUnsupportedType, "cannot bind %s value to %s", b.kind, name)
	}
	if err != nil {
		return nil, wrapNative(lib, KindExecutionFailed, err, lib.StatementSQL(stmt), "failed to bind %s", name)
	}
	return nil, nil
}

func (b BindValue) bindDate(lib oci.Library, stmt oci.Stmt, conn oci.Conn, name string) (func(), error) {
	d, err := lib.DateCreate(conn)
	if err != nil {
		return nil, wrapNative(lib, KindExecutionFailed, err, "", "failed to create date for %s", name)
	}
	release := func() { lib.DateFree(d) }

	t := b.date
	if err := lib.DateSetDateTime(d, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()); err != nil {
		release()
		return nil, wrapNative(lib, KindExecutionFailed, err, "", "invalid date %s for %s", b.text, name)
	}
	if err := lib.BindDate(stmt, name, d); err != nil {
		release()
		return nil, wrapNative(lib, KindExecutionFailed, err, lib.StatementSQL(stmt), "failed to bind %s", name)
	}
	return release, nil
}
