package oracle

import (
	"math"

	"github.com/tomyedwab/ocidb/oci"
)

// BindArray is a homogeneous array of input values for array DML. Every
// array bound in one execution must have the same length.
type BindArray struct {
	kind    BindKind
	n       int
	err     error
	ints    []int32
	doubles []float64
	buf     []byte
	elemLen uint32
}

// IntArray binds one integer per array row.
func IntArray(vs []int) BindArray {
	a := BindArray{kind: BindKindInt, n: len(vs), ints: make([]int32, len(vs))}
	for i, v := range vs {
		if v < math.MinInt32 || v > math.MaxInt32 {
			a.err = newError(KindUnsupportedType, "array element %d: integer %d overflows the int32 bind buffer", i+1, v)
			return a
		}
		a.ints[i] = int32(v)
	}
	return a
}

// StringArray lays vs out as fixed-width NUL-terminated elements sized for
// the longest string.
func StringArray(vs []string) BindArray {
	width := 1
	for _, v := range vs {
		if len(v)+1 > width {
			width = len(v) + 1
		}
	}
	a := BindArray{kind: BindKindString, n: len(vs), buf: make([]byte, width*len(vs)), elemLen: uint32(width)}
	for i, v := range vs {
		copy(a.buf[i*width:], v)
	}
	return a
}

// DoubleArray binds one BINARY_DOUBLE per array row.
func DoubleArray(vs []float64) BindArray {
	return BindArray{kind: BindKindDouble, n: len(vs), doubles: append([]float64(nil), vs...)}
}

// Len returns the number of rows in the array.
func (a BindArray) Len() int {
	return a.n
}

func (a BindArray) Kind() BindKind {
	return a.kind
}

func (a BindArray) bind(lib oci.Library, stmt oci.Stmt, name string) error {
	if a.err != nil {
		return a.err
	}
	var err error
	switch a.kind {
	case BindKindInt:
		err = lib.BindArrayOfInts(stmt, name, a.ints)
	case BindKindString:
		err = lib.BindArrayOfStrings(stmt, name, a.buf, a.elemLen)
	case BindKindDouble:
		err = lib.BindArrayOfDoubles(stmt, name, a.doubles)
	default:
		return newError(KindUnsupportedType, "cannot bind %s array to %s", a.kind, name)
	}
	if err != nil {
		return wrapNative(lib, KindExecutionFailed, err, lib.StatementSQL(stmt), "failed to bind array %s", name)
	}
	return nil
}
