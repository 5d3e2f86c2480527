package oracle

import (
	"fmt"

	"github.com/tomyedwab/ocidb/oci"
)

// TypeKind is the semantic tag of a column or registered output.
type TypeKind int

const (
	TypeInvalid TypeKind = iota
	TypeInteger
	TypeNumber
	TypeFloat
	TypeString
	TypeBool
	TypeDate
	TypeTimestamp
	TypeLong
	TypeCursor
	TypeLOB
	TypeFile
	TypeInterval
	TypeRaw
	TypeObject
	TypeCollection
	TypeRef
)

var typeKindNames = map[TypeKind]string{
	TypeInvalid:    "invalid",
	TypeInteger:    "integer",
	TypeNumber:     "number",
	TypeFloat:      "float",
	TypeString:     "string",
	TypeBool:       "bool",
	TypeDate:       "date",
	TypeTimestamp:  "timestamp",
	TypeLong:       "long",
	TypeCursor:     "cursor",
	TypeLOB:        "lob",
	TypeFile:       "file",
	TypeInterval:   "interval",
	TypeRaw:        "raw",
	TypeObject:     "object",
	TypeCollection: "collection",
	TypeRef:        "ref",
}

func (k TypeKind) String() string {
	if name, ok := typeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// DataType is a semantic type tag. Scale is only meaningful for TypeNumber;
// Binary marks LONG RAW columns.
type DataType struct {
	Kind   TypeKind
	Scale  int
	Binary bool
	// Code is the native type code the tag was resolved from.
	Code oci.ColumnType
}

// Integer is the only tag supported for registered outputs.
var Integer = DataType{Kind: TypeInteger, Code: oci.CDTNumeric}

// Number returns the fixed-point tag with the given scale.
func Number(scale int) DataType {
	return DataType{Kind: TypeNumber, Scale: scale, Code: oci.CDTNumeric}
}

func (t DataType) String() string {
	if t.Kind == TypeNumber {
		return fmt.Sprintf("number(%d)", t.Scale)
	}
	if t.Kind == TypeInvalid {
		return fmt.Sprintf("invalid(%s)", t.Code)
	}
	return t.Kind.String()
}

// Valid reports whether the tag has a decode path.
func (t DataType) Valid() bool {
	return t.Kind != TypeInvalid
}

// ResolveDataType maps a native column type code to its semantic tag.
// Numeric columns with a zero or undefined scale are integers; binary float
// subtypes are floats whatever their scale. Unmapped codes resolve to
// TypeInvalid.
func ResolveDataType(code oci.ColumnType, subtype int, scale int) DataType {
	t := DataType{Code: code}
	switch code {
	case oci.CDTNumeric:
		switch {
		case subtype == oci.NumFloat || subtype == oci.NumDouble:
			t.Kind = TypeFloat
		case scale == 0 || scale == oci.ScaleUndefined:
			t.Kind = TypeInteger
		default:
			t.Kind = TypeNumber
			t.Scale = scale
		}
	case oci.CDTText:
		t.Kind = TypeString
	case oci.CDTBoolean:
		t.Kind = TypeBool
	case oci.CDTDatetime:
		t.Kind = TypeDate
	case oci.CDTTimestamp:
		t.Kind = TypeTimestamp
	case oci.CDTLong:
		t.Kind = TypeLong
		t.Binary = subtype == oci.LongBinary
	case oci.CDTCursor:
		t.Kind = TypeCursor
	case oci.CDTLob:
		t.Kind = TypeLOB
	case oci.CDTFile:
		t.Kind = TypeFile
	case oci.CDTInterval:
		t.Kind = TypeInterval
	case oci.CDTRaw:
		t.Kind = TypeRaw
	case oci.CDTObject:
		t.Kind = TypeObject
	case oci.CDTCollection:
		t.Kind = TypeCollection
	case oci.CDTRef:
		t.Kind = TypeRef
	default:
		t.Kind = TypeInvalid
	}
	return t
}

// Column describes one column of a result set.
type Column struct {
	Name string
	Type DataType
}
