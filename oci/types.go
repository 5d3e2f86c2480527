package oci

import "fmt"

// Handle is an opaque reference to a native resource.
type Handle string

// Typed handles. The zero value of each is the nil handle.
type (
	Conn      Handle
	Pool      Handle
	Stmt      Handle
	Resultset Handle
	Date      Handle
	Timestamp Handle
	Long      Handle
	TypeInfo  Handle
	Coll      Handle
	Elem      Handle
	Enqueue   Handle
	Dequeue   Handle
	Msg       Handle
)

// Column identifies one column of a result set (1-based index).
type Column struct {
	Resultset Resultset
	Index     uint32
}

// EnvMode is passed to Library.Initialize.
type EnvMode uint32

const (
	EnvDefault  EnvMode = 0
	EnvThreaded EnvMode = 1 << 0
)

// SessionMode selects the privilege a session logs on with.
type SessionMode uint32

const (
	SessionDefault SessionMode = 0
	SessionSysDBA  SessionMode = 1 << 1
)

// PoolKind selects between connection pooling and session pooling.
type PoolKind uint32

const (
	PoolConnection PoolKind = 1
	PoolSession    PoolKind = 2
)

// ColumnType is the native column type code reported after execution.
type ColumnType uint32

const (
	CDTUnknown    ColumnType = 0
	CDTNumeric    ColumnType = 1
	CDTDatetime   ColumnType = 3
	CDTText       ColumnType = 4
	CDTLong       ColumnType = 5
	CDTCursor     ColumnType = 6
	CDTLob        ColumnType = 7
	CDTFile       ColumnType = 8
	CDTTimestamp  ColumnType = 9
	CDTInterval   ColumnType = 10
	CDTRaw        ColumnType = 11
	CDTObject     ColumnType = 12
	CDTCollection ColumnType = 13
	CDTRef        ColumnType = 14
	CDTBoolean    ColumnType = 15
)

func (t ColumnType) String() string {
	switch t {
	case CDTNumeric:
		return "NUMERIC"
	case CDTDatetime:
		return "DATETIME"
	case CDTText:
		return "TEXT"
	case CDTLong:
		return "LONG"
	case CDTCursor:
		return "CURSOR"
	case CDTLob:
		return "LOB"
	case CDTFile:
		return "FILE"
	case CDTTimestamp:
		return "TIMESTAMP"
	case CDTInterval:
		return "INTERVAL"
	case CDTRaw:
		return "RAW"
	case CDTObject:
		return "OBJECT"
	case CDTCollection:
		return "COLLECTION"
	case CDTRef:
		return "REF"
	case CDTBoolean:
		return "BOOLEAN"
	}
	return fmt.Sprintf("CDT(%d)", uint32(t))
}

// Numeric subtypes reported by Library.ColumnSubtype for CDTNumeric columns.
const (
	NumNumber = 0
	NumFloat  = 1
	NumDouble = 2
)

// Long subtypes reported by Library.LongType and Library.ColumnSubtype for
// CDTLong columns.
const (
	LongChar   = 1
	LongBinary = 2
)

// ScaleUndefined is the scale reported for numeric columns declared without
// a scale.
const ScaleUndefined = -127

// TypeInfoKind selects the catalog object Library.TypeInfoGet resolves.
type TypeInfoKind uint32

const (
	TypeInfoTable TypeInfoKind = 1
	TypeInfoView  TypeInfoKind = 2
	TypeInfoType  TypeInfoKind = 3
)

// FormatKind selects which conversion format Library.SetFormat changes.
type FormatKind uint32

const (
	FormatDate      FormatKind = 1
	FormatTimestamp FormatKind = 2
	FormatNumeric   FormatKind = 3
)

// ErrorType classifies native errors.
type ErrorType int

const (
	ErrorUnknown ErrorType = 0
	ErrorServer  ErrorType = 1
	ErrorDriver  ErrorType = 2
)

func (t ErrorType) String() string {
	switch t {
	case ErrorServer:
		return "server"
	case ErrorDriver:
		return "driver"
	}
	return "unknown"
}

// Native error codes the client layer branches on.
const (
	CodeNotAllBound      = 1008
	CodeLogonDenied      = 1017
	CodeNoPrivilege      = 1031
	CodeInvalidDate      = 1858
	CodeUserCancel       = 1013
	CodeNoService        = 12514
	CodePoolExhausted    = 24418
	CodePoolTimeout      = 24496
	CodeDequeueNoMessage = 25228
	CodeNotConnected     = 3114
)

// Error is the error value returned by failing Library calls.
type Error struct {
	Type ErrorType
	Code int
	Text string
	// Stmt is set for failures raised while preparing or executing a
	// statement.
	Stmt Stmt
	// Row is the 1-based array row for batch errors, 0 otherwise.
	Row int
}

func (e *Error) Error() string {
	return e.Text
}
