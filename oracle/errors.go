package oracle

import (
	"errors"
	"fmt"

	"github.com/tomyedwab/ocidb/oci"
)

// ErrorKind represents the different categories of client errors
type ErrorKind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown ErrorKind = iota
	// KindNotConnected is returned for operations on a closed or never opened connection
	KindNotConnected
	// KindNotExecuted is returned when a prerequisite step has not completed
	KindNotExecuted
	// KindExecutionFailed wraps a failing native call and carries its diagnostics
	KindExecutionFailed
	// KindPoolExhausted is returned when no pooled session could be handed out in time
	KindPoolExhausted
	// KindPoolAllocation is returned when the native pool failed to allocate a session
	KindPoolAllocation
	// KindUnsupportedType is returned for values or columns without an encode/decode path
	KindUnsupportedType
	// KindEnvironment is returned when the native library could not be initialized or torn down
	KindEnvironment
	// KindQueueEmpty is returned by a dequeue on an empty queue
	KindQueueEmpty
	// KindRowInvalid is returned when a row is used after its cursor moved on
	KindRowInvalid
	// KindNullField is returned by typed accessors on a null field
	KindNullField
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConnected:
		return "not connected"
	case KindNotExecuted:
		return "not executed"
	case KindExecutionFailed:
		return "execution failed"
	case KindPoolExhausted:
		return "pool exhausted"
	case KindPoolAllocation:
		return "pool allocation failed"
	case KindUnsupportedType:
		return "unsupported type"
	case KindEnvironment:
		return "environment"
	case KindQueueEmpty:
		return "queue empty"
	case KindRowInvalid:
		return "row invalid"
	case KindNullField:
		return "null field"
	}
	return "unknown"
}

// NativeError is the diagnostic detail reported by the native library.
type NativeError struct {
	Type oci.ErrorType
	Code int
	Text string
	// SQL is the statement that failed, as known to the server.
	SQL string
	// Row is the 1-based array row of a batch error.
	Row int
}

func (e *NativeError) Error() string {
	return e.Text
}

// Error represents a structured client error with kind information
type Error struct {
	Kind    ErrorKind
	Message string
	Native  *NativeError
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Native != nil:
		return fmt.Sprintf("%s: %s", e.Message, e.Native.Text)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	if e.Native != nil {
		return e.Native
	}
	return nil
}

// Is reports whether target is an *Error of the same kind, so the sentinel
// values below match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotConnected    = &Error{Kind: KindNotConnected, Message: "not connected"}
	ErrNotExecuted     = &Error{Kind: KindNotExecuted, Message: "not executed"}
	ErrPoolExhausted   = &Error{Kind: KindPoolExhausted, Message: "pool exhausted"}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType, Message: "unsupported type"}
	ErrQueueEmpty      = &Error{Kind: KindQueueEmpty, Message: "queue is empty"}
	ErrRowInvalid      = &Error{Kind: KindRowInvalid, Message: "row is no longer current"}
	ErrNullField       = &Error{Kind: KindNullField, Message: "field is null"}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// nativeDetail converts an error returned by the native library. The SQL text
// is recovered from the statement recorded in the native error context when
// there is one, falling back to sql.
func nativeDetail(lib oci.Library, err error, sql string) *NativeError {
	var oe *oci.Error
	if !errors.As(err, &oe) {
		return &NativeError{Type: oci.ErrorUnknown, Text: err.Error(), SQL: sql}
	}
	ne := &NativeError{Type: oe.Type, Code: oe.Code, Text: oe.Text, SQL: sql, Row: oe.Row}
	if oe.Stmt != "" {
		if text := lib.StatementSQL(oe.Stmt); text != "" {
			ne.SQL = text
		}
	}
	return ne
}

// wrapNative builds a client error of the given kind around a native failure.
func wrapNative(lib oci.Library, kind ErrorKind, err error, sql string, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Native:  nativeDetail(lib, err, sql),
	}
}

// IsExecutionFailed checks if the error reports a failed native call
func IsExecutionFailed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindExecutionFailed
}

// IsPoolExhausted checks if the error reports an exhausted pool
func IsPoolExhausted(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindPoolExhausted
}

// NativeDetail returns the native diagnostics carried by err, or nil.
func NativeDetail(err error) *NativeError {
	var e *Error
	if errors.As(err, &e) {
		return e.Native
	}
	return nil
}
