// Package oci defines the native call interface the client layer is written
// against.
//
// The interface mirrors a handle-based C call library: every resource
// (connection, pool, statement, result set, date, message, ...) is an opaque
// handle that the caller must free explicitly. Handles are plain strings
// issued by the library; the zero value is the nil handle.
//
// Implementations:
//
//   - github.com/tomyedwab/ocidb/oci/host: an in-process implementation
//     backed by SQLite.
//
// Failing calls return *Error, which carries the native classification
// (server, driver or unknown), the numeric code, the verbatim message and,
// for statement calls, the statement handle whose SQL text can be recovered
// with Library.StatementSQL.
//
// Unless stated otherwise a handle must only be used by one goroutine at a
// time. Library.Break is the exception: it may be called from any goroutine
// to interrupt a blocking call on the same connection.
package oci
