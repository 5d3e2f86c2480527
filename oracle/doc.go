// Package oracle is a client for Oracle-style databases written against the
// oci.Library call interface.
//
// Every Connection and ConnectionPool holds a reference on an Environment,
// which initializes the native library on first use and cleans it up when
// the last reference is released. Components created without an explicit
// Environment share the process default installed by SetDefaultLibrary.
//
// Usage:
//
//	oracle.SetDefaultLibrary(lib)
//	conn := oracle.NewConnection(oracle.ConnectionConfig{
//	    Service:  oracle.NewService("db1", "1521", "orcl"),
//	    User:     "scott",
//	    Password: "tiger",
//	})
//	if err := conn.Open(); err != nil {
//	    // handle error
//	}
//	defer conn.Close()
//
//	cur, _ := conn.Cursor()
//	defer cur.Close()
//	err := cur.Execute("SELECT id, name FROM people WHERE id > :min",
//	    map[string]oracle.BindValue{":min": oracle.Int(10)})
//	for row, err := range cur.All() {
//	    // row is only valid until the next fetch; use row.Dict() to keep it
//	}
//
// Errors:
//
// Failures are returned as *Error values carrying an ErrorKind, and the
// native detail (code, verbatim message, failing SQL) when the native
// library reported one. Use errors.Is against the Err* sentinels, or the
// IsExecutionFailed and IsPoolExhausted helpers.
//
// Concurrency:
//
// A Connection, PooledConnection or Cursor must only be used by one
// goroutine at a time; Session.Break may be called from another goroutine
// to interrupt a running call. ConnectionPool and Environment are safe for
// concurrent use.
package oracle
