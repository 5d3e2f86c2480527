// Package driver implements a database/sql/driver on top of the oracle
// client package, so database/sql and sqlx can run statements through an
// oracle.Session.
//
// Usage:
//
//  1. Install a native library as the process default, then open by DSN:
//
//     oracle.SetDefaultLibrary(lib)
//     db, err := sql.Open("oci", "scott/tiger@db1:1521/orcl")
//
//  2. Or build a Connector explicitly, either over standalone connections or
//     over a ConnectionPool:
//
//     db := sql.OpenDB(driver.NewConnector(oracle.ConnectionConfig{...}))
//     db := sql.OpenDB(driver.NewPoolConnector(pool, "reports"))
//
// DSN format:
//
//	user/password@service[ AS SYSDBA]
//
// where service is anything oracle.ServiceFromString accepts.
//
// Placeholders:
//
// Statements use Oracle bind syntax. Positional arguments bind to :1, :2, ...
// and sql.Named arguments bind to :name.
//
// Parameter mapping:
//
//   - nil binds NULL
//   - int64 binds as an integer, or as text when it does not fit in 32 bits
//   - float64, bool, string and time.Time bind as double, boolean, text and
//     date
//   - []byte is rejected with oracle.ErrUnsupportedType
//
// Limitations:
//
//   - Connections run with autocommit on outside of transactions. Begin turns
//     it off until Commit or Rollback.
//   - Nested cursor columns cannot be scanned. Use the oracle package directly
//     through sql.Conn.Raw and Conn.Session for those.
//   - LastInsertId is not supported.
package driver
