// Package host implements oci.Library in-process on top of SQLite.
//
// A Host plays both the native call library and the database server: it
// issues opaque handles (uuid strings kept in a concurrent handle table),
// authenticates sessions against a small user catalog, keeps one dedicated
// SQLite connection per session and emulates the server-side facilities the
// client layer relies on:
//
//   - transactions with autocommit off by default and implicit commit on DDL
//   - named binds (:name), array DML with per-row batch errors and
//     RETURNING ... INTO registered outputs
//   - column type codes derived from declared column types
//   - nested cursors through the cursor('SELECT ...') SQL function
//   - server output through the put_line(text) SQL function
//   - collection types, advanced queues and session pools
//
// SQL is executed by SQLite, so statements use the SQLite dialect; a one-row
// dual table is provided for convenience.
//
// A Host must be created with New, bootstrapped with CreateUser (and
// optionally DefineCollectionType, DefineObjectType and CreateQueue) and
// initialized through oci.Library.Initialize before any other call.
package host
