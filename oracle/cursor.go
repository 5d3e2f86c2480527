package oracle

import (
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/tomyedwab/ocidb/oci"
)

const (
	defaultPrefetchSize = 20

	// Server output buffer settings passed to ServerEnableOutput.
	outputBufferSize = 32000
	outputArraySize  = 5
	outputLineSize   = 255
)

type executeOptions struct {
	prefetch     uint32
	serverOutput bool
	register     []registration
}

type registration struct {
	name string
	typ  DataType
}

// ExecuteOption configures a single Execute call.
type ExecuteOption func(*executeOptions)

// WithRegister registers an output variable, such as the target of a
// RETURNING ... INTO clause. Only Integer outputs are supported.
func WithRegister(name string, typ DataType) ExecuteOption {
	return func(o *executeOptions) {
		o.register = append(o.register, registration{name: name, typ: typ})
	}
}

// WithPrefetch sets the prefetch and fetch size. Defaults to 20 rows.
func WithPrefetch(rows int) ExecuteOption {
	return func(o *executeOptions) {
		o.prefetch = uint32(rows)
	}
}

// WithServerOutput captures lines the statement writes to the server
// output buffer. They are available from ServerOutput after Execute.
func WithServerOutput() ExecuteOption {
	return func(o *executeOptions) {
		o.serverOutput = true
	}
}

// Cursor owns one native statement handle.
//
// A cursor must be used by one goroutine at a time; it does no locking of
// its own. Break on the owning session may be called concurrently.
type Cursor struct {
	lib    oci.Library
	conn   oci.Conn
	stmt   oci.Stmt
	nested bool
	logger *slog.Logger

	sql      string
	executed bool
	rs       oci.Resultset
	columns  []Column
	colErr   error

	binds    []BindValue
	arrays   []BindArray
	releases []func()

	// gen changes whenever the current row stops being valid.
	gen       uint64
	exhausted bool
	sqlID     string
	output    string
}

func newCursor(lib oci.Library, conn oci.Conn, logger *slog.Logger) (*Cursor, error) {
	stmt, err := lib.StatementCreate(conn)
	if err != nil {
		return nil, wrapNative(lib, KindExecutionFailed, err, "", "failed to create statement")
	}
	return &Cursor{lib: lib, conn: conn, stmt: stmt, logger: logger}, nil
}

// reset releases the previous result set, bound values and captured
// output so the statement can be prepared again.
func (c *Cursor) reset() {
	if c.rs != "" {
		c.lib.ReleaseResultsets(c.stmt)
		c.rs = ""
	}
	c.columns = nil
	c.colErr = nil
	for _, release := range c.releases {
		release()
	}
	c.releases = nil
	c.binds = nil
	c.arrays = nil
	c.output = ""
	c.sqlID = ""
	c.executed = false
	c.exhausted = false
	c.gen++
}

func (c *Cursor) prepare(sql string) error {
	if c.stmt == "" {
		return newError(KindNotExecuted, "cursor is closed")
	}
	c.reset()
	c.sql = sql
	if err := c.lib.Prepare(c.stmt, sql); err != nil {
		return wrapNative(c.lib, KindExecutionFailed, err, sql, "failed to prepare statement")
	}
	return nil
}

func (c *Cursor) fail(err error, format string, args ...any) error {
	e := wrapNative(c.lib, KindExecutionFailed, err, c.sql, format, args...)
	c.logger.Error("Statement failed", "sql", e.Native.SQL, "code", e.Native.Code, "error", e.Native.Text)
	return e
}

// Execute prepares sql, binds params and registered outputs, and runs it.
// Any previous result set is released first.
func (c *Cursor) Execute(sql string, params map[string]BindValue, opts ...ExecuteOption) error {
	o := executeOptions{prefetch: defaultPrefetchSize}
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.prepare(sql); err != nil {
		return err
	}
	if err := c.lib.SetPrefetchSize(c.stmt, o.prefetch); err != nil {
		return c.fail(err, "failed to set prefetch size")
	}
	if err := c.lib.SetFetchSize(c.stmt, o.prefetch); err != nil {
		return c.fail(err, "failed to set fetch size")
	}
	for name, v := range params {
		if err := c.Bind(name, v); err != nil {
			return err
		}
	}
	for _, r := range o.register {
		if err := c.Register(r.name, r.typ); err != nil {
			return err
		}
	}

	if o.serverOutput {
		if err := c.lib.ServerEnableOutput(c.conn, outputBufferSize, outputArraySize, outputLineSize); err != nil {
			return c.fail(err, "failed to enable server output")
		}
		defer c.lib.ServerDisableOutput(c.conn)
	}

	if err := c.lib.Execute(c.stmt); err != nil {
		return c.fail(err, "failed to execute statement")
	}
	c.finish()

	if o.serverOutput {
		c.output = c.drainOutput()
	}
	return nil
}

// finish records the state of a successful execution.
func (c *Cursor) finish() {
	c.executed = true
	c.sqlID = c.lib.SQLIdentifier(c.stmt)
	if rs, ok := c.lib.Resultset(c.stmt); ok {
		c.rs = rs
	}
	c.logger.Debug("Statement executed", "sql_id", c.sqlID, "affected", c.lib.AffectedRows(c.stmt))
}

func (c *Cursor) drainOutput() string {
	var lines []string
	for i := 0; i < outputBufferSize; i++ {
		line, ok := c.lib.ServerGetOutput(c.conn)
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Bind binds a value to the prepared statement and retains it until the
// next reset. Execute calls it for each of its params.
func (c *Cursor) Bind(name string, v BindValue) error {
	release, err := v.bind(c.lib, c.stmt, c.conn, name)
	if err != nil {
		return err
	}
	c.binds = append(c.binds, v)
	if release != nil {
		c.releases = append(c.releases, release)
	}
	return nil
}

// Register registers an output variable on the prepared statement.
func (c *Cursor) Register(name string, typ DataType) error {
	if typ.Kind != TypeInteger {
		return newError(KindUnsupportedType, "cannot register %s output %s", typ, name)
	}
	if err := c.lib.RegisterInt(c.stmt, name); err != nil {
		return c.fail(err, "failed to register %s", name)
	}
	return nil
}

func (c *Cursor) prepareArrays(sql string, params map[string]BindArray, batch bool) error {
	if err := c.prepare(sql); err != nil {
		return err
	}
	size := 0
	for _, a := range params {
		size = a.Len()
		break
	}
	if err := c.lib.BindArraySetSize(c.stmt, uint32(size)); err != nil {
		return c.fail(err, "failed to set array size")
	}
	if err := c.lib.SetBatchErrorMode(c.stmt, batch); err != nil {
		return c.fail(err, "failed to set batch error mode")
	}
	for name, a := range params {
		if err := a.bind(c.lib, c.stmt, name); err != nil {
			return err
		}
		c.arrays = append(c.arrays, a)
	}
	return nil
}

// ExecuteBulkDML runs sql once for every row of the bound arrays. Rows that
// fail do not abort the batch: they are reported as "row <n>: <message>"
// and the affected count covers the rows that succeeded. err is only set
// when the statement could not be run at all.
func (c *Cursor) ExecuteBulkDML(sql string, params map[string]BindArray) (affected int, rowErrors []string, err error) {
	if err := c.prepareArrays(sql, params, true); err != nil {
		return 0, nil, err
	}
	if err := c.lib.Execute(c.stmt); err != nil {
		return int(c.lib.AffectedRows(c.stmt)), nil, c.fail(err, "failed to execute array DML")
	}
	c.finish()
	for {
		e, ok := c.lib.BatchError(c.stmt)
		if !ok {
			break
		}
		rowErrors = append(rowErrors, fmt.Sprintf("row %d: %s", e.Row, e.Text))
	}
	affected = int(c.lib.AffectedRows(c.stmt))
	if len(rowErrors) > 0 {
		c.logger.Warn("Array DML completed with row errors", "sql_id", c.sqlID, "affected", affected, "errors", len(rowErrors))
	}
	return affected, rowErrors, nil
}

// ExecuteArrayBinds runs sql once for every row of the bound arrays and
// stops at the first failing row, whose number is carried in the native
// error detail.
func (c *Cursor) ExecuteArrayBinds(sql string, params map[string]BindArray) (int, error) {
	if err := c.prepareArrays(sql, params, false); err != nil {
		return 0, err
	}
	if err := c.lib.Execute(c.stmt); err != nil {
		return int(c.lib.AffectedRows(c.stmt)), c.fail(err, "failed to execute array DML")
	}
	c.finish()
	return int(c.lib.AffectedRows(c.stmt)), nil
}

// describe builds the column list of the current result set once.
func (c *Cursor) describe() []Column {
	if c.columns != nil || c.rs == "" {
		return c.columns
	}
	n := c.lib.ColumnCount(c.rs)
	columns := make([]Column, 0, n)
	var invalid []string
	for i := uint32(1); i <= n; i++ {
		col := oci.Column{Resultset: c.rs, Index: i}
		name := c.lib.ColumnName(col)
		code := c.lib.ColumnType(col)
		t := ResolveDataType(code, c.lib.ColumnSubtype(col), c.lib.ColumnScale(col))
		if !t.Valid() {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", name, code))
		}
		columns = append(columns, Column{Name: name, Type: t})
	}
	c.columns = columns
	if len(invalid) > 0 {
		c.colErr = newError(KindUnsupportedType, "unsupported column type: %s", strings.Join(invalid, ", "))
		c.logger.Warn("Result set has unsupported columns", "sql_id", c.sqlID, "columns", invalid)
	}
	return c.columns
}

// Columns describes the current result set. Columns whose native type has
// no decode path are returned with an invalid type together with an error
// matching ErrUnsupportedType.
func (c *Cursor) Columns() ([]Column, error) {
	if !c.executed {
		return nil, ErrNotExecuted
	}
	columns := c.describe()
	return columns, c.colErr
}

// Fetchone advances to the next row. It returns nil once the result set is
// exhausted, and keeps returning nil without fetching again. The returned
// row is only valid until the next fetch.
func (c *Cursor) Fetchone() (*Row, error) {
	if !c.executed {
		return nil, ErrNotExecuted
	}
	if c.rs == "" || c.exhausted {
		return nil, nil
	}
	columns := c.describe()
	c.gen++
	ok, err := c.lib.FetchNext(c.rs)
	if err != nil {
		c.exhausted = true
		return nil, c.fail(err, "fetch failed")
	}
	if !ok {
		c.exhausted = true
		return nil, nil
	}
	return &Row{cursor: c, gen: c.gen, columns: columns}, nil
}

// All returns the remaining rows as a sequence. Iteration stops after the
// first error.
func (c *Cursor) All() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		for {
			row, err := c.Fetchone()
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil || !yield(row, nil) {
				return
			}
		}
	}
}

// FetchDict fetches the next row as a snapshot keyed by column name, or nil
// when the result set is exhausted.
func (c *Cursor) FetchDict() (map[string]Value, error) {
	row, err := c.Fetchone()
	if err != nil || row == nil {
		return nil, err
	}
	return row.Dict()
}

// Affected returns the number of rows processed by the last execution.
func (c *Cursor) Affected() int {
	if c.stmt == "" {
		return 0
	}
	return int(c.lib.AffectedRows(c.stmt))
}

// Count returns the number of rows fetched so far.
func (c *Cursor) Count() int {
	if c.rs == "" {
		return 0
	}
	return int(c.lib.RowCount(c.rs))
}

// SQLID returns the server identifier of the last executed statement.
func (c *Cursor) SQLID() string {
	return c.sqlID
}

// ServerOutput returns the lines captured by WithServerOutput.
func (c *Cursor) ServerOutput() string {
	return c.output
}

// Close frees the statement. Nested cursors belong to their parent
// statement and are only reset.
func (c *Cursor) Close() error {
	if c.stmt == "" {
		return nil
	}
	c.reset()
	stmt := c.stmt
	c.stmt = ""
	if c.nested {
		return nil
	}
	if err := c.lib.StatementFree(stmt); err != nil {
		return wrapNative(c.lib, KindExecutionFailed, err, c.sql, "failed to free statement")
	}
	return nil
}
