package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomyedwab/ocidb/oracle"
)

const driverName = "oci"

func init() {
	sql.Register(driverName, &Driver{})
}

// --- Driver implementation ---

// Driver opens connections through the default oracle environment.
type Driver struct{}

// Open returns a new connection for a DSN of the form
// user/password@service[ AS SYSDBA].
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	c, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

// OpenConnector parses dsn once for every connection database/sql opens.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	config, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return NewConnector(config), nil
}

// ParseDSN parses user/password@service[ AS SYSDBA] into a connection
// config.
func ParseDSN(dsn string) (oracle.ConnectionConfig, error) {
	var config oracle.ConnectionConfig
	creds, service, ok := strings.Cut(strings.TrimSpace(dsn), "@")
	if !ok {
		return config, fmt.Errorf("ocidb: missing service in DSN")
	}
	user, password, ok := strings.Cut(creds, "/")
	if !ok || user == "" {
		return config, fmt.Errorf("ocidb: DSN must start with user/password")
	}
	if fields := strings.Fields(service); len(fields) == 3 && strings.EqualFold(fields[1], "as") && strings.EqualFold(fields[2], "sysdba") {
		service = fields[0]
		config.SysDBA = true
	}
	if service == "" || strings.ContainsAny(service, " \t") {
		return config, fmt.Errorf("ocidb: invalid service %q in DSN", service)
	}
	config.User = user
	config.Password = password
	config.Service = oracle.ServiceFromString(service)
	return config, nil
}

// --- Connector implementation ---

// Connector opens driver connections either as standalone oracle
// connections or by borrowing from a ConnectionPool.
type Connector struct {
	config oracle.ConnectionConfig
	pool   *oracle.ConnectionPool
	tag    string
	logger *slog.Logger
}

func NewConnector(config oracle.ConnectionConfig) *Connector {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{config: config, logger: logger}
}

// NewPoolConnector borrows sessions from pool, preferring ones carrying
// tag. Closing the driver connection releases the session.
func NewPoolConnector(pool *oracle.ConnectionPool, tag string) *Connector {
	return &Connector{pool: pool, tag: tag, logger: slog.Default()}
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.pool != nil {
		pc, err := c.pool.Acquire(c.tag, true)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("Driver connection borrowed from pool", "tag", c.tag)
		return &Conn{
			session: pc,
			close:   func() error { return c.pool.Release(pc) },
		}, nil
	}

	conn := oracle.NewConnection(c.config)
	if err := conn.Open(); err != nil {
		return nil, err
	}
	if err := conn.SetAutoCommit(true); err != nil {
		conn.Close()
		return nil, err
	}
	c.logger.Debug("Driver connection opened", "service", c.config.Service.String(), "user", c.config.User)
	return &Conn{session: conn, close: conn.Close}, nil
}

func (c *Connector) Driver() driver.Driver {
	return &Driver{}
}

// --- Connection implementation ---

// Conn implements driver.Conn over an oracle.Session.
type Conn struct {
	session oracle.Session
	close   func() error
	tx      *Tx
}

// Session exposes the underlying session, for use with sql.Conn.Raw.
func (c *Conn) Session() oracle.Session {
	return c.session
}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext only records the query. Each execution prepares it on a
// fresh cursor.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.close == nil {
		return nil, driver.ErrBadConn
	}
	return &Stmt{conn: c, query: query}, nil
}

func (c *Conn) Close() error {
	if c.close == nil {
		return nil
	}
	err := c.close()
	c.close = nil
	return err
}

func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.tx != nil {
		return nil, fmt.Errorf("ocidb: transaction already active on this connection")
	}
	if opts.ReadOnly {
		return nil, fmt.Errorf("ocidb: read-only transactions are not supported")
	}
	if sql.IsolationLevel(opts.Isolation) != sql.LevelDefault {
		return nil, fmt.Errorf("ocidb: isolation level %s is not supported", sql.IsolationLevel(opts.Isolation))
	}
	if err := c.session.SetAutoCommit(false); err != nil {
		return nil, badConn(err)
	}
	c.tx = &Tx{conn: c}
	return c.tx, nil
}

// Ping checks the session is still usable.
func (c *Conn) Ping(ctx context.Context) error {
	if c.close == nil || !c.session.Ping() {
		return driver.ErrBadConn
	}
	return nil
}

// run executes query on a new cursor, breaking the call when ctx is
// cancelled.
func (c *Conn) run(ctx context.Context, query string, args []driver.NamedValue) (*oracle.Cursor, error) {
	params, err := bindParams(args)
	if err != nil {
		return nil, err
	}
	cur, err := c.session.Cursor()
	if err != nil {
		return nil, badConn(err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.session.Break()
	})
	err = cur.Execute(query, params)
	stop()
	if err != nil {
		cur.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return cur, nil
}

func badConn(err error) error {
	if errors.Is(err, oracle.ErrNotConnected) {
		return driver.ErrBadConn
	}
	return err
}

// --- Statement implementation ---

// Stmt implements driver.Stmt. It holds no native resources between
// executions.
type Stmt struct {
	conn  *Conn
	query string
}

func (s *Stmt) Close() error {
	return nil
}

// NumInput returns -1; the native layer reports missing binds itself.
func (s *Stmt) NumInput() int {
	return -1
}

func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	cur, err := s.conn.run(ctx, s.query, args)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	return &result{rowsAffected: int64(cur.Affected())}, nil
}

func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	cur, err := s.conn.run(ctx, s.query, args)
	if err != nil {
		return nil, err
	}
	// Unsupported column types surface when a row is scanned.
	columns, _ := cur.Columns()
	return &rows{cursor: cur, columns: columns}, nil
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

func bindParams(args []driver.NamedValue) (map[string]oracle.BindValue, error) {
	params := make(map[string]oracle.BindValue, len(args))
	for _, arg := range args {
		name := arg.Name
		if name == "" {
			name = strconv.Itoa(arg.Ordinal)
		}
		v, err := bindValue(arg.Value)
		if err != nil {
			return nil, fmt.Errorf("ocidb: parameter :%s: %w", name, err)
		}
		params[":"+name] = v
	}
	return params, nil
}

func bindValue(v driver.Value) (oracle.BindValue, error) {
	switch val := v.(type) {
	case nil:
		return oracle.Null(), nil
	case int64:
		if val < math.MinInt32 || val > math.MaxInt32 {
			return oracle.String(strconv.FormatInt(val, 10)), nil
		}
		return oracle.Int(int(val)), nil
	case float64:
		return oracle.Double(val), nil
	case bool:
		return oracle.Bool(val), nil
	case string:
		return oracle.String(val), nil
	case time.Time:
		return oracle.Date(val), nil
	}
	return oracle.BindValue{}, fmt.Errorf("%w: %T", oracle.ErrUnsupportedType, v)
}

// --- Transaction implementation ---

// Tx implements driver.Tx by switching the session's autocommit off for the
// duration of the transaction.
type Tx struct {
	conn *Conn
}

func (t *Tx) Commit() error {
	return t.finish(t.conn.session.Commit)
}

func (t *Tx) Rollback() error {
	return t.finish(t.conn.session.Rollback)
}

func (t *Tx) finish(end func() error) error {
	if t.conn.tx != t {
		return fmt.Errorf("ocidb: transaction already committed or rolled back")
	}
	t.conn.tx = nil
	if err := end(); err != nil {
		return badConn(err)
	}
	return badConn(t.conn.session.SetAutoCommit(true))
}

// --- Result implementation ---

type result struct {
	rowsAffected int64
}

func (r *result) LastInsertId() (int64, error) {
	return 0, fmt.Errorf("ocidb: LastInsertId is not supported")
}

func (r *result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- Rows implementation ---

type rows struct {
	cursor  *oracle.Cursor
	columns []oracle.Column
}

func (r *rows) Columns() []string {
	names := make([]string, len(r.columns))
	for i, col := range r.columns {
		names[i] = col.Name
	}
	return names
}

// ColumnTypeDatabaseTypeName reports the resolved type tag, e.g. NUMBER(2).
func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return strings.ToUpper(r.columns[index].Type.String())
}

func (r *rows) Close() error {
	return r.cursor.Close()
}

func (r *rows) Next(dest []driver.Value) error {
	row, err := r.cursor.Fetchone()
	if err != nil {
		return err
	}
	if row == nil {
		return io.EOF
	}
	for i := range dest {
		v, err := row.FieldAt(i).Value()
		if err != nil {
			return fmt.Errorf("ocidb: column %s: %w", r.columns[i].Name, err)
		}
		if _, ok := v.(oracle.CursorValue); ok {
			return fmt.Errorf("ocidb: column %s: %w: nested cursor", r.columns[i].Name, oracle.ErrUnsupportedType)
		}
		dest[i] = oracle.Native(v)
	}
	return nil
}
