package host

import (
	"bytes"
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/ocidb/oci"
)

// stmtCache keeps prepared statements of one session, evicting the oldest
// entry once size is reached. A zero size disables caching.
type stmtCache struct {
	size  uint32
	order []string
	stmts map[string]*sqlx.Stmt
}

func newStmtCache(size uint32) *stmtCache {
	return &stmtCache{size: size, stmts: make(map[string]*sqlx.Stmt)}
}

// get returns a prepared statement for query and a function to call once
// the statement is no longer in use.
func (c *stmtCache) get(ctx context.Context, conn *sqlx.Conn, query string) (*sqlx.Stmt, func(), error) {
	if st, ok := c.stmts[query]; ok {
		return st, func() {}, nil
	}
	st, err := conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if c.size == 0 {
		return st, func() { st.Close() }, nil
	}
	c.stmts[query] = st
	c.order = append(c.order, query)
	c.evict()
	return st, func() {}, nil
}

func (c *stmtCache) evict() {
	for uint32(len(c.order)) > c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.stmts[oldest].Close()
		delete(c.stmts, oldest)
	}
}

func (c *stmtCache) resize(size uint32) {
	c.size = size
	c.evict()
}

func (c *stmtCache) close() {
	c.resize(0)
}

type bindKind int

const (
	bindInt bindKind = iota
	bindString
	bindBoolean
	bindDouble
	bindDate
	bindColl
	bindNull
	bindIntArray
	bindStringArray
	bindDoubleArray
)

// bindVar references caller memory that is read when the statement runs.
type bindVar struct {
	kind    bindKind
	intPtr  *int32
	dblPtr  *float64
	buf     []byte
	elemLen uint32
	date    *dateValue
	coll    *collection
	ints    []int32
	doubles []float64
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (b *bindVar) isArray() bool {
	return b.kind >= bindIntArray
}

func (b *bindVar) arrayLen() int {
	switch b.kind {
	case bindIntArray:
		return len(b.ints)
	case bindDoubleArray:
		return len(b.doubles)
	case bindStringArray:
		if b.elemLen == 0 {
			return 0
		}
		return len(b.buf) / int(b.elemLen)
	}
	return 0
}

// value returns the SQL argument for array row i.
func (b *bindVar) value(i int) (any, error) {
	switch b.kind {
	case bindInt:
		return int64(*b.intPtr), nil
	case bindBoolean:
		return *b.intPtr != 0, nil
	case bindDouble:
		return *b.dblPtr, nil
	case bindString:
		return cString(b.buf), nil
	case bindDate:
		return b.date.t, nil
	case bindColl:
		data, err := json.Marshal(b.coll.elems)
		if err != nil {
			return nil, driverError(drvInternal, "failed to encode collection: %v", err)
		}
		return string(data), nil
	case bindIntArray:
		return int64(b.ints[i]), nil
	case bindDoubleArray:
		return b.doubles[i], nil
	case bindStringArray:
		n := int(b.elemLen)
		return cString(b.buf[i*n : (i+1)*n]), nil
	}
	return nil, nil
}

// statement is a prepared SQL statement bound to one session.
type statement struct {
	id     string
	sess   *session
	parent *statement

	sql      string
	parsed   parsedSQL
	prepared bool
	sqlID    string

	binds      map[string]*bindVar
	registered map[string]bool
	arraySize  uint32

	prefetch  uint32
	fetchSize uint32
	batchMode bool

	affected    uint64
	batchErrors []*oci.Error
	rs          *resultset
	nested      []*statement
}

func (h *Host) newStatement(s *session, parent *statement) *statement {
	st := &statement{
		sess:       s,
		parent:     parent,
		binds:      make(map[string]*bindVar),
		registered: make(map[string]bool),
		prefetch:   1,
		fetchSize:  20,
	}
	st.id = h.register(st)
	return st
}

func (st *statement) releaseResults() {
	if st.rs != nil {
		st.rs.free()
		st.rs = nil
	}
	for _, n := range st.nested {
		n.free()
	}
	st.nested = nil
}

func (st *statement) free() {
	st.releaseResults()
	st.sess.host.unregister(st.id)
}

func (h *Host) StatementCreate(c oci.Conn) (oci.Stmt, error) {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return "", err
	}
	st := h.newStatement(s, nil)
	s.stmts[st] = struct{}{}
	return oci.Stmt(st.id), nil
}

func (h *Host) StatementFree(sh oci.Stmt) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	if st.parent == nil {
		delete(st.sess.stmts, st)
	}
	st.free()
	return nil
}

func (st *statement) fail(err *oci.Error) *oci.Error {
	if err.Stmt == "" {
		err.Stmt = oci.Stmt(st.id)
	}
	return err
}

func (st *statement) prepare(ctx context.Context, query string) error {
	st.releaseResults()
	st.sql = query
	st.parsed = parseSQL(query)
	st.sqlID = sqlID(query)
	st.prepared = false
	clear(st.binds)
	clear(st.registered)
	st.arraySize = 0
	st.batchErrors = nil
	st.affected = 0

	switch st.parsed.kind {
	case kindBegin, kindCommit, kindRollback:
	default:
		_, done, err := st.sess.cache.get(ctx, st.sess.conn, st.parsed.text)
		if err != nil {
			return st.fail(sqlError(ctx, err))
		}
		done()
	}
	st.prepared = true
	return nil
}

func (h *Host) Prepare(sh oci.Stmt, query string) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	ctx, done := st.sess.call()
	defer done()
	return st.prepare(ctx, query)
}

// args collects the positional arguments for array row i.
func (st *statement) args(i int) ([]any, error) {
	args := make([]any, len(st.parsed.names))
	for n, name := range st.parsed.names {
		b, ok := st.binds[name]
		if !ok {
			return nil, serverError(oci.CodeNotAllBound, "not all variables bound")
		}
		v, err := b.value(i)
		if err != nil {
			return nil, err
		}
		args[n] = v
	}
	return args, nil
}

func (st *statement) checkBinds() error {
	for _, name := range st.parsed.names {
		b, ok := st.binds[name]
		if !ok {
			return serverError(oci.CodeNotAllBound, "not all variables bound")
		}
		if b.isArray() && b.arrayLen() < int(st.arraySize) {
			return driverError(drvTypeMismatch, "array bind %s holds %d elements, %d expected", name, b.arrayLen(), st.arraySize)
		}
		if b.isArray() && st.arraySize == 0 {
			return driverError(drvTypeMismatch, "array bind %s used without an array size", name)
		}
	}
	for _, name := range st.parsed.into {
		if !st.registered[name] {
			return serverError(oci.CodeNotAllBound, "not all variables bound")
		}
	}
	return nil
}

func (st *statement) execute() error {
	if !st.prepared {
		return driverError(drvNotPrepared, "statement is not prepared")
	}
	st.releaseResults()
	st.batchErrors = nil
	st.affected = 0

	if err := st.checkBinds(); err != nil {
		return st.fail(nativeError(err))
	}

	s := st.sess
	ctx, done := s.call()
	defer done()

	kind := st.parsed.kind
	switch kind {
	case kindBegin:
		return s.begin(ctx)
	case kindCommit:
		return s.commit(ctx)
	case kindRollback:
		return s.rollback(ctx)
	}

	if err := s.beforeExec(ctx, kind); err != nil {
		return st.fail(nativeError(err))
	}
	stmt, release, err := s.cache.get(ctx, s.conn, st.parsed.text)
	if err != nil {
		return st.fail(sqlError(ctx, err))
	}
	defer release()

	var execErr *oci.Error
	if st.arraySize > 0 {
		execErr = st.executeArray(ctx, stmt)
	} else {
		execErr = st.executeOnce(ctx, stmt)
	}

	if err := s.afterExec(ctx, kind, execErr != nil); err != nil && execErr == nil {
		execErr = nativeError(err)
	}
	if execErr != nil && kind == kindDML && s.autoCommit {
		// The rollback undid every row counted so far.
		st.affected = 0
	}
	if execErr != nil {
		s.host.logger.Debug("Statement failed", "sql_id", st.sqlID, "error", execErr.Text)
		return st.fail(execErr)
	}
	return nil
}

func (st *statement) executeOnce(ctx context.Context, stmt *sqlx.Stmt) *oci.Error {
	args, err := st.args(0)
	if err != nil {
		return nativeError(err)
	}

	if st.parsed.kind == kindQuery || st.parsed.returning {
		rows, err := stmt.QueryxContext(ctx, args...)
		if err != nil {
			return sqlError(ctx, err)
		}
		rs, err := materialize(ctx, rows, st.parsed.into)
		if err != nil {
			return sqlError(ctx, err)
		}
		rs.stmt = st
		rs.id = st.sess.host.register(rs)
		st.rs = rs
		if st.parsed.returning {
			st.affected = uint64(len(rs.rows))
		}
		return nil
	}

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return sqlError(ctx, err)
	}
	if st.parsed.kind == kindDML {
		n, _ := res.RowsAffected()
		st.affected = uint64(n)
	}
	return nil
}

// executeArray runs the statement once per array row. In batch error mode
// failing rows are recorded and skipped; otherwise the first failure stops
// the execution, keeping the rows already processed.
func (st *statement) executeArray(ctx context.Context, stmt *sqlx.Stmt) *oci.Error {
	for i := 0; i < int(st.arraySize); i++ {
		args, err := st.args(i)
		if err != nil {
			return nativeError(err)
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			rowErr := sqlError(ctx, err)
			rowErr.Row = i + 1
			if rowErr.Code == oci.CodeUserCancel || !st.batchMode {
				return rowErr
			}
			rowErr.Stmt = oci.Stmt(st.id)
			st.batchErrors = append(st.batchErrors, rowErr)
			continue
		}
		n, _ := res.RowsAffected()
		st.affected += uint64(n)
	}
	if len(st.batchErrors) > 0 {
		st.sess.host.logger.Debug("Array DML completed with errors",
			"sql_id", st.sqlID, "rows", st.arraySize, "errors", len(st.batchErrors))
	}
	return nil
}

func (h *Host) Execute(sh oci.Stmt) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	start := time.Now()
	err = st.execute()
	h.logger.Debug("Statement executed", "sql_id", st.sqlID, "duration", time.Since(start), "ok", err == nil)
	return err
}

func (h *Host) StatementSQL(sh oci.Stmt) string {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return ""
	}
	return st.sql
}

func (h *Host) SQLIdentifier(sh oci.Stmt) string {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil || !st.prepared {
		return ""
	}
	return st.sqlID
}

func (h *Host) SetPrefetchSize(sh oci.Stmt, rows uint32) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	st.prefetch = rows
	return nil
}

func (h *Host) SetFetchSize(sh oci.Stmt, rows uint32) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	st.fetchSize = rows
	return nil
}

func (h *Host) SetBatchErrorMode(sh oci.Stmt, enable bool) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	st.batchMode = enable
	return nil
}

func (h *Host) AffectedRows(sh oci.Stmt) uint32 {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return 0
	}
	if st.parsed.kind == kindQuery && st.rs != nil {
		return uint32(st.rs.fetched())
	}
	return uint32(st.affected)
}

func (h *Host) BatchError(sh oci.Stmt) (*oci.Error, bool) {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil || len(st.batchErrors) == 0 {
		return nil, false
	}
	e := st.batchErrors[0]
	st.batchErrors = st.batchErrors[1:]
	return e, true
}

// bind validates name against the prepared statement and stores b.
func (h *Host) bind(sh oci.Stmt, name string, b *bindVar) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	if !st.prepared {
		return driverError(drvNotPrepared, "statement is not prepared")
	}
	key := normalizeBindName(name)
	for _, n := range st.parsed.names {
		if n == key {
			st.binds[key] = b
			return nil
		}
	}
	return st.fail(serverError(oraIllegalVariable, "illegal variable name/number"))
}

func (h *Host) BindInt(s oci.Stmt, name string, v *int32) error {
	if v == nil {
		return driverError(drvNullHandle, "bind %s: nil buffer", name)
	}
	return h.bind(s, name, &bindVar{kind: bindInt, intPtr: v})
}

func (h *Host) BindString(s oci.Stmt, name string, buf []byte, maxLen uint32) error {
	if uint32(len(buf)) > maxLen+1 {
		buf = buf[:maxLen+1]
	}
	return h.bind(s, name, &bindVar{kind: bindString, buf: buf})
}

func (h *Host) BindBoolean(s oci.Stmt, name string, v *int32) error {
	if v == nil {
		return driverError(drvNullHandle, "bind %s: nil buffer", name)
	}
	return h.bind(s, name, &bindVar{kind: bindBoolean, intPtr: v})
}

func (h *Host) BindDouble(s oci.Stmt, name string, v *float64) error {
	if v == nil {
		return driverError(drvNullHandle, "bind %s: nil buffer", name)
	}
	return h.bind(s, name, &bindVar{kind: bindDouble, dblPtr: v})
}

func (h *Host) BindDate(s oci.Stmt, name string, d oci.Date) error {
	dv, err := lookup[*dateValue](h, string(d), "date")
	if err != nil {
		return err
	}
	return h.bind(s, name, &bindVar{kind: bindDate, date: dv})
}

func (h *Host) BindColl(s oci.Stmt, name string, c oci.Coll) error {
	coll, err := lookup[*collection](h, string(c), "collection")
	if err != nil {
		return err
	}
	return h.bind(s, name, &bindVar{kind: bindColl, coll: coll})
}

func (h *Host) BindNull(s oci.Stmt, name string) error {
	return h.bind(s, name, &bindVar{kind: bindNull})
}

func (h *Host) BindArraySetSize(sh oci.Stmt, size uint32) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	st.arraySize = size
	return nil
}

func (h *Host) BindArrayOfInts(s oci.Stmt, name string, v []int32) error {
	return h.bind(s, name, &bindVar{kind: bindIntArray, ints: v})
}

func (h *Host) BindArrayOfStrings(s oci.Stmt, name string, buf []byte, elemLen uint32) error {
	if elemLen == 0 {
		return driverError(drvTypeMismatch, "bind %s: zero element length", name)
	}
	return h.bind(s, name, &bindVar{kind: bindStringArray, buf: buf, elemLen: elemLen})
}

func (h *Host) BindArrayOfDoubles(s oci.Stmt, name string, v []float64) error {
	return h.bind(s, name, &bindVar{kind: bindDoubleArray, doubles: v})
}

func (h *Host) RegisterInt(sh oci.Stmt, name string) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	if !st.prepared {
		return driverError(drvNotPrepared, "statement is not prepared")
	}
	key := normalizeBindName(name)
	for _, n := range st.parsed.into {
		if n == key {
			st.registered[key] = true
			return nil
		}
	}
	return st.fail(serverError(oraIllegalVariable, "illegal variable name/number"))
}
