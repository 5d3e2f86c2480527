package host

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/tomyedwab/ocidb/oci"
)

const (
	defaultDateFormat      = "YYYY-MM-DD HH24:MI:SS"
	defaultTimestampFormat = "YYYY-MM-DD HH24:MI:SS.FF"
	defaultNumericFormat   = "%v"
)

// cursorMarker prefixes the values produced by the cursor() SQL function.
const cursorMarker = "\x1bcursor:"

type sessionClaims struct {
	User    string `json:"usr"`
	Service string `json:"svc"`
	SysDBA  bool   `json:"dba,omitempty"`
	jwt.RegisteredClaims
}

// sessionConnector opens the dedicated SQLite connection of one session.
type sessionConnector struct {
	driver *sqlite3.SQLiteDriver
	dsn    string
}

func (c *sessionConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *sessionConnector) Driver() driver.Driver {
	return c.driver
}

type serverOutput struct {
	enabled  bool
	bufSize  uint32
	lineSize uint32
	used     uint32
	lines    []string
}

// session is one authenticated database session. A session is used by one
// goroutine at a time; only Break may be called concurrently.
type session struct {
	host    *Host
	id      string // current connection handle
	user    string
	service string
	sysdba  bool
	token   string

	db   *sqlx.DB
	conn *sqlx.Conn

	pool     *pool
	tag      string
	lastUsed time.Time

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	autoCommit bool
	inTx       bool
	formats    map[oci.FormatKind]string
	output     serverOutput
	cache      *stmtCache
	stmts      map[*statement]struct{}
}

func serviceName(db string) string {
	if i := strings.LastIndex(db, "/"); i >= 0 {
		return normalizeName(db[i+1:])
	}
	return normalizeName(db)
}

// logon authenticates user against the catalog and opens a new session.
func (h *Host) logon(db, user, pwd string, mode oci.SessionMode, cacheSize uint32) (*session, error) {
	service := serviceName(db)
	if len(h.services) > 0 && !h.services[service] {
		return nil, serverError(oci.CodeNoService, "TNS:listener does not currently know of service requested in connect descriptor")
	}

	var u userRecord
	err := h.db.Get(&u, "SELECT * FROM oci_users WHERE name = $1", normalizeName(user))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && u.PasswordHash != passwordHash(pwd)) {
		return nil, serverError(oci.CodeLogonDenied, "invalid username/password; logon denied")
	}
	if err != nil {
		return nil, sqlError(nil, err)
	}
	sysdba := mode&oci.SessionSysDBA != 0
	if sysdba && !u.SysDBA {
		return nil, serverError(oci.CodeNoPrivilege, "insufficient privileges")
	}

	s := &session{
		host:     h,
		user:     u.Name,
		service:  service,
		sysdba:   sysdba,
		lastUsed: time.Now(),
		formats: map[oci.FormatKind]string{
			oci.FormatDate:      defaultDateFormat,
			oci.FormatTimestamp: defaultTimestampFormat,
			oci.FormatNumeric:   defaultNumericFormat,
		},
		cache: newStmtCache(cacheSize),
		stmts: make(map[*statement]struct{}),
	}

	claims := sessionClaims{
		User:    s.user,
		Service: s.service,
		SysDBA:  sysdba,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
	}
	if h.sessionTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().UTC().Add(h.sessionTTL))
	}
	s.token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return nil, driverError(drvInternal, "failed to sign session token: %v", err)
	}

	connector := &sessionConnector{
		driver: &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("put_line", s.putLine, false); err != nil {
					return err
				}
				return conn.RegisterFunc("cursor", func(query string) string {
					return cursorMarker + query
				}, true)
			},
		},
		dsn: h.dsn,
	}
	s.db = sqlx.NewDb(sql.OpenDB(connector), "sqlite3")
	s.conn, err = s.db.Connx(context.Background())
	if err != nil {
		s.db.Close()
		return nil, sqlError(nil, err)
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Session opened", "user", s.user, "service", s.service, "sysdba", sysdba)
	return s, nil
}

func (s *session) putLine(v any) (int64, error) {
	if !s.output.enabled {
		return 0, nil
	}
	line := ""
	switch t := v.(type) {
	case nil:
	case []byte:
		line = string(t)
	default:
		line = fmt.Sprint(t)
	}
	if s.output.lineSize > 0 && uint32(len(line)) > s.output.lineSize {
		return 0, fmt.Errorf("ORU-10028: line length overflow, limit of %d chars per line", s.output.lineSize)
	}
	if s.output.bufSize > 0 && s.output.used+uint32(len(line)) > s.output.bufSize {
		return 0, fmt.Errorf("ORU-10027: buffer overflow, limit of %d bytes", s.output.bufSize)
	}
	s.output.used += uint32(len(line))
	s.output.lines = append(s.output.lines, line)
	return 1, nil
}

// call returns a context for one blocking call that Break can cancel.
func (s *session) call() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	s.lastUsed = time.Now()
	return ctx, func() {
		s.cancelMu.Lock()
		s.cancel = nil
		s.cancelMu.Unlock()
		cancel()
	}
}

func (s *session) interrupt() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *session) exec(ctx context.Context, query string) error {
	_, err := s.conn.ExecContext(ctx, query)
	return err
}

func (s *session) begin(ctx context.Context) error {
	if s.inTx {
		return nil
	}
	if err := s.exec(ctx, "BEGIN IMMEDIATE"); err != nil {
		return sqlError(ctx, err)
	}
	s.inTx = true
	return nil
}

func (s *session) commit(ctx context.Context) error {
	if !s.inTx {
		return nil
	}
	if err := s.exec(ctx, "COMMIT"); err != nil {
		return sqlError(ctx, err)
	}
	s.inTx = false
	return nil
}

func (s *session) rollback(ctx context.Context) error {
	if !s.inTx {
		return nil
	}
	s.inTx = false
	if err := s.exec(ctx, "ROLLBACK"); err != nil {
		return sqlError(ctx, err)
	}
	return nil
}

// beforeExec opens or closes the transaction a statement kind requires: DDL
// commits pending work, DML starts a transaction unless autocommit is on.
func (s *session) beforeExec(ctx context.Context, kind stmtKind) error {
	switch kind {
	case kindDDL:
		return s.commit(ctx)
	case kindDML:
		return s.begin(ctx)
	}
	return nil
}

func (s *session) afterExec(ctx context.Context, kind stmtKind, failed bool) error {
	if kind != kindDML || !s.autoCommit {
		return nil
	}
	if failed {
		return s.rollback(ctx)
	}
	return s.commit(ctx)
}

func (s *session) tokenValid() bool {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(s.token, &claims, func(*jwt.Token) (any, error) {
		return s.host.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token.Valid && claims.User == s.user
}

// freeStatements releases every statement created through the session's
// current connection handle.
func (s *session) freeStatements() {
	for st := range s.stmts {
		st.free()
	}
	clear(s.stmts)
}

// reset prepares a session for reuse by another pool borrower.
func (s *session) reset() {
	s.freeStatements()
	if err := s.rollback(context.Background()); err != nil {
		s.host.logger.Warn("Failed to roll back released session", "user", s.user, "error", err)
	}
	s.autoCommit = false
	s.output = serverOutput{}
}

func (s *session) close() {
	s.reset()
	s.cache.close()
	if err := s.conn.Close(); err != nil {
		s.host.logger.Warn("Failed to close session connection", "user", s.user, "error", err)
	}
	s.db.Close()
	if s.id != "" {
		s.host.unregister(s.id)
		s.id = ""
	}

	s.host.mu.Lock()
	delete(s.host.sessions, s)
	s.host.mu.Unlock()
	s.host.logger.Debug("Session closed", "user", s.user)
}

func (h *Host) ConnectionCreate(db, user, pwd string, mode oci.SessionMode) (oci.Conn, error) {
	if !h.initialized.Load() {
		return "", driverError(drvNotInitialized, "environment not initialized")
	}
	s, err := h.logon(db, user, pwd, mode, h.cacheSize)
	if err != nil {
		return "", err
	}
	s.id = h.register(s)
	return oci.Conn(s.id), nil
}

func (h *Host) ConnectionFree(c oci.Conn) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	if s.pool != nil {
		return s.pool.release(s)
	}
	s.close()
	return nil
}

func (h *Host) IsConnected(c oci.Conn) bool {
	_, err := lookup[*session](h, string(c), "connection")
	return err == nil
}

func (h *Host) Ping(c oci.Conn) bool {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil || !s.tokenValid() {
		return false
	}
	ctx, done := s.call()
	defer done()
	return s.conn.PingContext(ctx) == nil
}

func (h *Host) Break(c oci.Conn) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	if s.interrupt() {
		h.logger.Debug("Session call interrupted", "handle", string(c))
	}
	return nil
}

func (h *Host) SetAutoCommit(c oci.Conn, enable bool) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	s.autoCommit = enable
	return nil
}

func (h *Host) AutoCommit(c oci.Conn) bool {
	s, err := lookup[*session](h, string(c), "connection")
	return err == nil && s.autoCommit
}

func (h *Host) Commit(c oci.Conn) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	ctx, done := s.call()
	defer done()
	return s.commit(ctx)
}

func (h *Host) Rollback(c oci.Conn) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	ctx, done := s.call()
	defer done()
	return s.rollback(ctx)
}

func (h *Host) SetFormat(c oci.Conn, kind oci.FormatKind, format string) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	if _, ok := s.formats[kind]; !ok {
		return driverError(drvTypeMismatch, "unknown format kind %d", kind)
	}
	s.formats[kind] = format
	return nil
}

func (h *Host) Format(c oci.Conn, kind oci.FormatKind) string {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return ""
	}
	return s.formats[kind]
}

func (h *Host) ServerVersion(c oci.Conn) string {
	if _, err := lookup[*session](h, string(c), "connection"); err != nil {
		return ""
	}
	version, _, _ := sqlite3.Version()
	return "SQLite " + version
}

func (h *Host) ServerEnableOutput(c oci.Conn, bufSize, arrSize, lineSize uint32) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	s.output = serverOutput{
		enabled:  true,
		bufSize:  bufSize,
		lineSize: lineSize,
		lines:    make([]string, 0, arrSize),
	}
	return nil
}

func (h *Host) ServerGetOutput(c oci.Conn) (string, bool) {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil || len(s.output.lines) == 0 {
		return "", false
	}
	line := s.output.lines[0]
	s.output.lines = s.output.lines[1:]
	return line, true
}

func (h *Host) ServerDisableOutput(c oci.Conn) error {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return err
	}
	s.output = serverOutput{}
	return nil
}
