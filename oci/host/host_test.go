package host

import (
	"path"
	"testing"

	"github.com/tomyedwab/ocidb/oci"
)

// setupTestHost creates an initialized host with a regular and a SYSDBA
// account.
func setupTestHost(t *testing.T) *Host {
	t.Helper()
	h, err := New(Config{
		DataSource: path.Join(t.TempDir(), "test_host.db"),
		Services:   []string{"ORCL"},
		Secret:     []byte("test-secret"),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := h.CreateUser("scott", "tiger", false); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := h.CreateUser("sys", "manager", true); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := h.Initialize(oci.EnvThreaded); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		h.Close()
	})
	return h
}

func connect(t *testing.T, h *Host) oci.Conn {
	t.Helper()
	c, err := h.ConnectionCreate("localhost:1521/orcl", "scott", "tiger", oci.SessionDefault)
	if err != nil {
		t.Fatalf("ConnectionCreate failed: %v", err)
	}
	return c
}

// run prepares and executes query on a new statement.
func run(t *testing.T, h *Host, c oci.Conn, query string) oci.Stmt {
	t.Helper()
	s, err := h.StatementCreate(c)
	if err != nil {
		t.Fatalf("StatementCreate failed: %v", err)
	}
	if err := h.Prepare(s, query); err != nil {
		t.Fatalf("Prepare %q failed: %v", query, err)
	}
	if err := h.Execute(s); err != nil {
		t.Fatalf("Execute %q failed: %v", query, err)
	}
	return s
}

func nativeCode(t *testing.T, err error) int {
	t.Helper()
	oe, ok := err.(*oci.Error)
	if !ok {
		t.Fatalf("Expected *oci.Error, got %T (%v)", err, err)
	}
	return oe.Code
}

func TestDBInit(t *testing.T) {
	h := setupTestHost(t)

	for _, table := range []string{"oci_users", "oci_types", "oci_queues", "oci_queue_messages", "dual"} {
		var name string
		err := h.DB().Get(&name, "SELECT name FROM sqlite_master WHERE type='table' AND name=$1", table)
		if err != nil {
			t.Errorf("Table %q does not exist: %v", table, err)
		}
	}

	// Running DBInit again keeps a single dual row
	if err := DBInit(h.DB()); err != nil {
		t.Fatalf("DBInit returned error: %v", err)
	}
	var count int
	if err := h.DB().Get(&count, "SELECT COUNT(*) FROM dual"); err != nil {
		t.Fatalf("Failed to count dual rows: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 dual row, got %d", count)
	}
}

func TestInitializeTwice(t *testing.T) {
	h := setupTestHost(t)

	err := h.Initialize(oci.EnvDefault)
	if err == nil {
		t.Fatal("Second Initialize should fail")
	}
	if code := nativeCode(t, err); code != drvAlreadyInitialized {
		t.Errorf("Expected code %d, got %d", drvAlreadyInitialized, code)
	}
	if h.InitCount() != 1 {
		t.Errorf("Expected InitCount 1, got %d", h.InitCount())
	}
}

func TestCleanupFreesHandles(t *testing.T) {
	h := setupTestHost(t)
	c := connect(t, h)
	run(t, h, c, "SELECT 1 FROM dual")

	if h.HandleCount() == 0 {
		t.Fatal("Expected live handles before cleanup")
	}
	if err := h.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if h.HandleCount() != 0 {
		t.Errorf("Expected no handles after cleanup, got %d", h.HandleCount())
	}
	if h.IsConnected(c) {
		t.Error("Connection should be gone after cleanup")
	}
	if _, err := h.ConnectionCreate("orcl", "scott", "tiger", oci.SessionDefault); err == nil {
		t.Error("ConnectionCreate should fail after cleanup")
	}
}

func TestLogon(t *testing.T) {
	h := setupTestHost(t)

	tests := []struct {
		name     string
		db       string
		user     string
		pwd      string
		mode     oci.SessionMode
		wantCode int
	}{
		{name: "valid", db: "db1:1521/orcl", user: "scott", pwd: "tiger"},
		{name: "bare service", db: "ORCL", user: "SCOTT", pwd: "tiger"},
		{name: "sysdba", db: "orcl", user: "sys", pwd: "manager", mode: oci.SessionSysDBA},
		{name: "bad password", db: "orcl", user: "scott", pwd: "lion", wantCode: oci.CodeLogonDenied},
		{name: "unknown user", db: "orcl", user: "nobody", pwd: "x", wantCode: oci.CodeLogonDenied},
		{name: "unknown service", db: "db1:1521/other", user: "scott", pwd: "tiger", wantCode: oci.CodeNoService},
		{name: "sysdba denied", db: "orcl", user: "scott", pwd: "tiger", mode: oci.SessionSysDBA, wantCode: oci.CodeNoPrivilege},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := h.ConnectionCreate(tt.db, tt.user, tt.pwd, tt.mode)
			if tt.wantCode != 0 {
				if err == nil {
					t.Fatal("Expected logon to fail")
				}
				if code := nativeCode(t, err); code != tt.wantCode {
					t.Errorf("Expected code %d, got %d", tt.wantCode, code)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConnectionCreate failed: %v", err)
			}
			if !h.Ping(c) {
				t.Error("Ping should succeed on a fresh session")
			}
			if err := h.ConnectionFree(c); err != nil {
				t.Errorf("ConnectionFree failed: %v", err)
			}
			if h.IsConnected(c) {
				t.Error("Connection should be gone after free")
			}
		})
	}
}

func TestInvalidHandles(t *testing.T) {
	h := setupTestHost(t)

	_, err := h.StatementCreate("")
	if code := nativeCode(t, err); code != drvNullHandle {
		t.Errorf("Expected null handle code, got %d", code)
	}
	_, err = h.StatementCreate("not-a-handle")
	if code := nativeCode(t, err); code != drvInvalidHandle {
		t.Errorf("Expected invalid handle code, got %d", code)
	}

	c := connect(t, h)
	s := run(t, h, c, "SELECT 1 FROM dual")
	// A statement handle is not a connection handle
	if h.IsConnected(oci.Conn(s)) {
		t.Error("Statement handle accepted as connection")
	}
}

func TestTransactions(t *testing.T) {
	h := setupTestHost(t)
	c1 := connect(t, h)
	c2 := connect(t, h)

	if h.AutoCommit(c1) {
		t.Fatal("Autocommit should be off by default")
	}
	run(t, h, c1, "CREATE TABLE items (id INTEGER PRIMARY KEY, name VARCHAR2(20))")
	run(t, h, c1, "INSERT INTO items (id, name) VALUES (1, 'one')")

	countFrom := func(c oci.Conn) int64 {
		t.Helper()
		s := run(t, h, c, "SELECT COUNT(*) AS n FROM items")
		rs, ok := h.Resultset(s)
		if !ok {
			t.Fatal("Expected a result set")
		}
		if more, err := h.FetchNext(rs); err != nil || !more {
			t.Fatalf("FetchNext failed: %v", err)
		}
		n, err := h.GetInt(rs, 1)
		if err != nil {
			t.Fatalf("GetInt failed: %v", err)
		}
		h.StatementFree(s)
		return n
	}

	if n := countFrom(c2); n != 0 {
		t.Errorf("Uncommitted row visible to another session: %d", n)
	}
	if err := h.Rollback(c1); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if n := countFrom(c1); n != 0 {
		t.Errorf("Expected 0 rows after rollback, got %d", n)
	}

	run(t, h, c1, "INSERT INTO items (id, name) VALUES (2, 'two')")
	if err := h.Commit(c1); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if n := countFrom(c2); n != 1 {
		t.Errorf("Expected 1 committed row, got %d", n)
	}

	// Autocommit publishes each DML statement
	if err := h.SetAutoCommit(c1, true); err != nil {
		t.Fatalf("SetAutoCommit failed: %v", err)
	}
	run(t, h, c1, "INSERT INTO items (id, name) VALUES (3, 'three')")
	if n := countFrom(c2); n != 2 {
		t.Errorf("Expected 2 rows with autocommit, got %d", n)
	}

	// DDL commits pending work
	h.SetAutoCommit(c1, false)
	run(t, h, c1, "INSERT INTO items (id, name) VALUES (4, 'four')")
	run(t, h, c1, "CREATE TABLE other (id INTEGER)")
	h.Rollback(c1)
	if n := countFrom(c2); n != 3 {
		t.Errorf("Expected DDL to commit pending insert, got %d rows", n)
	}
}

func TestFormats(t *testing.T) {
	h := setupTestHost(t)
	c := connect(t, h)

	if f := h.Format(c, oci.FormatDate); f != defaultDateFormat {
		t.Errorf("Expected default date format, got %q", f)
	}
	if err := h.SetFormat(c, oci.FormatDate, "DD/MM/YYYY"); err != nil {
		t.Fatalf("SetFormat failed: %v", err)
	}
	if f := h.Format(c, oci.FormatDate); f != "DD/MM/YYYY" {
		t.Errorf("Expected updated format, got %q", f)
	}

	run(t, h, c, "CREATE TABLE events (at DATE)")
	run(t, h, c, "INSERT INTO events (at) VALUES ('2024-03-05 10:20:30')")
	s := run(t, h, c, "SELECT at FROM events")
	rs, _ := h.Resultset(s)
	h.FetchNext(rs)
	got, err := h.GetString(rs, 1)
	if err != nil {
		t.Fatalf("GetString failed: %v", err)
	}
	if got != "05/03/2024" {
		t.Errorf("Expected formatted date 05/03/2024, got %q", got)
	}
}

func TestGoLayout(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"YYYY-MM-DD HH24:MI:SS", "2006-01-02 15:04:05"},
		{"YYYY-MM-DD HH24:MI:SS.FF", "2006-01-02 15:04:05.000000"},
		{"DD-MON-YY", "02-Jan-06"},
		{"HH:MI AM", "03:04 PM"},
	}
	for _, tt := range tests {
		if got := goLayout(tt.format); got != tt.want {
			t.Errorf("goLayout(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestServerVersion(t *testing.T) {
	h := setupTestHost(t)
	c := connect(t, h)
	if v := h.ServerVersion(c); v == "" {
		t.Error("Expected a server version")
	}
	if v := h.ServerVersion(""); v != "" {
		t.Errorf("Expected empty version for null handle, got %q", v)
	}
}

func TestPingRejectsInvalidToken(t *testing.T) {
	h := setupTestHost(t)
	c := connect(t, h)

	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	s.token = "tampered." + s.token
	if h.Ping(c) {
		t.Error("Ping should fail with an invalid session token")
	}
}
