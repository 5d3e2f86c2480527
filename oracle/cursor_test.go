package oracle

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/tomyedwab/ocidb/oci"
)

func TestBindRoundTrip(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, `CREATE TABLE vals (
		s VARCHAR2(40),
		i INTEGER,
		b BOOLEAN,
		d BINARY_DOUBLE,
		dt DATE
	)`, nil)

	created := time.Date(2024, 2, 29, 13, 14, 15, 0, time.UTC)
	tests := []struct {
		name   string
		column string
		bind   BindValue
		want   Value
	}{
		{name: "string", column: "s", bind: String("héllo wörld"), want: StringValue("héllo wörld")},
		{name: "empty string", column: "s", bind: String(""), want: StringValue("")},
		{name: "integer", column: "i", bind: Int(-42), want: IntValue(-42)},
		{name: "max int32", column: "i", bind: Int(math.MaxInt32), want: IntValue(math.MaxInt32)},
		{name: "bool true", column: "b", bind: Bool(true), want: BoolValue(true)},
		{name: "bool false", column: "b", bind: Bool(false), want: BoolValue(false)},
		{name: "double", column: "d", bind: Double(0.25), want: FloatValue(0.25)},
		{name: "date", column: "dt", bind: Date(created), want: DateTimeValue{created}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			execute(t, c, "DELETE FROM vals", nil)
			execute(t, c, "INSERT INTO vals ("+tt.column+") VALUES (:v)", map[string]BindValue{"v": tt.bind})

			cur := execute(t, c, "SELECT "+tt.column+" FROM vals", nil)
			row, err := cur.Fetchone()
			if err != nil || row == nil {
				t.Fatalf("Fetchone failed: %v", err)
			}
			got, err := row.FieldAt(0).Value()
			if err != nil {
				t.Fatalf("Value failed: %v", err)
			}
			if dt, ok := tt.want.(DateTimeValue); ok {
				gotDT, ok := got.(DateTimeValue)
				if !ok || !gotDT.Equal(dt.Time) || gotDT.Location() != time.UTC {
					t.Errorf("Value() = %v, want %v", got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Value() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBindValueErrors(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE vals (i INTEGER, dt DATE)", nil)

	cur, _ := c.Cursor()
	defer cur.Close()

	err := cur.Execute("INSERT INTO vals (i) VALUES (:v)", map[string]BindValue{"v": Int(math.MaxInt32 + 1)})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType for an int32 overflow, got %v", err)
	}

	err = cur.Execute("INSERT INTO vals (dt) VALUES (:v)", map[string]BindValue{"v": Date(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC))})
	if !IsExecutionFailed(err) {
		t.Fatalf("Expected an execution failure for an out of range date, got %v", err)
	}
	if d := NativeDetail(err); d == nil || !strings.HasPrefix(d.Text, "ORA-01841") {
		t.Errorf("Expected the native date error text, got %+v", d)
	}

	err = cur.Execute("INSERT INTO vals (i) VALUES (:v)", map[string]BindValue{"other": Int(1)})
	if !IsExecutionFailed(err) {
		t.Errorf("Expected an unknown bind name to fail, got %v", err)
	}

	err = cur.Execute("INSERT INTO vals (i) VALUES (:v)", map[string]BindValue{"v": Collection(nil)})
	if !errors.Is(err, ErrNotExecuted) {
		t.Errorf("Expected ErrNotExecuted for a nil collection, got %v", err)
	}
}

func TestBindValueString(t *testing.T) {
	tests := []struct {
		bind BindValue
		kind BindKind
		want string
	}{
		{Int(7), BindKindInt, "7"},
		{String("abc"), BindKindString, "abc"},
		{Bool(true), BindKindBool, "true"},
		{Double(1.5), BindKindDouble, "1.5"},
		{Date(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), BindKindDate, "2024-01-02 03:04:05"},
		{Null(), BindKindNull, "NULL"},
	}
	for _, tt := range tests {
		if tt.bind.Kind() != tt.kind || tt.bind.String() != tt.want {
			t.Errorf("Got %v %q, want %v %q", tt.bind.Kind(), tt.bind.String(), tt.kind, tt.want)
		}
	}
}

func TestExecuteTwiceResets(t *testing.T) {
	h, _ := setupTestEnv(t)
	lib := newRecordingLibrary(h)
	env := NewEnvironment(lib)
	c := openTestConnection(t, env)

	cur, _ := c.Cursor()
	defer cur.Close()
	if err := cur.Execute("SELECT 1 AS a FROM dual", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	cols, _ := cur.Columns()
	if len(cols) != 1 || cols[0].Name != "A" {
		t.Fatalf("Unexpected columns %+v", cols)
	}
	first, _ := cur.Fetchone()

	lib.mu.Lock()
	lib.order = nil
	lib.mu.Unlock()
	if err := cur.Execute("SELECT 'x' AS b, 2 AS c FROM dual", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	lib.mu.Lock()
	order := append([]string(nil), lib.order...)
	lib.mu.Unlock()
	if len(order) < 2 || order[0] != "ReleaseResultsets" || order[1] != "Prepare" {
		t.Errorf("Expected the result set released before preparing, got %v", order)
	}

	cols, _ = cur.Columns()
	if len(cols) != 2 || cols[0].Name != "B" || cols[1].Name != "C" {
		t.Errorf("Stale column cache after re-execute: %+v", cols)
	}
	if _, err := first.FieldAt(0).Value(); !errors.Is(err, ErrRowInvalid) {
		t.Errorf("Expected ErrRowInvalid for a row of the previous execution, got %v", err)
	}
}

func TestFetchExhaustion(t *testing.T) {
	h, _ := setupTestEnv(t)
	lib := newRecordingLibrary(h)
	env := NewEnvironment(lib)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE nums (n INTEGER)", nil)
	execute(t, c, "INSERT INTO nums VALUES (1), (2)", nil)

	cur := execute(t, c, "SELECT n FROM nums ORDER BY n", nil)
	var got []int64
	for row, err := range cur.All() {
		if err != nil {
			t.Fatalf("All failed: %v", err)
		}
		n, _ := row.Field("n").Int()
		got = append(got, n)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Unexpected rows %v", got)
	}
	fetches := lib.count("FetchNext")
	if fetches != 3 {
		t.Errorf("Expected 3 native fetches, got %d", fetches)
	}

	for i := 0; i < 3; i++ {
		row, err := cur.Fetchone()
		if row != nil || err != nil {
			t.Fatalf("Expected no row after exhaustion, got %v %v", row, err)
		}
	}
	if n := lib.count("FetchNext"); n != fetches {
		t.Errorf("Exhausted cursor fetched again: %d native fetches", n)
	}
	if cur.Count() != 2 {
		t.Errorf("Expected count 2, got %d", cur.Count())
	}
}

func TestCursorNotExecuted(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)

	cur, err := c.Cursor()
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if _, err := cur.Fetchone(); !errors.Is(err, ErrNotExecuted) {
		t.Errorf("Expected ErrNotExecuted, got %v", err)
	}
	if _, err := cur.Columns(); !errors.Is(err, ErrNotExecuted) {
		t.Errorf("Expected ErrNotExecuted, got %v", err)
	}

	// DML produces no rows
	execute(t, c, "CREATE TABLE nums (n INTEGER)", nil)
	if err := cur.Execute("INSERT INTO nums VALUES (1)", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if row, err := cur.Fetchone(); row != nil || err != nil {
		t.Errorf("Expected no row for DML, got %v %v", row, err)
	}
	if cur.Affected() != 1 {
		t.Errorf("Expected 1 affected row, got %d", cur.Affected())
	}
	if cur.SQLID() == "" || len(cur.SQLID()) != 13 {
		t.Errorf("Unexpected SQL id %q", cur.SQLID())
	}

	if err := cur.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cur.Execute("SELECT 1 FROM dual", nil); !errors.Is(err, ErrNotExecuted) {
		t.Errorf("Expected a closed cursor to refuse Execute, got %v", err)
	}
}

func TestExecutionFailedDetail(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE uniq (id INTEGER PRIMARY KEY)", nil)
	execute(t, c, "INSERT INTO uniq VALUES (1)", nil)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{name: "missing table", query: "SELECT * FROM missing_table", code: 942},
		{name: "unique violation", query: "INSERT INTO uniq VALUES (1)", code: 1},
		{name: "syntax error", query: "SELEKT 1 FROM dual", code: 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, _ := c.Cursor()
			defer cur.Close()
			err := cur.Execute(tt.query, nil)
			if !IsExecutionFailed(err) {
				t.Fatalf("Expected an execution failure, got %v", err)
			}
			d := NativeDetail(err)
			if d.Code != tt.code || d.Type != oci.ErrorServer {
				t.Errorf("Unexpected detail %+v", d)
			}
			if d.SQL != tt.query {
				t.Errorf("Expected failing SQL %q, got %q", tt.query, d.SQL)
			}
			if !strings.Contains(err.Error(), d.Text) {
				t.Errorf("Error text %q does not carry the native text %q", err.Error(), d.Text)
			}
		})
	}
}

func TestExecuteBulkDML(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE people (id INTEGER PRIMARY KEY, name VARCHAR2(10) NOT NULL)", nil)

	cur, _ := c.Cursor()
	defer cur.Close()

	// Row 2 repeats id 1 and violates the primary key
	affected, rowErrors, err := cur.ExecuteBulkDML("INSERT INTO people (id, name) VALUES (:id, :name)", map[string]BindArray{
		"id":   IntArray([]int{1, 1, 3}),
		"name": StringArray([]string{"ann", "bob", "cy"}),
	})
	if err != nil {
		t.Fatalf("ExecuteBulkDML failed: %v", err)
	}
	if affected != 2 {
		t.Errorf("Expected 2 affected rows, got %d", affected)
	}
	if len(rowErrors) != 1 || !strings.HasPrefix(rowErrors[0], "row 2: ORA-00001") {
		t.Errorf("Unexpected row errors %q", rowErrors)
	}

	execute(t, c, "DELETE FROM people", nil)
	affected, rowErrors, err = cur.ExecuteBulkDML("INSERT INTO people (id, name) VALUES (:id, :name)", map[string]BindArray{
		"id":   IntArray([]int{1, 2, 3}),
		"name": StringArray([]string{"ann", "bob", "cy"}),
	})
	if err != nil || affected != 3 || len(rowErrors) != 0 {
		t.Errorf("Expected a clean batch, got affected=%d errors=%q err=%v", affected, rowErrors, err)
	}

	_, _, err = cur.ExecuteBulkDML("INSERT INTO nowhere (id) VALUES (:id)", map[string]BindArray{"id": IntArray([]int{1})})
	if !IsExecutionFailed(err) {
		t.Errorf("Expected a structural failure to be returned, got %v", err)
	}
}

func TestExecuteArrayBinds(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE readings (id INTEGER PRIMARY KEY, value BINARY_DOUBLE)", nil)

	cur, _ := c.Cursor()
	defer cur.Close()

	n, err := cur.ExecuteArrayBinds("INSERT INTO readings (id, value) VALUES (:id, :value)", map[string]BindArray{
		"id":    IntArray([]int{1, 2}),
		"value": DoubleArray([]float64{0.5, 1.5}),
	})
	if err != nil || n != 2 {
		t.Fatalf("ExecuteArrayBinds = %d, %v", n, err)
	}

	_, err = cur.ExecuteArrayBinds("INSERT INTO readings (id, value) VALUES (:id, :value)", map[string]BindArray{
		"id":    IntArray([]int{3, 1, 4}),
		"value": DoubleArray([]float64{2.5, 3.5, 4.5}),
	})
	if !IsExecutionFailed(err) {
		t.Fatalf("Expected the array execution to abort, got %v", err)
	}
	if d := NativeDetail(err); d.Row != 2 {
		t.Errorf("Expected failure at row 2, got %d", d.Row)
	}
}

func TestExecuteArrayBindsAutoCommit(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE readings (id INTEGER PRIMARY KEY)", nil)
	if err := c.SetAutoCommit(true); err != nil {
		t.Fatalf("SetAutoCommit failed: %v", err)
	}
	count := func() int {
		t.Helper()
		row, err := execute(t, c, "SELECT COUNT(*) AS n FROM readings", nil).Fetchone()
		if err != nil || row == nil {
			t.Fatalf("Fetchone failed: %v", err)
		}
		n, _ := row.Field("N").Int()
		return int(n)
	}

	cur, _ := c.Cursor()
	defer cur.Close()

	// Row 2 fails, and the rollback also discards row 1
	n, err := cur.ExecuteArrayBinds("INSERT INTO readings (id) VALUES (:id)", map[string]BindArray{
		"id": IntArray([]int{1, 1}),
	})
	if !IsExecutionFailed(err) {
		t.Fatalf("Expected the array execution to abort, got %v", err)
	}
	if got := count(); n != got {
		t.Errorf("Reported %d affected rows, table holds %d", n, got)
	}

	n, err = cur.ExecuteArrayBinds("INSERT INTO readings (id) VALUES (:id)", map[string]BindArray{
		"id": IntArray([]int{1, 2}),
	})
	if err != nil || n != 2 {
		t.Fatalf("ExecuteArrayBinds = %d, %v", n, err)
	}
	if got := count(); got != 2 {
		t.Errorf("Expected 2 committed rows, got %d", got)
	}
}

func TestRegisterOutput(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE seqd (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)", nil)

	cur := execute(t, c, "INSERT INTO seqd (name) VALUES (:name) RETURNING id INTO :new_id",
		map[string]BindValue{"name": String("x")}, WithRegister("new_id", Integer))
	row, err := cur.Fetchone()
	if err != nil || row == nil {
		t.Fatalf("Fetchone failed: %v", err)
	}
	if id, err := row.Field("NEW_ID").Int(); err != nil || id != 1 {
		t.Errorf("Expected returned id 1, got %d (%v)", id, err)
	}

	err = cur.Execute("INSERT INTO seqd (name) VALUES (:name) RETURNING id INTO :new_id",
		map[string]BindValue{"name": String("y")}, WithRegister("new_id", Number(2)))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType for a non-integer output, got %v", err)
	}
}

func TestServerOutput(t *testing.T) {
	h, _ := setupTestEnv(t)
	lib := newRecordingLibrary(h)
	c := openTestConnection(t, NewEnvironment(lib))

	cur := execute(t, c, "SELECT put_line('first'), put_line('second') FROM dual", nil, WithServerOutput())
	if out := cur.ServerOutput(); out != "first\nsecond" {
		t.Errorf("Unexpected server output %q", out)
	}
	if n := lib.count("ServerDisableOutput"); n != 1 {
		t.Errorf("Expected output capture to be disabled once, got %d", n)
	}

	// Capture is off again for later statements
	cur = execute(t, c, "SELECT put_line('third') FROM dual", nil)
	if out := cur.ServerOutput(); out != "" {
		t.Errorf("Expected no output without capture, got %q", out)
	}
}

func TestUnsupportedColumns(t *testing.T) {
	h, _ := setupTestEnv(t)
	lib := newRecordingLibrary(h)
	lib.columnTypes = map[string]oci.ColumnType{"ODD": oci.ColumnType(99)}
	c := openTestConnection(t, NewEnvironment(lib))
	execute(t, c, "CREATE TABLE docs (id INTEGER, body XMLTYPE)", nil)
	execute(t, c, "INSERT INTO docs VALUES (1, '<a/>')", nil)

	cur := execute(t, c, "SELECT id, body, 7 AS odd FROM docs", nil)
	cols, err := cur.Columns()
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Expected ErrUnsupportedType, got %v", err)
	}
	if len(cols) != 3 || cols[1].Type.Valid() || cols[2].Type.Valid() || !cols[0].Type.Valid() {
		t.Errorf("Unexpected columns %+v", cols)
	}
	if !strings.Contains(err.Error(), "BODY") || !strings.Contains(err.Error(), "ODD") {
		t.Errorf("Expected the error to name the columns, got %v", err)
	}

	row, err := cur.Fetchone()
	if err != nil || row == nil {
		t.Fatalf("Fetchone failed: %v", err)
	}
	if v, err := row.Field("ID").Value(); err != nil || v != IntValue(1) {
		t.Errorf("Supported column should still decode, got %v %v", v, err)
	}
	if _, err := row.Field("BODY").Value(); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType decoding BODY, got %v", err)
	}
}

func TestNestedCursor(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE depts (id INTEGER, name TEXT)", nil)
	execute(t, c, "INSERT INTO depts VALUES (10, 'eng'), (20, 'ops')", nil)

	cur := execute(t, c, "SELECT id, cursor('SELECT name FROM depts ORDER BY id') AS names FROM depts WHERE id = 10", nil)
	row, err := cur.Fetchone()
	if err != nil || row == nil {
		t.Fatalf("Fetchone failed: %v", err)
	}
	if typ := row.Field("NAMES").Type(); typ.Kind != TypeCursor {
		t.Fatalf("Expected a cursor column, got %v", typ)
	}
	v, err := row.Field("NAMES").Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	nested, ok := v.(CursorValue)
	if !ok {
		t.Fatalf("Expected CursorValue, got %T", v)
	}

	var names []string
	for r, err := range nested.All() {
		if err != nil {
			t.Fatalf("Nested fetch failed: %v", err)
		}
		name, _ := r.FieldAt(0).String()
		names = append(names, name)
	}
	if strings.Join(names, ",") != "eng,ops" {
		t.Errorf("Unexpected nested rows %v", names)
	}
	if err := nested.Close(); err != nil {
		t.Errorf("Closing a nested cursor failed: %v", err)
	}
}

func TestCollectionBind(t *testing.T) {
	h, env := setupTestEnv(t)
	if err := h.DefineCollectionType("id_list", "integer"); err != nil {
		t.Fatalf("DefineCollectionType failed: %v", err)
	}
	c := openTestConnection(t, env)
	execute(t, c, "CREATE TABLE stock (id INTEGER, qty INTEGER)", nil)
	execute(t, c, "INSERT INTO stock VALUES (1, 10), (2, 20), (3, 30)", nil)

	coll, err := NewBindCollection(c, "id_list")
	if err != nil {
		t.Fatalf("NewBindCollection failed: %v", err)
	}
	defer coll.Close()
	for _, id := range []int64{1, 3} {
		if err := coll.AppendInt(id); err != nil {
			t.Fatalf("AppendInt failed: %v", err)
		}
	}
	if coll.Len() != 2 {
		t.Errorf("Expected 2 elements, got %d", coll.Len())
	}

	cur := execute(t, c, "SELECT SUM(qty) AS total FROM stock WHERE id IN (SELECT value FROM json_each(:ids))",
		map[string]BindValue{"ids": Collection(coll)})
	row, _ := cur.Fetchone()
	if total, err := row.Field("TOTAL").Int(); err != nil || total != 40 {
		t.Errorf("Expected total 40, got %d (%v)", total, err)
	}

	if _, err := NewBindCollection(c, "no_such_type"); !IsExecutionFailed(err) {
		t.Errorf("Expected an unknown type to fail, got %v", err)
	}
	coll.Close()
	if err := coll.AppendInt(5); err == nil {
		t.Error("Append on a closed collection should fail")
	}
}

func TestBreak(t *testing.T) {
	_, env := setupTestEnv(t)
	c := openTestConnection(t, env)

	cur, _ := c.Cursor()
	defer cur.Close()

	finished := make(chan error, 1)
	go func() {
		finished <- cur.Execute("WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM n) SELECT COUNT(*) FROM n", nil)
	}()

	var execErr error
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(10 * time.Second)
wait:
	for {
		select {
		case execErr = <-finished:
			break wait
		case <-ticker.C:
			if err := c.Break(); err != nil {
				t.Fatalf("Break failed: %v", err)
			}
		case <-deadline:
			t.Fatal("Interrupted call did not return")
		}
	}

	if d := NativeDetail(execErr); d == nil || d.Code != oci.CodeUserCancel {
		t.Errorf("Expected ORA-01013, got %v", execErr)
	}
}
