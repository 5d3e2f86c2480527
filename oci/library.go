package oci

// Library is the native call interface.
type Library interface {
	// Environment
	Initialize(mode EnvMode) error
	Cleanup() error

	// Connections
	ConnectionCreate(db, user, pwd string, mode SessionMode) (Conn, error)
	// ConnectionFree closes a standalone connection or returns a pooled
	// connection to its pool.
	ConnectionFree(c Conn) error
	IsConnected(c Conn) bool
	Ping(c Conn) bool
	Break(c Conn) error
	SetAutoCommit(c Conn, enable bool) error
	AutoCommit(c Conn) bool
	Commit(c Conn) error
	Rollback(c Conn) error
	SetFormat(c Conn, kind FormatKind, format string) error
	Format(c Conn, kind FormatKind) string
	ServerVersion(c Conn) string

	// Pools
	PoolCreate(db, user, pwd string, kind PoolKind, mode SessionMode, min, max, incr uint32) (Pool, error)
	PoolFree(p Pool) error
	PoolGetConnection(p Pool, tag string) (Conn, error)
	PoolMin(p Pool) uint32
	PoolMax(p Pool) uint32
	PoolIncrement(p Pool) uint32
	PoolOpenedCount(p Pool) uint32
	PoolBusyCount(p Pool) uint32
	PoolTimeout(p Pool) uint32
	PoolSetTimeout(p Pool, seconds uint32) error
	PoolNoWait(p Pool) bool
	PoolSetNoWait(p Pool, enable bool) error
	PoolStatementCacheSize(p Pool) uint32
	PoolSetStatementCacheSize(p Pool, size uint32) error

	// Statements
	StatementCreate(c Conn) (Stmt, error)
	StatementFree(s Stmt) error
	Prepare(s Stmt, sql string) error
	Execute(s Stmt) error
	StatementSQL(s Stmt) string
	SQLIdentifier(s Stmt) string
	SetPrefetchSize(s Stmt, rows uint32) error
	SetFetchSize(s Stmt, rows uint32) error
	SetBatchErrorMode(s Stmt, enable bool) error
	AffectedRows(s Stmt) uint32
	// BatchError pops the next per-row error of the last array execution.
	BatchError(s Stmt) (*Error, bool)

	// Binding. Buffers are read when Execute runs, so they must stay alive
	// and unchanged until it returns.
	BindInt(s Stmt, name string, v *int32) error
	BindString(s Stmt, name string, buf []byte, maxLen uint32) error
	BindBoolean(s Stmt, name string, v *int32) error
	BindDouble(s Stmt, name string, v *float64) error
	BindDate(s Stmt, name string, d Date) error
	BindColl(s Stmt, name string, c Coll) error
	BindNull(s Stmt, name string) error
	BindArraySetSize(s Stmt, size uint32) error
	BindArrayOfInts(s Stmt, name string, v []int32) error
	BindArrayOfStrings(s Stmt, name string, buf []byte, elemLen uint32) error
	BindArrayOfDoubles(s Stmt, name string, v []float64) error
	RegisterInt(s Stmt, name string) error

	// Result sets
	Resultset(s Stmt) (Resultset, bool)
	ReleaseResultsets(s Stmt) error
	FetchNext(rs Resultset) (bool, error)
	RowCount(rs Resultset) uint32
	ColumnCount(rs Resultset) uint32
	ColumnName(col Column) string
	ColumnType(col Column) ColumnType
	ColumnSubtype(col Column) int
	ColumnScale(col Column) int

	// Fields of the current row (1-based index)
	IsNull(rs Resultset, index uint32) bool
	GetString(rs Resultset, index uint32) (string, error)
	GetInt(rs Resultset, index uint32) (int64, error)
	GetDouble(rs Resultset, index uint32) (float64, error)
	GetRaw(rs Resultset, index uint32) ([]byte, error)
	// GetDate, GetTimestamp and GetLong return handles owned by the result
	// set; they are freed when the result set moves or is released.
	GetDate(rs Resultset, index uint32) (Date, error)
	GetTimestamp(rs Resultset, index uint32) (Timestamp, error)
	GetLong(rs Resultset, index uint32) (Long, error)
	// GetStatement returns an executed nested statement owned by the parent
	// statement.
	GetStatement(rs Resultset, index uint32) (Stmt, error)

	// Dates, timestamps and longs
	DateCreate(c Conn) (Date, error)
	DateFree(d Date) error
	DateSetDateTime(d Date, year, month, day, hour, min, sec int) error
	DateGetDateTime(d Date) (year, month, day, hour, min, sec int, err error)
	TimestampGetDateTime(t Timestamp) (year, month, day, hour, min, sec, fsec int, err error)
	TimestampGetTimeZoneOffset(t Timestamp) (hour, min int, err error)
	LongType(l Long) int
	LongBuffer(l Long) ([]byte, error)

	// Types and collections
	TypeInfoGet(c Conn, name string, kind TypeInfoKind) (TypeInfo, error)
	TypeInfoFree(t TypeInfo) error
	CollCreate(t TypeInfo) (Coll, error)
	CollFree(c Coll) error
	CollAppend(c Coll, e Elem) error
	CollSize(c Coll) uint32
	ElemCreate(t TypeInfo) (Elem, error)
	ElemFree(e Elem) error
	ElemSetInt(e Elem, v int64) error
	ElemSetDouble(e Elem, v float64) error
	ElemSetString(e Elem, v string) error
	ElemSetBoolean(e Elem, v bool) error

	// Advanced queuing
	EnqueueCreate(t TypeInfo, queue string) (Enqueue, error)
	EnqueueFree(e Enqueue) error
	EnqueuePut(e Enqueue, m Msg) error
	DequeueCreate(t TypeInfo, queue string) (Dequeue, error)
	DequeueFree(d Dequeue) error
	// DequeueGet returns a message owned by the dequeue handle.
	DequeueGet(d Dequeue) (Msg, error)
	MsgCreate(t TypeInfo) (Msg, error)
	MsgFree(m Msg) error
	MsgSetCorrelation(m Msg, correlation string) error
	MsgCorrelation(m Msg) string
	MsgSetRaw(m Msg, payload []byte) error
	MsgRaw(m Msg) []byte
	MsgID(m Msg) ([]byte, error)

	// Server output
	ServerEnableOutput(c Conn, bufSize, arrSize, lineSize uint32) error
	ServerGetOutput(c Conn) (string, bool)
	ServerDisableOutput(c Conn) error
}
