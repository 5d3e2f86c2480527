package oracle

import (
	"errors"
	"log/slog"
	"time"

	"github.com/tomyedwab/ocidb/oci"
)

const (
	defaultPoolMin       = 1
	defaultPoolIncrement = 1
)

// PoolKind selects between connection pooling and session pooling.
type PoolKind int

const (
	PoolConnection PoolKind = iota
	PoolSession
)

// PoolConfig holds configuration options for a ConnectionPool.
type PoolConfig struct {
	Service   ServiceLocator
	User      string
	Password  string
	Min       uint32   // Optional, defaults to 1
	Max       uint32   // Optional, defaults to Min
	Increment uint32   // Optional, defaults to 1
	Kind      PoolKind // Optional, defaults to PoolConnection
	// SysDBA is only honoured for session pools.
	SysDBA             bool
	StatementCacheSize uint32        // Optional, keeps the native default when 0
	Timeout            time.Duration // Optional, keeps the native default when 0
	NoWait             bool
	Environment        *Environment // Optional, defaults to DefaultEnvironment()
	Logger             *slog.Logger // Optional, defaults to slog.Default()
}

// ConnectionPool owns a bounded native pool of sessions. Capacity and
// occupancy are tracked by the native pool; the counters only surface them.
type ConnectionPool struct {
	env    *Environment
	lib    oci.Library
	pool   oci.Pool
	logger *slog.Logger
}

// NewConnectionPool opens the native pool with config.Min sessions.
func NewConnectionPool(config PoolConfig) (*ConnectionPool, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Min == 0 {
		config.Min = defaultPoolMin
	}
	if config.Max == 0 {
		config.Max = config.Min
	}
	if config.Increment == 0 {
		config.Increment = defaultPoolIncrement
	}
	env, err := resolveEnvironment(config.Environment)
	if err != nil {
		return nil, err
	}
	if err := env.Acquire(); err != nil {
		return nil, err
	}

	kind := oci.PoolConnection
	mode := oci.SessionDefault
	if config.Kind == PoolSession {
		kind = oci.PoolSession
		if config.SysDBA {
			mode = oci.SessionSysDBA
		}
	}
	service := config.Service.String()
	lib := env.Library()
	pool, err := lib.PoolCreate(service, config.User, config.Password, kind, mode, config.Min, config.Max, config.Increment)
	if err != nil {
		env.Release()
		config.Logger.Error("Failed to create pool", "service", service, "error", err)
		return nil, wrapNative(lib, KindPoolAllocation, err, "", "failed to create pool for %s", service)
	}
	p := &ConnectionPool{env: env, lib: lib, pool: pool, logger: config.Logger}

	if config.StatementCacheSize > 0 {
		if err := p.SetStatementCacheSize(int(config.StatementCacheSize)); err != nil {
			p.Close()
			return nil, err
		}
	}
	if config.Timeout > 0 {
		if err := p.SetTimeout(config.Timeout); err != nil {
			p.Close()
			return nil, err
		}
	}
	if config.NoWait {
		if err := p.SetNoWait(true); err != nil {
			p.Close()
			return nil, err
		}
	}
	p.logger.Debug("Pool created", "service", service, "min", config.Min, "max", config.Max, "increment", config.Increment)
	return p, nil
}

// PooledConnection is a session borrowed from a ConnectionPool. It must be
// handed back with ConnectionPool.Release.
type PooledConnection struct {
	session

	pool *ConnectionPool
	tag  string
}

// Tag returns the tag the connection was acquired with.
func (pc *PooledConnection) Tag() string {
	return pc.tag
}

// Acquire borrows a session, preferring one carrying tag when tag is not
// empty, and sets its autocommit mode.
func (p *ConnectionPool) Acquire(tag string, autoCommit bool) (*PooledConnection, error) {
	if p.pool == "" {
		return nil, newError(KindPoolAllocation, "pool is closed")
	}
	conn, err := p.lib.PoolGetConnection(p.pool, tag)
	if err != nil {
		kind := KindPoolAllocation
		var oe *oci.Error
		if errors.As(err, &oe) && (oe.Code == oci.CodePoolExhausted || oe.Code == oci.CodePoolTimeout) {
			kind = KindPoolExhausted
		}
		p.logger.Warn("Failed to acquire pooled connection", "tag", tag, "busy", p.BusyCount(), "opened", p.OpenedCount(), "error", err)
		return nil, wrapNative(p.lib, kind, err, "", "failed to acquire pooled connection")
	}

	pc := &PooledConnection{
		session: session{lib: p.lib, conn: conn, logger: p.logger},
		pool:    p,
		tag:     tag,
	}
	if err := pc.SetAutoCommit(autoCommit); err != nil {
		p.lib.ConnectionFree(conn)
		return nil, err
	}
	return pc, nil
}

// Release returns a borrowed connection to the pool. The connection
// answers ErrNotConnected afterwards.
func (p *ConnectionPool) Release(pc *PooledConnection) error {
	if pc == nil || pc.conn == "" {
		return ErrNotConnected
	}
	if pc.pool != p {
		return newError(KindPoolAllocation, "connection does not belong to this pool")
	}
	err := p.lib.ConnectionFree(pc.conn)
	pc.conn = ""
	if err != nil {
		return wrapNative(p.lib, KindExecutionFailed, err, "", "failed to release pooled connection")
	}
	return nil
}

// MinCount returns the minimum number of sessions.
func (p *ConnectionPool) MinCount() int {
	return int(p.lib.PoolMin(p.pool))
}

// MaxCount returns the maximum number of sessions.
func (p *ConnectionPool) MaxCount() int {
	return int(p.lib.PoolMax(p.pool))
}

// IncrementCount returns how many sessions the pool opens when it grows.
func (p *ConnectionPool) IncrementCount() int {
	return int(p.lib.PoolIncrement(p.pool))
}

// OpenedCount returns the number of open sessions.
func (p *ConnectionPool) OpenedCount() int {
	return int(p.lib.PoolOpenedCount(p.pool))
}

// BusyCount returns the number of sessions currently acquired.
func (p *ConnectionPool) BusyCount() int {
	return int(p.lib.PoolBusyCount(p.pool))
}

// Timeout is how long an idle session is kept above the minimum, and how
// long Acquire waits for a free session when NoWait is off.
func (p *ConnectionPool) Timeout() time.Duration {
	return time.Duration(p.lib.PoolTimeout(p.pool)) * time.Second
}

// SetTimeout sets the timeout, rounded down to whole seconds.
func (p *ConnectionPool) SetTimeout(d time.Duration) error {
	if err := p.lib.PoolSetTimeout(p.pool, uint32(d/time.Second)); err != nil {
		return wrapNative(p.lib, KindExecutionFailed, err, "", "failed to set pool timeout")
	}
	return nil
}

// NoWait reports whether Acquire fails instead of waiting on a full pool.
func (p *ConnectionPool) NoWait() bool {
	return p.lib.PoolNoWait(p.pool)
}

// SetNoWait switches between failing and waiting when the pool is full.
func (p *ConnectionPool) SetNoWait(enable bool) error {
	if err := p.lib.PoolSetNoWait(p.pool, enable); err != nil {
		return wrapNative(p.lib, KindExecutionFailed, err, "", "failed to set pool no-wait mode")
	}
	return nil
}

// StatementCacheSize returns the per-session statement cache size.
func (p *ConnectionPool) StatementCacheSize() int {
	return int(p.lib.PoolStatementCacheSize(p.pool))
}

// SetStatementCacheSize sets the cache size applied to sessions as they are
// acquired.
func (p *ConnectionPool) SetStatementCacheSize(size int) error {
	if err := p.lib.PoolSetStatementCacheSize(p.pool, uint32(size)); err != nil {
		return wrapNative(p.lib, KindExecutionFailed, err, "", "failed to set statement cache size")
	}
	return nil
}

// Close frees the native pool, closing every session it opened, and
// releases the environment.
func (p *ConnectionPool) Close() error {
	if p.pool == "" {
		return nil
	}
	err := p.lib.PoolFree(p.pool)
	p.pool = ""
	envErr := p.env.Release()
	if err != nil {
		return wrapNative(p.lib, KindExecutionFailed, err, "", "failed to free pool")
	}
	return envErr
}
