package oracle

import (
	"log/slog"

	"github.com/tomyedwab/ocidb/oci"
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	}
	return "closed"
}

// ConnectionConfig holds configuration options for a standalone connection.
type ConnectionConfig struct {
	Service     ServiceLocator
	User        string
	Password    string
	SysDBA      bool
	Environment *Environment // Optional, defaults to DefaultEnvironment()
	Logger      *slog.Logger // Optional, defaults to slog.Default()
}

// Connection is a standalone session owning one native connection handle.
type Connection struct {
	session

	config ConnectionConfig
	env    *Environment
	state  State
	err    error
}

// NewConnection returns an unopened connection. Call Open to log on.
func NewConnection(config ConnectionConfig) *Connection {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Connection{
		config:  config,
		session: session{logger: config.Logger},
	}
}

// Open logs on. A failed logon leaves the connection in StateFailed and
// returns the native error.
func (c *Connection) Open() error {
	if c.state == StateOpen {
		return nil
	}
	if err := c.open(); err != nil {
		c.state = StateFailed
		c.err = err
		return err
	}
	c.state = StateOpen
	c.err = nil
	return nil
}

func (c *Connection) open() error {
	env, err := resolveEnvironment(c.config.Environment)
	if err != nil {
		return err
	}
	if err := env.Acquire(); err != nil {
		return err
	}

	mode := oci.SessionDefault
	if c.config.SysDBA {
		mode = oci.SessionSysDBA
	}
	service := c.config.Service.String()
	lib := env.Library()
	conn, err := lib.ConnectionCreate(service, c.config.User, c.config.Password, mode)
	if err != nil {
		env.Release()
		c.logger.Error("Failed to open connection", "service", service, "user", c.config.User, "error", err)
		return wrapNative(lib, KindExecutionFailed, err, "", "failed to connect to %s", service)
	}
	c.env = env
	c.lib = lib
	c.conn = conn
	c.logger.Debug("Connection opened", "service", service, "user", c.config.User)
	return nil
}

// Close frees the connection handle and releases the environment. Closing
// a closed connection is a no-op.
func (c *Connection) Close() error {
	if c.conn == "" {
		return nil
	}
	err := c.lib.ConnectionFree(c.conn)
	c.conn = ""
	c.state = StateClosed
	envErr := c.env.Release()
	c.env = nil
	if err != nil {
		return wrapNative(c.lib, KindExecutionFailed, err, "", "failed to close connection")
	}
	return envErr
}

func (c *Connection) State() State {
	return c.state
}

// Err returns the error that moved the connection to StateFailed.
func (c *Connection) Err() error {
	return c.err
}

// Connected reports whether the native session is alive.
func (c *Connection) Connected() bool {
	if c.conn == "" {
		return false
	}
	return c.lib.IsConnected(c.conn)
}

// TransactionCreate starts an explicit transaction: autocommit is turned
// off so later statements accumulate until Commit or Rollback.
func (c *Connection) TransactionCreate() error {
	if c.conn == "" {
		return ErrNotExecuted
	}
	return c.SetAutoCommit(false)
}
