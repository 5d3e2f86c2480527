package oracle

import (
	"log/slog"

	"github.com/tomyedwab/ocidb/oci"
)

// FormatKind selects the conversion format changed by SetFormat.
type FormatKind = oci.FormatKind

const (
	FormatDate      = oci.FormatDate
	FormatTimestamp = oci.FormatTimestamp
	FormatNumeric   = oci.FormatNumeric
)

// Session is the surface shared by standalone and pooled connections.
type Session interface {
	Cursor() (*Cursor, error)
	AutoCommit() bool
	SetAutoCommit(enable bool) error
	Commit() error
	Rollback() error
	Ping() bool
	Break() error
	SetFormat(kind FormatKind, format string) error
	Format(kind FormatKind) string
	ServerVersion() string
	Enqueue(queue, payloadType string, opts ...EnqueueOption) (string, error)
	Dequeue(queue, payloadType string) (*Message, error)

	base() *session
}

// session wraps one native connection handle. The handle is empty when
// the owner is closed or released.
type session struct {
	lib    oci.Library
	conn   oci.Conn
	logger *slog.Logger
}

func (s *session) base() *session {
	return s
}

func (s *session) handle() (oci.Conn, error) {
	if s.conn == "" {
		return "", ErrNotConnected
	}
	return s.conn, nil
}

// Cursor creates a statement on the session. The cursor must be closed by
// the caller.
func (s *session) Cursor() (*Cursor, error) {
	conn, err := s.handle()
	if err != nil {
		return nil, err
	}
	return newCursor(s.lib, conn, s.logger)
}

func (s *session) AutoCommit() bool {
	if s.conn == "" {
		return false
	}
	return s.lib.AutoCommit(s.conn)
}

func (s *session) SetAutoCommit(enable bool) error {
	conn, err := s.handle()
	if err != nil {
		return err
	}
	if err := s.lib.SetAutoCommit(conn, enable); err != nil {
		return wrapNative(s.lib, KindExecutionFailed, err, "", "failed to set autocommit")
	}
	return nil
}

func (s *session) Commit() error {
	conn, err := s.handle()
	if err != nil {
		return err
	}
	if err := s.lib.Commit(conn); err != nil {
		return wrapNative(s.lib, KindExecutionFailed, err, "", "commit failed")
	}
	return nil
}

func (s *session) Rollback() error {
	conn, err := s.handle()
	if err != nil {
		return err
	}
	if err := s.lib.Rollback(conn); err != nil {
		return wrapNative(s.lib, KindExecutionFailed, err, "", "rollback failed")
	}
	return nil
}

// Ping checks the session is alive with a server round trip.
func (s *session) Ping() bool {
	if s.conn == "" {
		return false
	}
	return s.lib.Ping(s.conn)
}

// Break interrupts the call currently running on the session. It may be
// called from any goroutine.
func (s *session) Break() error {
	conn, err := s.handle()
	if err != nil {
		return err
	}
	if err := s.lib.Break(conn); err != nil {
		return wrapNative(s.lib, KindExecutionFailed, err, "", "break failed")
	}
	return nil
}

// SetFormat changes the format used when dates, timestamps or numbers are
// read as strings.
func (s *session) SetFormat(kind FormatKind, format string) error {
	conn, err := s.handle()
	if err != nil {
		return err
	}
	if err := s.lib.SetFormat(conn, kind, format); err != nil {
		return wrapNative(s.lib, KindExecutionFailed, err, "", "failed to set format")
	}
	return nil
}

func (s *session) Format(kind FormatKind) string {
	if s.conn == "" {
		return ""
	}
	return s.lib.Format(s.conn, kind)
}

func (s *session) ServerVersion() string {
	if s.conn == "" {
		return ""
	}
	return s.lib.ServerVersion(s.conn)
}
