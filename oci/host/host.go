package host

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/tomyedwab/ocidb/oci"
)

const (
	defaultStatementCacheSize = 20
	defaultBusyTimeout        = 5 * time.Second
)

var _ oci.Library = (*Host)(nil)

// Config holds configuration options for a Host.
type Config struct {
	// DataSource is the SQLite database file backing the host.
	DataSource string
	// Services lists the service names accepted in connect strings. Empty
	// accepts any service.
	Services []string
	// Secret signs session tokens. Optional, a random key is generated when
	// empty.
	Secret []byte
	// SessionTTL bounds the lifetime of a session token; Ping reports
	// expired sessions as dead. Optional, zero means no expiry.
	SessionTTL time.Duration
	// StatementCacheSize is the per-session prepared statement cache size
	// for standalone connections. Optional, defaults to 20.
	StatementCacheSize uint32
	// BusyTimeout is how long a session waits on a locked database.
	// Optional, defaults to 5s.
	BusyTimeout time.Duration
	Logger      *slog.Logger // Optional, defaults to slog.Default()
}

// Host is an in-process oci.Library backed by SQLite.
type Host struct {
	db          *sqlx.DB // catalog and bootstrap access
	dsn         string
	services    map[string]bool
	secret      []byte
	sessionTTL  time.Duration
	cacheSize   uint32
	logger      *slog.Logger
	initialized atomic.Bool
	initCount   atomic.Int32

	handles cmap.ConcurrentMap[string, any]

	mu       sync.Mutex // guards sessions and pools
	sessions map[*session]struct{}
	pools    map[*pool]struct{}
}

// New creates a Host and initializes its catalog schema.
func New(config Config) (*Host, error) {
	if config.DataSource == "" {
		return nil, errors.New("host: DataSource is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	secret := config.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Wrap(err, "host: failed to generate session secret")
		}
	}

	cacheSize := config.StatementCacheSize
	if cacheSize == 0 {
		cacheSize = defaultStatementCacheSize
	}

	busyTimeout := config.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = defaultBusyTimeout
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=1",
		config.DataSource, busyTimeout.Milliseconds())
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "host: failed to open %s", config.DataSource)
	}
	if err := DBInit(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "host: failed to initialize catalog")
	}

	services := make(map[string]bool, len(config.Services))
	for _, s := range config.Services {
		services[normalizeName(s)] = true
	}

	return &Host{
		db:         db,
		dsn:        dsn,
		services:   services,
		secret:     secret,
		sessionTTL: config.SessionTTL,
		cacheSize:  cacheSize,
		logger:     logger,
		handles:    cmap.New[any](),
		sessions:   make(map[*session]struct{}),
		pools:      make(map[*pool]struct{}),
	}, nil
}

// Close releases every handle and closes the catalog database.
func (h *Host) Close() error {
	h.freeAll()
	return h.db.Close()
}

// DB returns the catalog database handle.
func (h *Host) DB() *sqlx.DB {
	return h.db
}

// InitCount reports how many times Initialize succeeded.
func (h *Host) InitCount() int {
	return int(h.initCount.Load())
}

// HandleCount reports the number of live handles.
func (h *Host) HandleCount() int {
	return h.handles.Count()
}

func (h *Host) Initialize(mode oci.EnvMode) error {
	if !h.initialized.CompareAndSwap(false, true) {
		return driverError(drvAlreadyInitialized, "environment already initialized")
	}
	h.initCount.Inc()
	h.logger.Debug("OCI environment initialized", "threaded", mode&oci.EnvThreaded != 0)
	return nil
}

func (h *Host) Cleanup() error {
	if !h.initialized.CompareAndSwap(true, false) {
		return driverError(drvNotInitialized, "environment not initialized")
	}
	h.freeAll()
	h.logger.Debug("OCI environment cleaned up")
	return nil
}

func (h *Host) freeAll() {
	h.mu.Lock()
	pools := make([]*pool, 0, len(h.pools))
	for p := range h.pools {
		pools = append(pools, p)
	}
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		if s.pool == nil {
			sessions = append(sessions, s)
		}
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	for _, p := range pools {
		p.free()
	}
	h.handles.Clear()
}

// register stores obj under a fresh handle.
func (h *Host) register(obj any) string {
	id := uuid.NewString()
	h.handles.Set(id, obj)
	return id
}

func (h *Host) unregister(id string) {
	h.handles.Remove(id)
}

func lookup[T any](h *Host, id string, what string) (T, error) {
	var zero T
	if !h.initialized.Load() {
		return zero, driverError(drvNotInitialized, "environment not initialized")
	}
	if id == "" {
		return zero, driverError(drvNullHandle, "%s handle is null", what)
	}
	v, ok := h.handles.Get(id)
	if !ok {
		return zero, driverError(drvInvalidHandle, "invalid %s handle %s", what, id)
	}
	obj, ok := v.(T)
	if !ok {
		return zero, driverError(drvInvalidHandle, "handle %s is not a %s", id, what)
	}
	return obj, nil
}
