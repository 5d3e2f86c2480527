package oracle

import (
	"log/slog"
	"sync"

	"go.uber.org/atomic"

	"github.com/tomyedwab/ocidb/oci"
)

// Environment owns the process-wide initialization of a native library.
// The library is initialized when the first reference is acquired and torn
// down when the last one is released.
type Environment struct {
	lib    oci.Library
	logger *slog.Logger

	mu   sync.Mutex
	refs atomic.Int32
}

// EnvironmentOption configures an Environment.
type EnvironmentOption func(*Environment)

// WithLogger sets the logger used by the environment. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) EnvironmentOption {
	return func(e *Environment) {
		e.logger = logger
	}
}

// NewEnvironment wraps lib. The library is initialized on the first Acquire.
func NewEnvironment(lib oci.Library, opts ...EnvironmentOption) *Environment {
	e := &Environment{
		lib:    lib,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Library returns the native library behind the environment.
func (e *Environment) Library() oci.Library {
	return e.lib
}

// Refs returns the number of outstanding references.
func (e *Environment) Refs() int {
	return int(e.refs.Load())
}

// Acquire takes a reference, initializing the library in threaded mode on
// the first one.
func (e *Environment) Acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs.Load() == 0 {
		if err := e.lib.Initialize(oci.EnvThreaded); err != nil {
			e.logger.Error("Failed to initialize OCI environment", "error", err)
			return wrapNative(e.lib, KindEnvironment, err, "", "failed to initialize environment")
		}
		e.logger.Debug("OCI environment initialized")
	}
	e.refs.Inc()
	return nil
}

// Release drops a reference, cleaning up the library when none remain.
func (e *Environment) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs.Load() == 0 {
		return newError(KindEnvironment, "environment released more times than acquired")
	}
	if e.refs.Dec() > 0 {
		return nil
	}
	if err := e.lib.Cleanup(); err != nil {
		e.logger.Error("Failed to clean up OCI environment", "error", err)
		return wrapNative(e.lib, KindEnvironment, err, "", "failed to clean up environment")
	}
	e.logger.Debug("OCI environment cleaned up")
	return nil
}

var (
	defaultMu  sync.Mutex
	defaultEnv *Environment
)

// SetDefaultLibrary installs the library used by connections and pools
// created without an explicit Environment.
func SetDefaultLibrary(lib oci.Library) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEnv = NewEnvironment(lib)
}

// DefaultEnvironment returns the process default environment, or nil when no
// library has been installed.
func DefaultEnvironment() *Environment {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultEnv
}

func resolveEnvironment(env *Environment) (*Environment, error) {
	if env != nil {
		return env, nil
	}
	if env = DefaultEnvironment(); env == nil {
		return nil, newError(KindEnvironment, "no native library configured")
	}
	return env, nil
}
