package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/metrics"
)

// options holds the internal configuration for the Nebula service.
type options struct {
	repository    core.Repository
	logger        *slog.Logger
	adapter       string
	notary        core.Notary
	codec         core.Codec
	metrics       *metrics.Collector
	cacheCapacity int
	config        map[string]interface{}
}

// Option defines a functional option for configuring Nebula.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter:       "fs",
		codec:         codec.New(),
		cacheCapacity: core.DefaultCacheCapacity,
		config:        make(map[string]interface{}),
	}
}

// WithLogger sets the logger for the service and its repository.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRepository allows injecting a custom storage adapter.
// If provided, the adapter selected by WithAdapter is skipped.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithAdapter selects the storage adapter by name: "fs", "memory" or "remote".
// Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithNotary sets the notary used to sign commits and verify seals.
func WithNotary(n core.Notary) Option {
	return func(o *options) {
		o.notary = n
	}
}

// WithKeyFile loads the notary from a key file written by `nebula init`.
// It is ignored when WithNotary is also given.
func WithKeyFile(path string) Option {
	return func(o *options) {
		o.config["key_file"] = path
	}
}

// WithCodec overrides the document codec. Defaults to the YAML codec.
func WithCodec(c core.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithCacheCapacity sets the number of validated documents kept in memory.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
	}
}

// WithMetrics registers a Prometheus collector as the service observer.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithTimeout bounds every request made by the remote adapter.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config["timeout"] = d
	}
}

// WithPollInterval sets how often AwaitMessage polls a queue that cannot be watched.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.config["poll_interval"] = d
	}
}

// WithSystemDir allows specifying the hidden directory name (e.g. ".nebula").
// Defaults to ".nebula" if not set (handled by adapter).
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithMustExist ensures the repository directory must already exist.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithWatcherErrorHandler registers a callback for errors raised while watching queues.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithReadOnly enables read-only mode.
// In this mode:
// 1. Every write returns ErrReadOnly.
// 2. The repository layout is not created.
// 3. Dev Safety is BYPASSED (uses real path).
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithDevSafety controls the sandbox used when running via `go run`.
// By default (true), Nebula forces a temporary directory to prevent accidental data loss.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}
