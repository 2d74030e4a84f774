package nebula

import (
	"log/slog"
	"time"

	"github.com/aretw0/nebula/internal/platform"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/metrics"
	"github.com/aretw0/nebula/pkg/typed"
)

// --- Types ---

// DocumentModel is a public alias for the typed document model.
type DocumentModel[T any] = typed.DocumentModel[T]

// TypedService is a public alias for the typed service.
type TypedService[T any] = typed.Service[T]

// Config is the on-disk configuration read from nebula.yaml.
type Config = platform.Config

// --- Configuration ---

// Option defines a functional option for configuring Nebula.
type Option = platform.Option

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRepository allows injecting a custom storage adapter.
func WithRepository(repo core.Repository) Option {
	return platform.WithRepository(repo)
}

// WithAdapter selects the storage adapter by name: "fs", "memory" or "remote".
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithNotary sets the notary used to sign and verify documents.
func WithNotary(n core.Notary) Option {
	return platform.WithNotary(n)
}

// WithKeyFile loads the notary from a key file.
func WithKeyFile(path string) Option {
	return platform.WithKeyFile(path)
}

// WithCodec overrides the document codec.
func WithCodec(c core.Codec) Option {
	return platform.WithCodec(c)
}

// WithCacheCapacity sets the number of validated documents kept in memory.
func WithCacheCapacity(n int) Option {
	return platform.WithCacheCapacity(n)
}

// WithMetrics registers a Prometheus collector as the service observer.
func WithMetrics(c *metrics.Collector) Option {
	return platform.WithMetrics(c)
}

// WithTimeout bounds every request made by the remote adapter.
func WithTimeout(d time.Duration) Option {
	return platform.WithTimeout(d)
}

// WithPollInterval sets how often AwaitMessage polls a queue that cannot be watched.
func WithPollInterval(d time.Duration) Option {
	return platform.WithPollInterval(d)
}

// WithReadOnly rejects every write with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithMustExist ensures the repository directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithSystemDir allows specifying the hidden directory name (e.g. ".nebula").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithDevSafety controls the sandbox used when running via `go run`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// --- Factory ---

// New creates a new Nebula Service.
func New(uri string, opts ...Option) (*core.Service, error) {
	return platform.New(uri, opts...)
}

// Init initializes a repository explicitly.
func Init(uri string, opts ...Option) (core.Repository, error) {
	return platform.Init(uri, opts...)
}

// NewTypedService creates a type-safe wrapper around an existing service.
func NewTypedService[T any](svc *core.Service) *typed.Service[T] {
	return typed.NewService[T](svc)
}

// OpenTypedService simplifies creating a TypedService from a URI.
func OpenTypedService[T any](uri string, opts ...Option) (*typed.Service[T], error) {
	svc, err := New(uri, opts...)
	if err != nil {
		return nil, err
	}
	return typed.NewService[T](svc), nil
}

// --- Safety & Utils ---

// LoadConfig reads nebula.yaml from root, falling back to defaults.
func LoadConfig(root string) (Config, error) {
	return platform.LoadConfig(root)
}

// ResolvePath determines the actual repository path based on safety rules.
func ResolvePath(userPath string, forceTemp bool) string {
	return platform.ResolvePath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindRoot returns the nearest directory at or above startDir holding .nebula or nebula.yaml.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
