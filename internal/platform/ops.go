package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/nebula/pkg/adapters/fs"
	"github.com/aretw0/nebula/pkg/adapters/memory"
	"github.com/aretw0/nebula/pkg/adapters/remote"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
)

// credentialer is implemented by notaries able to prove their identity to a server.
type credentialer interface {
	Credentials(ctx context.Context) (core.Document, error)
}

// Init initializes the repository selected by the options.
// The 'uri' argument is adapter-specific: a directory for "fs", a base URL for
// "remote", and ignored for "memory".
//
// It returns the configured core.Repository.
func Init(uri string, opts ...Option) (core.Repository, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return initRepository(context.Background(), uri, o)
}

func initRepository(ctx context.Context, uri string, o *options) (core.Repository, error) {
	if o.repository != nil {
		return o.repository, nil
	}
	var repo core.Repository
	var err error

	switch o.adapter {
	case "fs":
		repo = initFS(uri, o)
	case "memory":
		repo = memory.NewRepository()
	case "remote":
		repo, err = initRemote(uri, o)
	default:
		return nil, fmt.Errorf("%w: unknown adapter: %s", core.ErrInvalidParameter, o.adapter)
	}
	if err != nil {
		return nil, err
	}

	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// initFS handles the initialization logic for the Filesystem adapter
func initFS(path string, o *options) *fs.Repository {
	tempDir, _ := o.config["temp_dir"].(bool)
	mustExist, _ := o.config["must_exist"].(bool)
	systemDir, _ := o.config["system_dir"].(string)
	errorHandler, _ := o.config["watcher_error_handler"].(func(error))
	isReadOnly, _ := o.config["read_only"].(bool)

	devSafety := true
	if val, ok := o.config["dev_safety"].(bool); ok {
		devSafety = val
	}
	bypassSafety := isReadOnly || !devSafety

	useTemp := tempDir || (IsDevRun() && !bypassSafety)
	resolvedPath := ResolvePath(path, useTemp)

	if o.logger != nil && useTemp && resolvedPath != path {
		o.logger.Warn("running in SAFE MODE (Dev/Test)", "original_path", path, "resolved_path", resolvedPath)
	}

	return fs.NewRepository(fs.Config{
		Path:         resolvedPath,
		MustExist:    mustExist,
		ReadOnly:     isReadOnly,
		Logger:       o.logger,
		Codec:        o.codec,
		SystemDir:    systemDir,
		ErrorHandler: errorHandler,
	})
}

// initRemote builds an HTTP client adapter. Credentials are attached to every
// request when the notary can produce them.
func initRemote(uri string, o *options) (*remote.Repository, error) {
	timeout, _ := o.config["timeout"].(time.Duration)
	if _, ok := o.config["key_file"]; ok && o.notary == nil {
		if _, err := loadNotary(o); err != nil {
			return nil, err
		}
	}

	cfg := remote.Config{
		URL:     uri,
		Timeout: timeout,
		Codec:   o.codec,
		Logger:  o.logger,
	}
	if c, ok := o.notary.(credentialer); ok {
		cfg.Credentials = c.Credentials
	}
	return remote.NewRepository(cfg)
}

// loadNotary resolves the notary from the options, loading the key file if one was given.
func loadNotary(o *options) (core.Notary, error) {
	if o.notary != nil {
		return o.notary, nil
	}
	path, _ := o.config["key_file"].(string)
	if path == "" {
		return nil, fmt.Errorf("%w: a notary is required (use WithNotary or WithKeyFile)", core.ErrInvalidParameter)
	}
	n, err := notary.Load(path, o.codec)
	if err != nil {
		return nil, err
	}
	o.notary = n
	return n, nil
}
