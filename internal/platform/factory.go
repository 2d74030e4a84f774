package platform

import (
	"context"
	"time"

	"github.com/aretw0/nebula/pkg/core"
)

// New wires a repository, notary, codec and cache into a core.Service.
//
//	svc, err := nebula.New("./vault", nebula.WithKeyFile("./vault/.nebula/notary.key"))
//
// The URI argument is adapter-specific (see Init).
func New(uri string, opts ...Option) (*core.Service, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	n, err := loadNotary(o)
	if err != nil {
		return nil, err
	}

	repo, err := initRepository(context.Background(), uri, o)
	if err != nil {
		return nil, err
	}

	cache := core.NewCache(o.cacheCapacity)
	serviceOpts := []core.ServiceOption{core.WithCache(cache)}
	if o.logger != nil {
		serviceOpts = append(serviceOpts, core.WithServiceLogger(o.logger))
	}
	if o.metrics != nil {
		serviceOpts = append(serviceOpts, core.WithObserver(o.metrics))
	}
	if poll, ok := o.config["poll_interval"].(time.Duration); ok && poll > 0 {
		serviceOpts = append(serviceOpts, core.WithPollInterval(poll))
	}
	if readOnly, _ := o.config["read_only"].(bool); readOnly {
		serviceOpts = append(serviceOpts, core.WithServiceReadOnly(true))
	}

	return core.NewService(repo, n, o.codec, serviceOpts...), nil
}
