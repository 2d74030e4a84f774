// Package lifecycle bridges queue events into the aretw0/lifecycle event model.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/nebula/pkg/core"
)

type queueSource struct {
	events <-chan core.Event
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits the events of a watched queue.
// core.Event satisfies lifecycle.Event through its String method.
func NewSource(events <-chan core.Event) lifecycle.Source {
	return &queueSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *queueSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start forwards events until the upstream channel closes or ctx is done.
func (s *queueSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
