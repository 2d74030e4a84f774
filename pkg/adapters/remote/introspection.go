package remote

import (
	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	URL      string `json:"url"`
	Timeout  string `json:"timeout"`
	Breaker  string `json:"breaker"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"consecutive_failures"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	counts := r.breaker.Counts()
	return RepositoryState{
		URL:      r.base.String(),
		Timeout:  r.client.Timeout.String(),
		Breaker:  r.BreakerState(),
		Requests: counts.Requests,
		Failures: counts.ConsecutiveFailures,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "remote-repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
