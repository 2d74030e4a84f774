package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path        string     `json:"path"`
	SystemDir   string     `json:"system_dir"`
	IndexSize   int        `json:"index_size"`
	ReadOnly    bool       `json:"read_only"`
	Codec       string     `json:"codec"`
	Watchers    int        `json:"watchers"`
	LastListing *time.Time `json:"last_listing,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec := ""
	if r.codec != nil {
		codec = r.codec.MediaType()
	}

	return RepositoryState{
		Path:        r.Path,
		SystemDir:   r.config.SystemDir,
		IndexSize:   r.index.Len(),
		ReadOnly:    r.readOnly,
		Codec:       codec,
		Watchers:    r.watchers,
		LastListing: r.lastListing,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
