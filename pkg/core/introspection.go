package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	RepositoryType string `json:"repository_type"`
	CacheSize      int    `json:"cache_size"`
	CacheCapacity  int    `json:"cache_capacity"`
	ReadOnly       bool   `json:"read_only"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repoType := "unknown"
	if s.repo != nil {
		repoType = "repository"
		// Try to get component type if repository implements introspection.Component
		if comp, ok := s.repo.(introspection.Component); ok {
			repoType = comp.ComponentType()
		}
	}

	return ServiceState{
		RepositoryType: repoType,
		CacheSize:      s.cache.Len(),
		CacheCapacity:  s.cache.Capacity(),
		ReadOnly:       s.readOnly,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

// CacheState exposes the resident keys of a Cache.
type CacheState struct {
	Capacity int      `json:"capacity"`
	Keys     []string `json:"keys"`
}

// State implements introspection.Introspectable.
func (c *Cache) State() any {
	return CacheState{Capacity: c.Capacity(), Keys: c.Keys()}
}

// ComponentType implements introspection.Component.
func (c *Cache) ComponentType() string {
	return "cache"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
var _ introspection.Introspectable = (*Cache)(nil)
var _ introspection.Component = (*Cache)(nil)
