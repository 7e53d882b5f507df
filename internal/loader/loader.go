// Package loader turns knowledge descriptors into raw documents. Loader
// implementations are selected by source type through a static registry
// populated at start-up; there is no runtime discovery.
package loader

import (
	"context"

	"github.com/burrow-ai/burrow/internal/domain"
)

// Loader fetches the raw documents behind a knowledge descriptor.
type Loader interface {
	Load(ctx context.Context, k *domain.Knowledge) ([]*domain.Document, error)
}

// Lister is implemented by loaders for container sources (e.g. a repository):
// it discovers the individual items the container currently holds. Discovered
// items carry the container's KnowledgeID as their ParentID and a content
// identity (FileSHA) for reconciliation.
type Lister interface {
	ListItems(ctx context.Context, k *domain.Knowledge) ([]*domain.Knowledge, error)
}

// Registry maps source types to loader implementations. It is populated by
// explicit Register calls from the composition root and read-only afterwards.
type Registry struct {
	loaders map[domain.KnowledgeSourceType]Loader
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[domain.KnowledgeSourceType]Loader),
	}
}

// Register binds a loader to a source type, replacing any previous binding.
func (r *Registry) Register(sourceType domain.KnowledgeSourceType, l Loader) {
	r.loaders[sourceType] = l
}

// Loader returns the loader registered for the source type.
func (r *Registry) Loader(sourceType domain.KnowledgeSourceType) (Loader, bool) {
	l, ok := r.loaders[sourceType]
	return l, ok
}

// Lister returns the registered loader for the source type if it can discover
// container items.
func (r *Registry) Lister(sourceType domain.KnowledgeSourceType) (Lister, bool) {
	l, ok := r.loaders[sourceType]
	if !ok {
		return nil, false
	}
	lister, ok := l.(Lister)
	return lister, ok
}
