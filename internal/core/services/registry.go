package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/httpclient"
)

// BackendSetup carries everything a factory needs to build a backend
// for one fetch run.
type BackendSetup struct {
	// Origin identifies the source instance ("owner/repo", a URL, ...).
	Origin string

	// Tag labels emitted documents. Empty defaults to Origin.
	Tag string

	// Client is the run's network client, already configured for live
	// or replay operation.
	Client *httpclient.Client
}

// BackendFactory builds a backend from a setup.
type BackendFactory func(setup BackendSetup) (driven.Backend, error)

// BackendRegistry is an explicit registration table mapping backend
// names to factories. Backends register at program start; there is no
// runtime discovery.
type BackendRegistry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

// NewBackendRegistry creates an empty registry.
func NewBackendRegistry() *BackendRegistry {
	return &BackendRegistry{
		factories: make(map[string]BackendFactory),
	}
}

// Register adds a factory under a name. Re-registering a name replaces
// the previous factory.
func (r *BackendRegistry) Register(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create builds a backend by name.
func (r *BackendRegistry) Create(name string, setup BackendSetup) (driven.Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, name)
	}
	return factory(setup)
}

// Names returns the registered backend names, sorted.
func (r *BackendRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
