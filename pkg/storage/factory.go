package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sgl-project/registry/pkg/logging"
)

// BackendConstructor creates a backend bound to one provider-side bucket.
type BackendConstructor func(ctx context.Context, config *Config, bucket string, logger logging.Interface) (Backend, error)

// Registry maps providers to backend constructors.
type Registry struct {
	mu        sync.RWMutex
	providers map[Provider]BackendConstructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Provider]BackendConstructor)}
}

// Register registers a backend constructor for provider. Registering the same
// provider twice is an error.
func (r *Registry) Register(provider Provider, constructor BackendConstructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[provider]; exists {
		return fmt.Errorf("storage provider %s already registered", provider)
	}
	r.providers[provider] = constructor
	return nil
}

// Create builds a backend for bucket using the constructor of config.Provider.
func (r *Registry) Create(ctx context.Context, config *Config, bucket string, logger logging.Interface) (Backend, error) {
	r.mu.RLock()
	constructor, exists := r.providers[config.Provider]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported storage provider: %s", config.Provider)
	}
	return constructor(ctx, config, bucket, logger)
}

// Providers returns the registered providers in sorted order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]Provider, 0, len(r.providers))
	for p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry that backend packages
// register themselves with from init.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// MustRegister registers a backend constructor with the default registry and
// panics on a duplicate.
func MustRegister(provider Provider, constructor BackendConstructor) {
	if err := defaultRegistry.Register(provider, constructor); err != nil {
		panic(err)
	}
}
