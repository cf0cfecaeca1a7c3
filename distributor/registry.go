package distributor

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// Factory is the function signature for creating a distributor instance
// from its raw parameter record. Each adapter package provides a Factory
// that can be registered under its distributor name.
type Factory func(name string, params Params, logger watermill.LoggerAdapter) (Distributor, error)

// Registry maintains a mapping of distributor names to their factories and
// capabilities. Adapter packages register themselves using Register.
type Registry struct {
	mu           sync.RWMutex
	factories    map[string]Factory
	capabilities map[string]Capabilities
}

// DefaultRegistry is the global distributor registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new distributor registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:    make(map[string]Factory),
		capabilities: make(map[string]Capabilities),
	}
}

// Register adds a distributor factory to the registry. The name is the key
// used in session configs (e.g. "mqtt", "websocket").
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// RegisterWithCapabilities adds a distributor factory and its capabilities.
func (r *Registry) RegisterWithCapabilities(name string, factory Factory, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	r.capabilities[name] = caps
}

// GetCapabilities returns the capabilities for a registered distributor.
// Returns a zero Capabilities struct if the distributor is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build creates a distributor instance using the registered factory.
func (r *Registry) Build(name string, params Params, logger watermill.LoggerAdapter) (Distributor, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown distributor: %q (registered: %v)", name, r.Names())
	}

	return factory(name, params, logger)
}

// Names returns the list of registered distributor names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Has returns true if a distributor is registered with the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Register adds a distributor factory to the default registry.
func Register(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// RegisterWithCapabilities adds a distributor factory and its capabilities
// to the default registry.
func RegisterWithCapabilities(name string, factory Factory, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, factory, caps)
}

// Build creates a distributor using the default registry.
func Build(name string, params Params, logger watermill.LoggerAdapter) (Distributor, error) {
	return DefaultRegistry.Build(name, params, logger)
}
