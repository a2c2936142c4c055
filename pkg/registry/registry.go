// Package registry maps namespaced node type identifiers to executor factories.
//
// The registry is built once at process start and is read-only during run
// execution; registration takes a write lock and is not expected mid-run.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/loomworks/loom/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Registry holds node executor factories keyed by type identifier.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[string]protocol.NodeFactory
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.NodeFactory),
	}
}

// Register adds a node factory. A duplicate type identifier replaces the
// previous registration.
func (r *Registry) Register(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
}

// Create builds an executor for the given node type. An unregistered type is
// a dispatch error, recorded as the node's own failure by the scheduler.
func (r *Registry) Create(nodeType string, config map[string]any) (protocol.NodeExecutor, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("node type %q not registered", nodeType)
	}

	return factory.Create(config)
}

// Lookup returns the factory for a node type.
func (r *Registry) Lookup(nodeType string) (protocol.NodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[nodeType]

	return factory, ok
}

// Types returns all registered type identifiers, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for id := range r.factories {
		types = append(types, id)
	}

	sort.Strings(types)

	return types
}

// ValidateParameters checks raw node parameters against the factory's JSON
// schema. Unregistered types pass: they fail at dispatch time instead, so a
// definition can be authored before its backend ships.
func (r *Registry) ValidateParameters(nodeType string, parameters map[string]any) error {
	factory, ok := r.Lookup(nodeType)
	if !ok {
		return nil
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(parameters),
	)
	if err != nil {
		return fmt.Errorf("schema validation for %q: %w", nodeType, err)
	}

	if !result.Valid() {
		msg := ""
		for _, desc := range result.Errors() {
			if msg != "" {
				msg += "; "
			}

			msg += desc.String()
		}

		return fmt.Errorf("invalid parameters for %q: %s", nodeType, msg)
	}

	return nil
}

// HealthCheck reports registry readiness for the health endpoint.
func (r *Registry) HealthCheck() (map[string]any, bool) {
	r.mu.RLock()
	count := len(r.factories)
	r.mu.RUnlock()

	return map[string]any{
		"status":     "ok",
		"node_types": count,
	}, count > 0
}
