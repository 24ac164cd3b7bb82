package node

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages capabilities for different node types. Registration
// normally happens once at startup; lookups are safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry creates a new empty capability registry
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
	}
}

// Register registers a capability under its manifest type. Registering the
// same type twice replaces the previous capability.
func (r *Registry) Register(capability Capability) {
	nodeType := capability.Manifest().Type
	r.mu.Lock()
	r.capabilities[nodeType] = capability
	r.mu.Unlock()
}

// Get returns the capability for a node type
func (r *Registry) Get(nodeType string) (Capability, error) {
	r.mu.RLock()
	capability, ok := r.capabilities[nodeType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no capability registered for node type: %s", nodeType)
	}
	return capability, nil
}

// Has checks if a capability exists for a node type
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	_, ok := r.capabilities[nodeType]
	r.mu.RUnlock()
	return ok
}

// Types returns all registered node types in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.capabilities))
	for nodeType := range r.capabilities {
		types = append(types, nodeType)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}
