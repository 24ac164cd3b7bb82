// Package node defines the capability abstraction for pluggable integrations.
// A node ships a declarative manifest describing its operations and the
// credential fields it needs; implementations are selected by registry lookup,
// never by dynamic import, so a catalog build runs no node code.
package node

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Talaria/pkg/schema"
)

// Capability is implemented once per node type. Manifest must be pure data
// with no side effects; Execute performs a single named operation.
type Capability interface {
	// Manifest returns the declarative metadata for this node type
	Manifest() Manifest

	// Execute runs one operation with validated parameters and resolved auth
	Execute(ctx context.Context, call Call) (map[string]interface{}, error)
}

// Manifest is the declarative metadata block a node ships. It is extracted by
// the catalog builder without executing any node logic.
type Manifest struct {
	// Type is the unique node type key (e.g. "strings", "httprequest")
	Type string `json:"type"`

	// DisplayName is the human-readable name of the node
	DisplayName string `json:"displayName"`

	// Category groups related nodes (e.g. "data", "network", "scripting")
	Category string `json:"category"`

	// AuthFields is the ordered list of credential field names required to
	// authenticate this node. Empty means the node needs no auth.
	AuthFields []string `json:"authFields,omitempty"`

	// Operations lists the callable capabilities of this node
	Operations []Operation `json:"operations"`

	// SerialOnly declares that the underlying implementation is not safe for
	// concurrent use; the executor serializes calls for such nodes
	SerialOnly bool `json:"serialOnly,omitempty"`
}

// Operation describes one callable capability of a node.
type Operation struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`

	// RequiredParams maps parameter name to its schema type
	RequiredParams map[string]schema.SchemaType `json:"requiredParams,omitempty"`

	// OptionalParams maps parameter name to its schema type
	OptionalParams map[string]schema.SchemaType `json:"optionalParams,omitempty"`

	// RequiresAuth marks operations that may only run on an authenticated node
	RequiresAuth bool `json:"requiresAuth"`
}

// Call is the input to a single operation execution. Params have already been
// validated and merged with signature defaults; Auth carries resolved
// credential values and must never be logged or serialized.
type Call struct {
	Operation string
	Params    map[string]interface{}
	Auth      map[string]string
}

// StringParam returns a string parameter, or the empty string if absent or
// not a string.
func (c Call) StringParam(name string) string {
	if v, ok := c.Params[name].(string); ok {
		return v
	}
	return ""
}

// NumberParam returns a numeric parameter as float64 and whether it was present.
func (c Call) NumberParam(name string) (float64, bool) {
	switch v := c.Params[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// BoolParam returns a boolean parameter, or false if absent.
func (c Call) BoolParam(name string) bool {
	if v, ok := c.Params[name].(bool); ok {
		return v
	}
	return false
}

// ErrUnknownOperation is returned by a capability dispatched an operation it
// does not implement. With a well-formed manifest the resolver rejects such
// calls first; this is the capability-side guard.
func ErrUnknownOperation(operation string) error {
	return fmt.Errorf("unknown operation %q", operation)
}
