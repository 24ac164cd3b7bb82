// Package catalog builds and serves the registry of all known node types and
// their operations. A catalog is an immutable snapshot: it is constructed in
// full by a build, then swapped in with a single atomic pointer assignment so
// concurrent readers never observe a half-built catalog.
package catalog

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/schema"
)

// OperationSpec describes one callable capability of a node.
type OperationSpec struct {
	Name           string                       `json:"name"`
	DisplayName    string                       `json:"displayName"`
	Description    string                       `json:"description,omitempty"`
	RequiredParams map[string]schema.SchemaType `json:"requiredParams,omitempty"`
	OptionalParams map[string]schema.SchemaType `json:"optionalParams,omitempty"`
	RequiresAuth   bool                         `json:"requiresAuth"`
}

// DeclaresParam reports whether the operation declares the named parameter,
// either required or optional.
func (o OperationSpec) DeclaresParam(name string) (schema.SchemaType, bool) {
	if t, ok := o.RequiredParams[name]; ok {
		return t, true
	}
	if t, ok := o.OptionalParams[name]; ok {
		return t, true
	}
	return "", false
}

// NodeDefinition describes one pluggable integration type. Definitions are
// immutable once produced by a build and superseded wholesale by the next.
type NodeDefinition struct {
	Type        string                   `json:"type"`
	DisplayName string                   `json:"displayName"`
	Category    string                   `json:"category"`
	AuthFields  []string                 `json:"authFields,omitempty"`
	Operations  map[string]OperationSpec `json:"operations"`
	SerialOnly  bool                     `json:"serialOnly,omitempty"`
}

// RequiresAuth reports whether the node declares any credential fields.
func (d NodeDefinition) RequiresAuth() bool {
	return len(d.AuthFields) > 0
}

// Operation returns the named operation spec.
func (d NodeDefinition) Operation(name string) (OperationSpec, error) {
	op, ok := d.Operations[name]
	if !ok {
		return OperationSpec{}, errors.Newf(errors.KindOperationNotFound,
			"node %q has no operation %q", d.Type, name)
	}
	return op, nil
}

// SkippedNode records a node definition that was skipped during a build.
type SkippedNode struct {
	NodeType string `json:"nodeType"`
	Reason   string `json:"reason"`
}

// Catalog is an immutable snapshot of all node definitions produced by one
// build, plus the records of definitions that were skipped.
type Catalog struct {
	nodes   map[string]NodeDefinition
	skipped []SkippedNode
	builtAt time.Time
}

// Get returns the definition for a node type.
func (c *Catalog) Get(nodeType string) (NodeDefinition, error) {
	def, ok := c.nodes[nodeType]
	if !ok {
		return NodeDefinition{}, errors.Newf(errors.KindNodeNotFound,
			"node type %q is not in the catalog", nodeType)
	}
	return def, nil
}

// Has reports whether a node type is in the catalog.
func (c *Catalog) Has(nodeType string) bool {
	_, ok := c.nodes[nodeType]
	return ok
}

// List returns all definitions sorted by type. An empty category returns
// everything; otherwise only nodes of that category are returned.
func (c *Catalog) List(category string) []NodeDefinition {
	defs := make([]NodeDefinition, 0, len(c.nodes))
	for _, def := range c.nodes {
		if category != "" && def.Category != category {
			continue
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}

// Size returns the number of node definitions in the catalog.
func (c *Catalog) Size() int {
	return len(c.nodes)
}

// Skipped returns the partial-failure records of the build that produced this
// catalog.
func (c *Catalog) Skipped() []SkippedNode {
	out := make([]SkippedNode, len(c.skipped))
	copy(out, c.skipped)
	return out
}

// BuiltAt returns the time the catalog was constructed.
func (c *Catalog) BuiltAt() time.Time {
	return c.builtAt
}

// Store holds the live catalog snapshot. Reads are lock-free; a build
// replaces the snapshot with a single atomic swap.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store holding an empty catalog, so the store is fully
// queryable before the first build.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Catalog{
		nodes:   map[string]NodeDefinition{},
		builtAt: time.Now().UTC(),
	})
	return s
}

// Snapshot returns the current catalog. The returned catalog is immutable and
// remains valid after subsequent builds.
func (s *Store) Snapshot() *Catalog {
	return s.current.Load()
}

// Get returns the definition for a node type from the current snapshot.
func (s *Store) Get(nodeType string) (NodeDefinition, error) {
	return s.Snapshot().Get(nodeType)
}

// swap installs a freshly built catalog as the live snapshot.
func (s *Store) swap(c *Catalog) {
	s.current.Store(c)
}
