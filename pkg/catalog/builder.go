package catalog

import (
	"fmt"
	"time"

	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
	"go.uber.org/zap"
)

// Builder produces catalog snapshots from the capability registry. Each build
// iterates every registered capability, extracts its declarative manifest and
// accumulates validated definitions into a new catalog. A malformed manifest
// is skipped with a recorded reason; it never aborts the build.
type Builder struct {
	registry *node.Registry
	store    *Store
	logger   *zap.Logger
}

// NewBuilder creates a catalog builder over the given capability registry.
// Built catalogs are installed into the given store.
func NewBuilder(registry *node.Registry, store *Store, logger *zap.Logger) (*Builder, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Builder{registry: registry, store: store, logger: logger}, nil
}

// Build performs a full rebuild. The previous catalog stays live and fully
// queryable until the new one is completely constructed; installation is a
// single pointer swap. Manifest extraction runs no node code and touches no
// credentials.
func (b *Builder) Build() *Catalog {
	start := time.Now()

	built := &Catalog{
		nodes:   make(map[string]NodeDefinition),
		builtAt: time.Now().UTC(),
	}

	for _, nodeType := range b.registry.Types() {
		capability, err := b.registry.Get(nodeType)
		if err != nil {
			// Type list and lookup race only if something deregisters mid-build;
			// record it the same way as a malformed manifest
			built.skipped = append(built.skipped, SkippedNode{NodeType: nodeType, Reason: err.Error()})
			continue
		}

		manifest := capability.Manifest()
		def, err := definitionFromManifest(manifest)
		if err != nil {
			b.logger.Warn("Skipping node definition",
				zap.String("nodeType", nodeType),
				zap.Error(err))
			built.skipped = append(built.skipped, SkippedNode{NodeType: nodeType, Reason: err.Error()})
			continue
		}

		built.nodes[def.Type] = def
	}

	b.store.swap(built)

	b.logger.Info("Catalog build complete",
		zap.Int("nodes", built.Size()),
		zap.Int("skipped", len(built.skipped)),
		zap.Duration("duration", time.Since(start)))

	return built
}

// definitionFromManifest validates a declarative manifest and converts it
// into an immutable node definition.
func definitionFromManifest(m node.Manifest) (NodeDefinition, error) {
	if m.Type == "" {
		return NodeDefinition{}, fmt.Errorf("manifest has no type")
	}
	if len(m.Operations) == 0 {
		return NodeDefinition{}, fmt.Errorf("manifest for %q declares no operations", m.Type)
	}
	for i, field := range m.AuthFields {
		if field == "" {
			return NodeDefinition{}, fmt.Errorf("manifest for %q has an empty auth field at index %d", m.Type, i)
		}
	}

	displayName := m.DisplayName
	if displayName == "" {
		displayName = m.Type
	}

	def := NodeDefinition{
		Type:        m.Type,
		DisplayName: displayName,
		Category:    m.Category,
		AuthFields:  append([]string(nil), m.AuthFields...),
		Operations:  make(map[string]OperationSpec, len(m.Operations)),
		SerialOnly:  m.SerialOnly,
	}

	for _, op := range m.Operations {
		if op.Name == "" {
			return NodeDefinition{}, fmt.Errorf("manifest for %q declares an operation with no name", m.Type)
		}
		if _, dup := def.Operations[op.Name]; dup {
			return NodeDefinition{}, fmt.Errorf("manifest for %q declares operation %q twice", m.Type, op.Name)
		}
		if err := validateParams(m.Type, op.Name, op.RequiredParams); err != nil {
			return NodeDefinition{}, err
		}
		if err := validateParams(m.Type, op.Name, op.OptionalParams); err != nil {
			return NodeDefinition{}, err
		}
		for name := range op.OptionalParams {
			if _, overlap := op.RequiredParams[name]; overlap {
				return NodeDefinition{}, fmt.Errorf(
					"manifest for %q operation %q declares parameter %q as both required and optional",
					m.Type, op.Name, name)
			}
		}
		if op.RequiresAuth && len(m.AuthFields) == 0 {
			return NodeDefinition{}, fmt.Errorf(
				"manifest for %q operation %q requires auth but the node declares no auth fields",
				m.Type, op.Name)
		}

		opDisplay := op.DisplayName
		if opDisplay == "" {
			opDisplay = op.Name
		}
		def.Operations[op.Name] = OperationSpec{
			Name:           op.Name,
			DisplayName:    opDisplay,
			Description:    op.Description,
			RequiredParams: copyParams(op.RequiredParams),
			OptionalParams: copyParams(op.OptionalParams),
			RequiresAuth:   op.RequiresAuth,
		}
	}

	return def, nil
}

func validateParams(nodeType, operation string, params map[string]schema.SchemaType) error {
	for name, t := range params {
		if name == "" {
			return fmt.Errorf("manifest for %q operation %q declares a parameter with no name", nodeType, operation)
		}
		if !schema.IsValidType(t) {
			return fmt.Errorf("manifest for %q operation %q parameter %q has invalid type %q",
				nodeType, operation, name, t)
		}
	}
	return nil
}

func copyParams(params map[string]schema.SchemaType) map[string]schema.SchemaType {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]schema.SchemaType, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
