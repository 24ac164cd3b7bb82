package gateway

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/wehubfusion/Talaria/pkg/catalog"
	sdkerrors "github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/schema"
	"github.com/wehubfusion/Talaria/pkg/signature"
)

// registerTools declares every gateway tool with its input schema.
func (g *Gateway) registerTools() {
	nodeTypeArg := map[string]*schema.Property{
		"nodeType": {Type: schema.TypeString, Required: true},
	}
	nodeTypeAndOperation := map[string]*schema.Property{
		"nodeType":  {Type: schema.TypeString, Required: true},
		"operation": {Type: schema.TypeString, Required: true},
	}
	callArgs := map[string]*schema.Property{
		"nodeType":  {Type: schema.TypeString, Required: true},
		"operation": {Type: schema.TypeString, Required: true},
		"params":    {Type: schema.TypeObject},
	}

	g.register(&Tool{
		Name:        "list_available_nodes",
		Description: "Lists catalog node definitions, optionally filtered by category",
		InputSchema: schema.ObjectOf(map[string]*schema.Property{
			"category": {Type: schema.TypeString},
		}),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			category, _ := args["category"].(string)
			return g.catalog.Snapshot().List(category), nil
		},
	})

	g.register(&Tool{
		Name:        "get_node_info",
		Description: "Returns the full definition of one node type",
		InputSchema: schema.ObjectOf(nodeTypeArg),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return g.catalog.Get(stringArg(args, "nodeType"))
		},
	})

	g.register(&Tool{
		Name:        "list_node_operations",
		Description: "Lists the operations of one node type",
		InputSchema: schema.ObjectOf(nodeTypeArg),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			def, err := g.catalog.Get(stringArg(args, "nodeType"))
			if err != nil {
				return nil, err
			}
			return sortedOperations(def), nil
		},
	})

	g.register(&Tool{
		Name:        "get_operation_details",
		Description: "Returns the spec of one operation including its parameter schema",
		InputSchema: schema.ObjectOf(nodeTypeAndOperation),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			def, err := g.catalog.Get(stringArg(args, "nodeType"))
			if err != nil {
				return nil, err
			}
			return def.Operation(stringArg(args, "operation"))
		},
	})

	g.register(&Tool{
		Name:        "get_signature_info",
		Description: "Returns one signature entry, or all entries when nodeType is omitted",
		InputSchema: schema.ObjectOf(map[string]*schema.Property{
			"nodeType": {Type: schema.TypeString},
		}),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if nodeType, _ := args["nodeType"].(string); nodeType != "" {
				return g.signature.Entry(nodeType)
			}
			return g.signature.Entries(), nil
		},
	})

	g.register(&Tool{
		Name:        "add_node_to_signature",
		Description: "Adds a node to the signature with auth material and optional parameter defaults",
		InputSchema: schema.ObjectOf(map[string]*schema.Property{
			"nodeType": {Type: schema.TypeString, Required: true},
			"auth":     {Type: schema.TypeObject},
			"defaults": {Type: schema.TypeObject},
		}),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			auth, err := authValuesArg(args, "auth")
			if err != nil {
				return nil, err
			}
			return g.signature.AddNode(stringArg(args, "nodeType"), auth, objectArg(args, "defaults"))
		},
	})

	g.register(&Tool{
		Name:        "remove_node_from_signature",
		Description: "Removes a node from the signature; removing an absent node succeeds",
		InputSchema: schema.ObjectOf(nodeTypeArg),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			nodeType := stringArg(args, "nodeType")
			if err := g.signature.RemoveNode(nodeType); err != nil {
				return nil, err
			}
			return map[string]interface{}{"removed": nodeType}, nil
		},
	})

	g.register(&Tool{
		Name:        "update_node_defaults",
		Description: "Replaces the stored parameter defaults of a signature entry",
		InputSchema: schema.ObjectOf(map[string]*schema.Property{
			"nodeType": {Type: schema.TypeString, Required: true},
			"defaults": {Type: schema.TypeObject, Required: true},
		}),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return g.signature.UpdateDefaults(stringArg(args, "nodeType"), objectArg(args, "defaults"))
		},
	})

	g.register(&Tool{
		Name:        "execute_node_operation",
		Description: "Resolves and executes one operation, returning a structured result",
		InputSchema: schema.ObjectOf(callArgs),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			call, err := g.resolver.Resolve(
				stringArg(args, "nodeType"),
				stringArg(args, "operation"),
				objectArg(args, "params"))
			if err != nil {
				return nil, err
			}
			// Execution failures come back inside the result, not as an error
			return g.executor.Execute(ctx, call), nil
		},
	})

	g.register(&Tool{
		Name:        "validate_params",
		Description: "Validates parameters against an operation's schema without executing",
		InputSchema: schema.ObjectOf(callArgs),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return g.resolver.ValidateParams(
				stringArg(args, "nodeType"),
				stringArg(args, "operation"),
				objectArg(args, "params"))
		},
	})

	g.register(&Tool{
		Name:        "sync_catalog",
		Description: "Rebuilds the catalog from the capability registry and swaps it in atomically",
		InputSchema: schema.ObjectOf(map[string]*schema.Property{}),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			built := g.builder.Build()
			return map[string]interface{}{
				"catalogSize": built.Size(),
				"skipped":     built.Skipped(),
				"builtAt":     built.BuiltAt(),
			}, nil
		},
	})

	g.register(&Tool{
		Name:        "get_system_status",
		Description: "Returns catalog size, authenticated node count and build health",
		InputSchema: schema.ObjectOf(map[string]*schema.Property{}),
		handle: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			snapshot := g.catalog.Snapshot()
			return map[string]interface{}{
				"catalogSize":        snapshot.Size(),
				"authenticatedCount": g.signature.AuthenticatedCount(),
				"lastSyncAt":         snapshot.BuiltAt(),
				"skippedNodes":       snapshot.Skipped(),
				"activeExecutions":   g.executor.ActiveExecutions(),
			}, nil
		},
	})
}

func (g *Gateway) register(tool *Tool) {
	g.tools[tool.Name] = tool
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

func objectArg(args map[string]interface{}, name string) map[string]interface{} {
	if v, ok := args[name].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

// authValuesArg decodes the auth argument into typed auth values. A plain
// string is a literal; an object of the form {"$env": "NAME"} is an
// environment reference.
func authValuesArg(args map[string]interface{}, name string) (map[string]signature.AuthValue, error) {
	raw, ok := args[name].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return map[string]signature.AuthValue{}, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindValidationError, "auth is not encodable", err)
	}
	out := make(map[string]signature.AuthValue, len(raw))
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindValidationError,
			"auth values must be strings or {\"$env\": name} references", err)
	}
	return out, nil
}

func sortedOperations(def catalog.NodeDefinition) []catalog.OperationSpec {
	ops := make([]catalog.OperationSpec, 0, len(def.Operations))
	for _, op := range def.Operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}
