// Package resolver turns a (nodeType, operation, params) request into a
// fully validated call ready for execution. Authentication is checked before
// any parameter validation, so a caller always learns about missing
// authentication before being told about a malformed parameter.
package resolver

import (
	"fmt"
	"strings"

	"dario.cat/mergo"
	"github.com/wehubfusion/Talaria/pkg/catalog"
	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/schema"
	"github.com/wehubfusion/Talaria/pkg/signature"
	"go.uber.org/zap"
)

// ResolvedCall bundles a node type, operation, validated parameters and
// resolved auth, ready for execution. Auth travels on a distinct channel from
// the parameters: it is excluded from serialization and must never appear in
// logs or caller-visible output.
type ResolvedCall struct {
	NodeType  string                 `json:"nodeType"`
	Operation string                 `json:"operation"`
	Params    map[string]interface{} `json:"params"`

	// Auth holds resolved credential values. Never serialized.
	Auth map[string]string `json:"-"`

	// SerialOnly carries the node's concurrency declaration to the executor
	SerialOnly bool `json:"-"`
}

// Resolver validates and assembles single-operation calls against the live
// catalog snapshot and the shared signature store.
type Resolver struct {
	catalog   *catalog.Store
	signature *signature.Store
	validator *schema.Validator
	logger    *zap.Logger
}

// NewResolver creates a resolver over the given catalog and signature stores.
func NewResolver(catalogStore *catalog.Store, signatureStore *signature.Store, logger *zap.Logger) (*Resolver, error) {
	if catalogStore == nil {
		return nil, fmt.Errorf("catalog store cannot be nil")
	}
	if signatureStore == nil {
		return nil, fmt.Errorf("signature store cannot be nil")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Resolver{
		catalog:   catalogStore,
		signature: signatureStore,
		validator: schema.NewStrictValidator(),
		logger:    logger,
	}, nil
}

// Resolve performs the full resolution pipeline: catalog lookup, operation
// lookup, authentication check, parameter merge and validation, and auth
// resolution.
func (r *Resolver) Resolve(nodeType, operation string, runtimeParams map[string]interface{}) (*ResolvedCall, error) {
	def, err := r.catalog.Get(nodeType)
	if err != nil {
		return nil, err
	}

	op, err := def.Operation(operation)
	if err != nil {
		return nil, err
	}

	// Auth before params: the caller must learn about missing authentication
	// before being told about a malformed parameter
	if op.RequiresAuth && !r.signature.IsAuthenticated(nodeType) {
		return nil, errors.Newf(errors.KindAuthRequired,
			"operation %q on node %q requires authentication", operation, nodeType)
	}

	merged, err := r.mergeParams(op, nodeType, runtimeParams)
	if err != nil {
		return nil, err
	}

	if result := r.validator.Validate(merged, ParamSchema(op)); !result.Valid {
		return nil, errors.New(errors.KindParamValidationError, formatValidationErrors(result.Errors))
	}

	var auth map[string]string
	if op.RequiresAuth {
		auth, err = r.signature.ResolveAuth(nodeType)
		if err != nil {
			return nil, err
		}
	}

	r.logger.Debug("Resolved call",
		zap.String("nodeType", nodeType),
		zap.String("operation", operation),
		zap.Int("params", len(merged)))

	return &ResolvedCall{
		NodeType:   nodeType,
		Operation:  operation,
		Params:     merged,
		Auth:       auth,
		SerialOnly: def.SerialOnly,
	}, nil
}

// ValidateParams validates parameters against an operation's declared schema
// without checking authentication or resolving auth. Signature defaults are
// merged in first, the same way Resolve does. The structured result reports
// every violation, not just the first.
func (r *Resolver) ValidateParams(nodeType, operation string, runtimeParams map[string]interface{}) (*schema.ValidationResult, error) {
	def, err := r.catalog.Get(nodeType)
	if err != nil {
		return nil, err
	}
	op, err := def.Operation(operation)
	if err != nil {
		return nil, err
	}

	merged, err := r.mergeParams(op, nodeType, runtimeParams)
	if err != nil {
		// Unknown runtime parameters are reported as a validation result, not
		// an opaque error, so callers get the same shape either way
		return &schema.ValidationResult{
			Valid: false,
			Errors: []schema.ValidationError{{
				Path:    "root",
				Message: err.Error(),
				Code:    "UNKNOWN_PROPERTY",
			}},
		}, nil
	}

	return r.validator.Validate(merged, ParamSchema(op)), nil
}

// mergeParams starts from the signature defaults applicable to the operation
// and overrides them with the runtime parameters. Runtime parameters the
// operation does not declare are rejected outright.
func (r *Resolver) mergeParams(op catalog.OperationSpec, nodeType string, runtimeParams map[string]interface{}) (map[string]interface{}, error) {
	for name := range runtimeParams {
		if _, ok := op.DeclaresParam(name); !ok {
			return nil, errors.Newf(errors.KindParamValidationError,
				"operation %q on node %q does not declare parameter %q", op.Name, nodeType, name)
		}
	}

	// Defaults are stored per node and may cover other operations; only those
	// this operation declares participate in the merge
	defaults := make(map[string]interface{})
	for name, value := range r.signature.Defaults(nodeType) {
		if _, ok := op.DeclaresParam(name); ok {
			defaults[name] = value
		}
	}

	// Seed from the defaults and merge runtime values over them with override,
	// so an explicit runtime value always wins even when it is a zero value
	// such as "" or false
	merged := make(map[string]interface{}, len(runtimeParams)+len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, runtimeParams, mergo.WithOverride); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to merge parameter defaults", err)
	}

	return merged, nil
}

// ParamSchema builds the object schema for an operation's parameters.
// Undeclared properties are rejected by the strict validator.
func ParamSchema(op catalog.OperationSpec) *schema.Schema {
	props := make(map[string]*schema.Property, len(op.RequiredParams)+len(op.OptionalParams))
	for name, t := range op.RequiredParams {
		props[name] = &schema.Property{Type: t, Required: true}
	}
	for name, t := range op.OptionalParams {
		props[name] = &schema.Property{Type: t}
	}
	return schema.ObjectOf(props)
}

func formatValidationErrors(errs []schema.ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	return "parameter validation failed: " + strings.Join(parts, "; ")
}
