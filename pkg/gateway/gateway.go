// Package gateway exposes catalog queries, signature management and operation
// execution as a fixed set of named, schema-declared tools. Each call is
// stateless from the gateway's perspective: arguments are validated against
// the tool's declared input schema, the call is delegated to the owning
// component and the result is serialized back. Every response is either a
// typed success payload or a structured error with a stable errorKind string.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wehubfusion/Talaria/pkg/catalog"
	sdkerrors "github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/executor"
	"github.com/wehubfusion/Talaria/pkg/resolver"
	"github.com/wehubfusion/Talaria/pkg/schema"
	"github.com/wehubfusion/Talaria/pkg/signature"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Tool is one named gateway operation with its declared input schema.
type Tool struct {
	Name        string
	Description string
	InputSchema *schema.Schema

	handle func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ErrorBody is the structured error shape returned to callers. Callers branch
// on ErrorKind, never on the free-text message.
type ErrorBody struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

// Gateway is the synchronous call surface over the catalog, signature,
// resolver and executor components.
type Gateway struct {
	builder   *catalog.Builder
	catalog   *catalog.Store
	signature *signature.Store
	resolver  *resolver.Resolver
	executor  *executor.Executor
	validator *schema.Validator
	logger    *zap.Logger
	tracer    trace.Tracer

	tools map[string]*Tool
}

// NewGateway creates a gateway over fully constructed components. The same
// signature store instance must be shared with the resolver.
func NewGateway(
	builder *catalog.Builder,
	catalogStore *catalog.Store,
	signatureStore *signature.Store,
	callResolver *resolver.Resolver,
	exec *executor.Executor,
	logger *zap.Logger,
) (*Gateway, error) {
	if builder == nil {
		return nil, fmt.Errorf("builder cannot be nil")
	}
	if catalogStore == nil {
		return nil, fmt.Errorf("catalog store cannot be nil")
	}
	if signatureStore == nil {
		return nil, fmt.Errorf("signature store cannot be nil")
	}
	if callResolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	g := &Gateway{
		builder:   builder,
		catalog:   catalogStore,
		signature: signatureStore,
		resolver:  callResolver,
		executor:  exec,
		validator: schema.NewStrictValidator(),
		logger:    logger,
		tracer:    otel.Tracer("talaria/gateway"),
		tools:     make(map[string]*Tool),
	}
	g.registerTools()
	return g, nil
}

// Tools returns the declared tools sorted by name, for discovery by callers.
func (g *Gateway) Tools() []Tool {
	out := make([]Tool, 0, len(g.tools))
	for _, t := range g.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invokes a named tool with a flat object of arguments. The arguments
// are validated against the tool's input schema before the handler runs.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.Call",
		trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	tool, ok := g.tools[name]
	if !ok {
		span.SetStatus(codes.Error, "unknown tool")
		return nil, sdkerrors.Newf(sdkerrors.KindNotFound, "unknown tool %q", name)
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if result := g.validator.Validate(args, tool.InputSchema); !result.Valid {
		span.SetStatus(codes.Error, "invalid arguments")
		return nil, sdkerrors.Newf(sdkerrors.KindParamValidationError,
			"invalid arguments for tool %q: %s", name, firstViolation(result))
	}

	start := time.Now()
	payload, err := tool.handle(ctx, args)
	if err != nil {
		span.SetStatus(codes.Error, string(sdkerrors.KindOf(err)))
		g.logger.Warn("Tool call failed",
			zap.String("tool", name),
			zap.String("errorKind", string(sdkerrors.KindOf(err))),
			zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	span.SetStatus(codes.Ok, "served")

	g.logger.Debug("Tool call served",
		zap.String("tool", name),
		zap.Duration("duration", time.Since(start)))
	return payload, nil
}

// ErrorBodyFor converts an error into the structured shape returned to
// callers.
func ErrorBodyFor(err error) ErrorBody {
	return ErrorBody{
		ErrorKind: string(sdkerrors.KindOf(err)),
		Message:   err.Error(),
	}
}

func firstViolation(result *schema.ValidationResult) string {
	if len(result.Errors) == 0 {
		return "arguments do not match the declared schema"
	}
	e := result.Errors[0]
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
