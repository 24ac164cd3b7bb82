package tests

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wehubfusion/Talaria/pkg/catalog"
	"github.com/wehubfusion/Talaria/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/executor"
	"github.com/wehubfusion/Talaria/pkg/gateway"
	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/nodes/all"
	"github.com/wehubfusion/Talaria/pkg/resolver"
	"github.com/wehubfusion/Talaria/pkg/schema"
	"github.com/wehubfusion/Talaria/pkg/signature"
	"go.uber.org/zap"
)

// secureEcho requires a token credential; it reports the token it saw so a
// test can verify env indirection end to end.
type secureEcho struct{}

func (secureEcho) Manifest() node.Manifest {
	return node.Manifest{
		Type:       "secure-echo",
		Category:   "test",
		AuthFields: []string{"token"},
		Operations: []node.Operation{{
			Name:           "whoami",
			RequiredParams: map[string]schema.SchemaType{"message": schema.TypeString},
			RequiresAuth:   true,
		}},
	}
}

func (secureEcho) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	return map[string]interface{}{
		"message":  call.Params["message"],
		"tokenLen": len(call.Auth["token"]),
	}, nil
}

// brokenManifest is deliberately malformed: it declares an operation twice.
type brokenManifest struct{}

func (brokenManifest) Manifest() node.Manifest {
	return node.Manifest{
		Type:       "broken",
		Operations: []node.Operation{{Name: "op"}, {Name: "op"}},
	}
}

func (brokenManifest) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	return nil, nil
}

type stack struct {
	gateway   *gateway.Gateway
	catalog   *catalog.Store
	signature *signature.Store
	builder   *catalog.Builder
	path      string
}

func newStack(t *testing.T, env map[string]string, extra ...node.Capability) *stack {
	t.Helper()

	registry := all.NewRegistry()
	for _, capability := range extra {
		registry.Register(capability)
	}

	catalogStore := catalog.NewStore()
	builder, err := catalog.NewBuilder(registry, catalogStore, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	builder.Build()

	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	path := filepath.Join(t.TempDir(), "signature.json")
	signatureStore, err := signature.NewStore(path, catalogStore, zap.NewNop(),
		signature.WithEnvLookup(lookup))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	callResolver, err := resolver.NewResolver(catalogStore, signatureStore, zap.NewNop())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	exec, err := executor.NewExecutor(registry, concurrency.NewLimiter(8), 5*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	gw, err := gateway.NewGateway(builder, catalogStore, signatureStore, callResolver, exec, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	return &stack{gateway: gw, catalog: catalogStore, signature: signatureStore, builder: builder, path: path}
}

func TestSignatureRoundTripThroughGateway(t *testing.T) {
	s := newStack(t, nil, secureEcho{})
	ctx := context.Background()

	before, err := s.gateway.Call(ctx, "get_signature_info", nil)
	if err != nil {
		t.Fatalf("get_signature_info failed: %v", err)
	}
	if len(before.([]signature.Entry)) != 0 {
		t.Fatal("expected empty signature before add")
	}

	if _, err := s.gateway.Call(ctx, "add_node_to_signature", map[string]interface{}{
		"nodeType": "secure-echo",
		"auth":     map[string]interface{}{"token": "literal-token"},
	}); err != nil {
		t.Fatalf("add_node_to_signature failed: %v", err)
	}

	if _, err := s.gateway.Call(ctx, "remove_node_from_signature", map[string]interface{}{
		"nodeType": "secure-echo",
	}); err != nil {
		t.Fatalf("remove_node_from_signature failed: %v", err)
	}

	after, err := s.gateway.Call(ctx, "get_signature_info", nil)
	if err != nil {
		t.Fatalf("get_signature_info after remove failed: %v", err)
	}
	if len(after.([]signature.Entry)) != 0 {
		t.Fatal("remove did not restore the pre-add state")
	}
}

// Calling an unauthenticated node with invalid parameters must always yield
// AuthRequired, never ParamValidationError.
func TestAuthBeforeParamsThroughGateway(t *testing.T) {
	s := newStack(t, nil, secureEcho{})

	_, err := s.gateway.Call(context.Background(), "execute_node_operation", map[string]interface{}{
		"nodeType":  "secure-echo",
		"operation": "whoami",
		"params":    map[string]interface{}{"totally-wrong": true},
	})
	if !sdkerrors.IsKind(err, sdkerrors.KindAuthRequired) {
		t.Fatalf("expected AuthRequired, got %v", err)
	}
}

func TestEnvIndirectionThroughGateway(t *testing.T) {
	env := map[string]string{"SECURE_TOKEN": "resolved-secret"}
	s := newStack(t, env, secureEcho{})
	ctx := context.Background()

	if _, err := s.gateway.Call(ctx, "add_node_to_signature", map[string]interface{}{
		"nodeType": "secure-echo",
		"auth": map[string]interface{}{
			"token": map[string]interface{}{"$env": "SECURE_TOKEN"},
		},
	}); err != nil {
		t.Fatalf("add_node_to_signature failed: %v", err)
	}

	payload, err := s.gateway.Call(ctx, "execute_node_operation", map[string]interface{}{
		"nodeType":  "secure-echo",
		"operation": "whoami",
		"params":    map[string]interface{}{"message": "hi"},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	result := payload.(executor.Result)
	if result.Status != executor.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.Output["tokenLen"] != len("resolved-secret") {
		t.Errorf("node did not receive the resolved credential: %v", result.Output)
	}

	// The document on disk keeps the reference form only
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("result should serialize: %v", err)
	}
	if strings.Contains(string(raw), "resolved-secret") {
		t.Error("resolved credential leaked into the execution result")
	}

	// With the variable gone, execution degrades to AuthResolutionError
	delete(env, "SECURE_TOKEN")
	_, err = s.gateway.Call(ctx, "execute_node_operation", map[string]interface{}{
		"nodeType":  "secure-echo",
		"operation": "whoami",
		"params":    map[string]interface{}{"message": "hi"},
	})
	if !sdkerrors.IsKind(err, sdkerrors.KindAuthResolutionError) {
		t.Fatalf("expected AuthResolutionError, got %v", err)
	}
}

// A malformed manifest among healthy ones is skipped with a reason; the rest
// of the catalog builds normally.
func TestPartialBuildFailureIsolation(t *testing.T) {
	s := newStack(t, nil, brokenManifest{})
	ctx := context.Background()

	payload, err := s.gateway.Call(ctx, "get_system_status", nil)
	if err != nil {
		t.Fatalf("get_system_status failed: %v", err)
	}
	status := payload.(map[string]interface{})

	skipped := status["skippedNodes"].([]catalog.SkippedNode)
	if len(skipped) != 1 || skipped[0].NodeType != "broken" {
		t.Fatalf("expected one skipped record for broken, got %v", skipped)
	}
	if skipped[0].Reason == "" {
		t.Error("skipped record should carry a reason")
	}
	if s.catalog.Snapshot().Has("broken") {
		t.Error("broken node must not enter the catalog")
	}
	if !s.catalog.Snapshot().Has("strings") {
		t.Error("healthy nodes must survive a sibling's malformed manifest")
	}
}

func TestConcurrentGatewayCalls(t *testing.T) {
	s := newStack(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := s.gateway.Call(ctx, "sync_catalog", nil); err != nil {
				t.Errorf("sync_catalog failed: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				payload, err := s.gateway.Call(ctx, "execute_node_operation", map[string]interface{}{
					"nodeType":  "sample",
					"operation": "echo",
					"params":    map[string]interface{}{"message": "concurrent"},
				})
				if err != nil {
					t.Errorf("execute failed: %v", err)
					return
				}
				if payload.(executor.Result).Status != executor.StatusSuccess {
					t.Errorf("expected success, got %v", payload)
					return
				}
			}
		}()
	}

	wg.Wait()
}

func TestSampleScenario(t *testing.T) {
	s := newStack(t, nil)
	ctx := context.Background()

	// Wrong parameter key on an auth-free node is a validation error
	_, err := s.gateway.Call(ctx, "execute_node_operation", map[string]interface{}{
		"nodeType":  "sample",
		"operation": "echo",
		"params":    map[string]interface{}{"mesage": "typo"},
	})
	if !sdkerrors.IsKind(err, sdkerrors.KindParamValidationError) {
		t.Fatalf("expected ParamValidationError, got %v", err)
	}

	// Defaults stored in the signature fill in missing parameters
	if _, err := s.gateway.Call(ctx, "add_node_to_signature", map[string]interface{}{
		"nodeType": "sample",
		"defaults": map[string]interface{}{"message": "from defaults"},
	}); err != nil {
		t.Fatalf("add_node_to_signature failed: %v", err)
	}

	payload, err := s.gateway.Call(ctx, "execute_node_operation", map[string]interface{}{
		"nodeType":  "sample",
		"operation": "echo",
	})
	if err != nil {
		t.Fatalf("execute with defaults failed: %v", err)
	}
	result := payload.(executor.Result)
	if result.Output["message"] != "from defaults" {
		t.Errorf("expected default message, got %v", result.Output)
	}
}
