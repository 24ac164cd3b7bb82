package signature_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wehubfusion/Talaria/pkg/catalog"
	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
	"github.com/wehubfusion/Talaria/pkg/signature"
	"go.uber.org/zap"
)

type stubNode struct {
	manifest node.Manifest
}

func (s stubNode) Manifest() node.Manifest { return s.manifest }

func (s stubNode) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	return nil, nil
}

// newTestCatalog builds a catalog with one open node and one node requiring a
// token credential.
func newTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()

	registry := node.NewRegistry()
	registry.Register(stubNode{manifest: node.Manifest{
		Type: "open",
		Operations: []node.Operation{{
			Name:           "echo",
			RequiredParams: map[string]schema.SchemaType{"message": schema.TypeString},
			OptionalParams: map[string]schema.SchemaType{"prefix": schema.TypeString},
		}},
	}})
	registry.Register(stubNode{manifest: node.Manifest{
		Type:       "secure",
		AuthFields: []string{"token"},
		Operations: []node.Operation{{
			Name:           "fetch",
			RequiredParams: map[string]schema.SchemaType{"url": schema.TypeString},
			RequiresAuth:   true,
		}},
	}})

	store := catalog.NewStore()
	builder, err := catalog.NewBuilder(registry, store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	builder.Build()
	return store
}

func newTestStore(t *testing.T, opts ...signature.Option) (*signature.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signature.json")
	store, err := signature.NewStore(path, newTestCatalog(t), zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store, path
}

func TestAddNodeRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	before := store.Entries()
	if len(before) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(before))
	}

	entry, err := store.AddNode("secure",
		map[string]signature.AuthValue{"token": signature.Literal("s3cret")},
		map[string]interface{}{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if !entry.Authenticated {
		t.Error("entry with all auth fields set should be authenticated")
	}

	if err := store.RemoveNode("secure"); err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	if after := store.Entries(); len(after) != 0 {
		t.Fatalf("remove should restore the pre-add state, got %d entries", len(after))
	}
}

func TestRemoveAbsentNodeIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.RemoveNode("never-added"); err != nil {
		t.Fatalf("removing an absent node should succeed, got %v", err)
	}
}

func TestAddNodeValidation(t *testing.T) {
	store, _ := newTestStore(t)

	t.Run("unknown node", func(t *testing.T) {
		_, err := store.AddNode("ghost", nil, nil)
		if !errors.IsKind(err, errors.KindNodeNotFound) {
			t.Fatalf("expected NodeNotFound, got %v", err)
		}
	})

	t.Run("missing auth field", func(t *testing.T) {
		_, err := store.AddNode("secure", map[string]signature.AuthValue{}, nil)
		if !errors.IsKind(err, errors.KindValidationError) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("undeclared auth field", func(t *testing.T) {
		_, err := store.AddNode("secure", map[string]signature.AuthValue{
			"token":  signature.Literal("x"),
			"secret": signature.Literal("y"),
		}, nil)
		if !errors.IsKind(err, errors.KindValidationError) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("auth supplied for open node", func(t *testing.T) {
		_, err := store.AddNode("open", map[string]signature.AuthValue{
			"token": signature.Literal("x"),
		}, nil)
		if !errors.IsKind(err, errors.KindValidationError) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("default for undeclared parameter", func(t *testing.T) {
		_, err := store.AddNode("open", nil, map[string]interface{}{"bogus": 1})
		if !errors.IsKind(err, errors.KindValidationError) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestUpdateDefaults(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.AddNode("open", nil, map[string]interface{}{"prefix": ">> "}); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	entry, err := store.UpdateDefaults("open", map[string]interface{}{"prefix": "# "})
	if err != nil {
		t.Fatalf("UpdateDefaults failed: %v", err)
	}
	if entry.Defaults["prefix"] != "# " {
		t.Errorf("expected updated default, got %v", entry.Defaults["prefix"])
	}

	// Applying the same update twice is a no-op for the observable state
	again, err := store.UpdateDefaults("open", map[string]interface{}{"prefix": "# "})
	if err != nil {
		t.Fatalf("repeated UpdateDefaults failed: %v", err)
	}
	if again.Defaults["prefix"] != "# " {
		t.Errorf("expected unchanged default, got %v", again.Defaults["prefix"])
	}

	_, err = store.UpdateDefaults("secure", map[string]interface{}{"url": "x"})
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected NotFound for node never added, got %v", err)
	}
}

func TestIsAuthenticatedIsDerived(t *testing.T) {
	store, _ := newTestStore(t)

	if store.IsAuthenticated("secure") {
		t.Error("node without signature entry should not be authenticated")
	}
	if !store.IsAuthenticated("open") {
		t.Error("node declaring no auth fields is always authenticated")
	}

	if _, err := store.AddNode("secure", map[string]signature.AuthValue{
		"token": signature.Literal("s3cret"),
	}, nil); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if !store.IsAuthenticated("secure") {
		t.Error("node with all auth fields set should be authenticated")
	}
	if store.AuthenticatedCount() != 1 {
		t.Errorf("expected 1 authenticated entry, got %d", store.AuthenticatedCount())
	}
}

func TestResolveAuthEnvIndirection(t *testing.T) {
	env := map[string]string{"API_TOKEN": "from-env"}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	store, path := newTestStore(t, signature.WithEnvLookup(lookup))

	if _, err := store.AddNode("secure", map[string]signature.AuthValue{
		"token": signature.EnvRef("API_TOKEN"),
	}, nil); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	resolved, err := store.ResolveAuth("secure")
	if err != nil {
		t.Fatalf("ResolveAuth failed: %v", err)
	}
	if resolved["token"] != "from-env" {
		t.Errorf("expected resolved env value, got %q", resolved["token"])
	}

	// The resolved value must never be written back to the document
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read signature document: %v", err)
	}
	if strings.Contains(string(raw), "from-env") {
		t.Error("resolved credential leaked into the persisted document")
	}
	if !strings.Contains(string(raw), `"$env": "API_TOKEN"`) {
		t.Error("document should persist the reference form")
	}

	// Resolution tracks the live environment
	env["API_TOKEN"] = "rotated"
	resolved, err = store.ResolveAuth("secure")
	if err != nil {
		t.Fatalf("ResolveAuth after rotation failed: %v", err)
	}
	if resolved["token"] != "rotated" {
		t.Errorf("expected rotated value, got %q", resolved["token"])
	}

	delete(env, "API_TOKEN")
	if _, err := store.ResolveAuth("secure"); !errors.IsKind(err, errors.KindAuthResolutionError) {
		t.Fatalf("expected AuthResolutionError for missing variable, got %v", err)
	}
}

func TestResolveAuthWithoutEntry(t *testing.T) {
	store, _ := newTestStore(t)

	resolved, err := store.ResolveAuth("open")
	if err != nil {
		t.Fatalf("open node should resolve to empty auth, got %v", err)
	}
	if len(resolved) != 0 {
		t.Errorf("expected empty auth map, got %v", resolved)
	}

	if _, err := store.ResolveAuth("secure"); !errors.IsKind(err, errors.KindAuthRequired) {
		t.Fatalf("expected AuthRequired, got %v", err)
	}
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	catalogStore := newTestCatalog(t)
	path := filepath.Join(t.TempDir(), "nested", "signature.json")

	store, err := signature.NewStore(path, catalogStore, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, err := store.AddNode("secure", map[string]signature.AuthValue{
		"token": signature.Literal("s3cret"),
	}, map[string]interface{}{"url": "https://example.com"}); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("signature document not written: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("expected file mode 0600, got %o", mode)
	}

	reopened, err := signature.NewStore(path, catalogStore, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	entry, err := reopened.Entry("secure")
	if err != nil {
		t.Fatalf("Entry after reopen failed: %v", err)
	}
	if !entry.Authenticated {
		t.Error("authenticated flag should be derived again after reopen")
	}
	if entry.Defaults["url"] != "https://example.com" {
		t.Errorf("defaults lost across reopen: %v", entry.Defaults)
	}
}

func TestAuthValueSerialization(t *testing.T) {
	t.Run("literal round trip", func(t *testing.T) {
		data, err := json.Marshal(signature.Literal("abc"))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != `"abc"` {
			t.Errorf("expected plain string form, got %s", data)
		}
		var back signature.AuthValue
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if back.IsEnvRef() || !back.IsSet() {
			t.Error("expected set literal after round trip")
		}
	})

	t.Run("env ref round trip", func(t *testing.T) {
		data, err := json.Marshal(signature.EnvRef("MY_VAR"))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != `{"$env":"MY_VAR"}` {
			t.Errorf("expected reference form, got %s", data)
		}
		var back signature.AuthValue
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if !back.IsEnvRef() {
			t.Error("expected env reference after round trip")
		}
	})

	t.Run("empty env name rejected", func(t *testing.T) {
		var v signature.AuthValue
		if err := json.Unmarshal([]byte(`{"$env":""}`), &v); err == nil {
			t.Error("expected error for empty reference name")
		}
	})

	t.Run("literals are redacted in string form", func(t *testing.T) {
		if s := signature.Literal("s3cret").String(); s != "***" {
			t.Errorf("expected redacted literal, got %q", s)
		}
		if s := signature.EnvRef("API_TOKEN").String(); s != "${API_TOKEN}" {
			t.Errorf("expected reference name, got %q", s)
		}
	})
}
