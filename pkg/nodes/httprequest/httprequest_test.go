package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/nodes/httprequest"
)

func TestGet(t *testing.T) {
	var gotAuth, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	out, err := httprequest.New().Execute(context.Background(), node.Call{
		Operation: "get",
		Params: map[string]interface{}{
			"url": server.URL,
			"headers": map[string]interface{}{
				"X-Custom":      "yes",
				"Authorization": "Bearer attacker-controlled",
			},
		},
		Auth: map[string]string{"token": "signed-token"},
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if gotAuth != "Bearer signed-token" {
		t.Errorf("expected signed token in Authorization, got %q", gotAuth)
	}
	if gotCustom != "yes" {
		t.Errorf("custom header not forwarded, got %q", gotCustom)
	}
	if out["statusCode"] != 200 {
		t.Errorf("expected 200, got %v", out["statusCode"])
	}
	decoded := out["json"].(map[string]interface{})
	if decoded["ok"] != true {
		t.Errorf("expected decoded JSON body, got %v", out["json"])
	}
}

func TestPost(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	out, err := httprequest.New().Execute(context.Background(), node.Call{
		Operation: "post",
		Params: map[string]interface{}{
			"url":  server.URL,
			"body": map[string]interface{}{"name": "alice"},
		},
		Auth: map[string]string{"token": "signed-token"},
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(gotBody, &decoded); err != nil || decoded["name"] != "alice" {
		t.Errorf("unexpected request body: %s", gotBody)
	}
	if out["statusCode"] != 201 {
		t.Errorf("expected 201, got %v", out["statusCode"])
	}
}

func TestRejectsNonHTTPURL(t *testing.T) {
	_, err := httprequest.New().Execute(context.Background(), node.Call{
		Operation: "get",
		Params:    map[string]interface{}{"url": "file:///etc/passwd"},
	})
	if err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}
