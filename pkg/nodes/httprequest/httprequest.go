// Package httprequest provides authenticated HTTP calls as a node capability.
// All operations require a signature carrying the "token" auth field; the
// resolved token is sent as a Bearer credential and never echoed in output.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Node is the httprequest capability.
type Node struct {
	client *http.Client
}

// New creates the httprequest node with a default client.
func New() *Node {
	return &Node{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithClient creates the httprequest node with a caller-supplied client,
// used by tests to stub the transport.
func NewWithClient(client *http.Client) *Node {
	return &Node{client: client}
}

// Manifest returns the declarative metadata for the httprequest node.
func (n *Node) Manifest() node.Manifest {
	return node.Manifest{
		Type:        "httprequest",
		DisplayName: "HTTP Request",
		Category:    "network",
		AuthFields:  []string{"token"},
		Operations: []node.Operation{
			{
				Name:        "get",
				DisplayName: "GET",
				Description: "Performs an authenticated GET request",
				RequiredParams: map[string]schema.SchemaType{
					"url": schema.TypeString,
				},
				OptionalParams: map[string]schema.SchemaType{
					"headers": schema.TypeObject,
				},
				RequiresAuth: true,
			},
			{
				Name:        "post",
				DisplayName: "POST",
				Description: "Performs an authenticated POST request with a JSON body",
				RequiredParams: map[string]schema.SchemaType{
					"url": schema.TypeString,
				},
				OptionalParams: map[string]schema.SchemaType{
					"body":    schema.TypeObject,
					"headers": schema.TypeObject,
				},
				RequiresAuth: true,
			},
		},
	}
}

// Execute runs one HTTP operation.
func (n *Node) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	url := call.StringParam("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}

	switch call.Operation {
	case "get":
		return n.do(ctx, http.MethodGet, url, nil, call)
	case "post":
		var body io.Reader
		if raw, ok := call.Params["body"]; ok {
			encoded, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to encode body: %w", err)
			}
			body = strings.NewReader(string(encoded))
		}
		return n.do(ctx, http.MethodPost, url, body, call)
	}

	return nil, node.ErrUnknownOperation(call.Operation)
}

func (n *Node) do(ctx context.Context, method, url string, body io.Reader, call node.Call) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+call.Auth["token"])
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := call.Params["headers"].(map[string]interface{}); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok && !strings.EqualFold(name, "Authorization") {
				req.Header.Set(name, s)
			}
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := map[string]interface{}{
		"statusCode": resp.StatusCode,
		"body":       string(raw),
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			result["json"] = decoded
		}
	}
	return result, nil
}
