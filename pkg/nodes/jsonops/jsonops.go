// Package jsonops provides JSON document query and mutation operations as a
// node capability, built on gjson/sjson path expressions.
package jsonops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
)

// Node is the jsonops capability.
type Node struct{}

// New creates the jsonops node.
func New() *Node {
	return &Node{}
}

// Manifest returns the declarative metadata for the jsonops node.
func (n *Node) Manifest() node.Manifest {
	docAndPath := map[string]schema.SchemaType{
		"document": schema.TypeString,
		"path":     schema.TypeString,
	}

	return node.Manifest{
		Type:        "json",
		DisplayName: "JSON Operations",
		Category:    "data",
		Operations: []node.Operation{
			{
				Name:           "query",
				DisplayName:    "Query",
				Description:    "Extracts a value from a JSON document by path",
				RequiredParams: docAndPath,
			},
			{
				Name:           "exists",
				DisplayName:    "Exists",
				Description:    "Checks whether a path is present in a JSON document",
				RequiredParams: docAndPath,
			},
			{
				Name:        "set",
				DisplayName: "Set",
				Description: "Sets a value at a path, returning the updated document",
				RequiredParams: map[string]schema.SchemaType{
					"document": schema.TypeString,
					"path":     schema.TypeString,
					"value":    schema.TypeAny,
				},
			},
			{
				Name:           "delete",
				DisplayName:    "Delete",
				Description:    "Removes a path, returning the updated document",
				RequiredParams: docAndPath,
			},
		},
	}
}

// Execute runs one JSON operation.
func (n *Node) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	document := call.StringParam("document")
	path := call.StringParam("path")

	if !gjson.Valid(document) {
		return nil, fmt.Errorf("document is not valid JSON")
	}

	switch call.Operation {
	case "query":
		value := gjson.Get(document, path)
		if !value.Exists() {
			return nil, fmt.Errorf("path %q not found in document", path)
		}
		return map[string]interface{}{"result": value.Value()}, nil

	case "exists":
		return map[string]interface{}{"result": gjson.Get(document, path).Exists()}, nil

	case "set":
		updated, err := sjson.Set(document, path, call.Params["value"])
		if err != nil {
			return nil, fmt.Errorf("failed to set path %q: %w", path, err)
		}
		return documentResult(updated)

	case "delete":
		updated, err := sjson.Delete(document, path)
		if err != nil {
			return nil, fmt.Errorf("failed to delete path %q: %w", path, err)
		}
		return documentResult(updated)
	}

	return nil, node.ErrUnknownOperation(call.Operation)
}

// documentResult wraps an updated document string, verifying it stayed valid
// JSON through the mutation.
func documentResult(document string) (map[string]interface{}, error) {
	var check interface{}
	if err := json.Unmarshal([]byte(document), &check); err != nil {
		return nil, fmt.Errorf("mutation produced invalid JSON: %w", err)
	}
	return map[string]interface{}{"document": document}, nil
}
