// Package sample provides a minimal auth-free node used in examples and as a
// smoke-test target for the execution pipeline.
package sample

import (
	"context"
	"time"

	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
)

// Node is the sample capability.
type Node struct{}

// New creates the sample node.
func New() *Node {
	return &Node{}
}

// Manifest returns the declarative metadata for the sample node.
func (n *Node) Manifest() node.Manifest {
	return node.Manifest{
		Type:        "sample",
		DisplayName: "Sample",
		Category:    "examples",
		Operations: []node.Operation{
			{
				Name:        "echo",
				DisplayName: "Echo",
				Description: "Returns the supplied message unchanged",
				RequiredParams: map[string]schema.SchemaType{
					"message": schema.TypeString,
				},
			},
			{
				Name:        "ping",
				DisplayName: "Ping",
				Description: "Returns a pong with the current server time",
			},
		},
	}
}

// Execute runs one sample operation.
func (n *Node) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	switch call.Operation {
	case "echo":
		return map[string]interface{}{"message": call.StringParam("message")}, nil
	case "ping":
		return map[string]interface{}{
			"pong": true,
			"at":   time.Now().UTC().Format(time.RFC3339),
		}, nil
	}
	return nil, node.ErrUnknownOperation(call.Operation)
}
