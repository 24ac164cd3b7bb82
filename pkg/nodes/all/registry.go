// Package all registers every built-in node capability in one place.
package all

import (
	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/nodes/datetime"
	"github.com/wehubfusion/Talaria/pkg/nodes/httprequest"
	"github.com/wehubfusion/Talaria/pkg/nodes/javascript"
	"github.com/wehubfusion/Talaria/pkg/nodes/jsonops"
	"github.com/wehubfusion/Talaria/pkg/nodes/sample"
	strnode "github.com/wehubfusion/Talaria/pkg/nodes/strings"
)

// NewRegistry creates a registry pre-populated with all built-in nodes.
func NewRegistry() *node.Registry {
	registry := node.NewRegistry()
	Register(registry)
	return registry
}

// Register adds the built-in nodes to an existing registry.
func Register(registry *node.Registry) {
	registry.Register(sample.New())
	registry.Register(strnode.New())
	registry.Register(jsonops.New())
	registry.Register(datetime.New())
	registry.Register(javascript.New())
	registry.Register(httprequest.New())
}
