// Package javascript provides sandboxed JavaScript evaluation as a node
// capability. Each call runs in a fresh goja runtime with restricted globals;
// the runtime is interrupted when the call context is cancelled, so a script
// can never outlive its deadline.
package javascript

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
)

// Node is the javascript capability.
type Node struct{}

// New creates the javascript node.
func New() *Node {
	return &Node{}
}

// Manifest returns the declarative metadata for the javascript node.
func (n *Node) Manifest() node.Manifest {
	return node.Manifest{
		Type:        "javascript",
		DisplayName: "JavaScript",
		Category:    "scripting",
		Operations: []node.Operation{
			{
				Name:        "run",
				DisplayName: "Run Script",
				Description: "Evaluates a script with an optional input object bound to `input`",
				RequiredParams: map[string]schema.SchemaType{
					"script": schema.TypeString,
				},
				OptionalParams: map[string]schema.SchemaType{
					"input": schema.TypeObject,
				},
			},
			{
				Name:        "check",
				DisplayName: "Check Syntax",
				Description: "Parses a script without executing it",
				RequiredParams: map[string]schema.SchemaType{
					"script": schema.TypeString,
				},
			},
		},
	}
}

// Execute runs one javascript operation.
func (n *Node) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	script := call.StringParam("script")

	switch call.Operation {
	case "run":
		var input map[string]interface{}
		if v, ok := call.Params["input"].(map[string]interface{}); ok {
			input = v
		}
		value, err := runScript(ctx, script, input)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"result": value}, nil

	case "check":
		if err := compileScript(script); err != nil {
			return map[string]interface{}{"valid": false, "error": err.Error()}, nil
		}
		return map[string]interface{}{"valid": true}, nil
	}

	return nil, node.ErrUnknownOperation(call.Operation)
}

// runScript evaluates the script in a fresh sandboxed runtime.
func runScript(ctx context.Context, script string, input map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during script execution: %v", r)
		}
	}()

	vm := goja.New()
	if err := applySandbox(vm); err != nil {
		return nil, fmt.Errorf("failed to prepare sandbox: %w", err)
	}

	if input == nil {
		input = map[string]interface{}{}
	}
	if err := vm.Set("input", input); err != nil {
		return nil, fmt.Errorf("failed to set input: %w", err)
	}

	// Interrupt the runtime when the call context ends
	done := make(chan struct{})
	var interrupted bool
	var interruptMu sync.Mutex
	go func() {
		select {
		case <-ctx.Done():
			interruptMu.Lock()
			interrupted = true
			interruptMu.Unlock()
			vm.Interrupt("execution cancelled")
		case <-done:
		}
	}()
	defer close(done)

	value, err := vm.RunString(script)
	if err != nil {
		interruptMu.Lock()
		wasInterrupted := interrupted
		interruptMu.Unlock()
		if wasInterrupted {
			return nil, ctx.Err()
		}
		if exc, ok := err.(*goja.Exception); ok {
			return nil, fmt.Errorf("script threw: %s", exc.Value().String())
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	return value.Export(), nil
}

// compileScript parses a script without running it.
func compileScript(script string) error {
	if _, err := goja.Compile("script", script, false); err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	return nil
}
