package javascript

import (
	"fmt"

	"github.com/dop251/goja"
)

// dangerousGlobals are host-environment names a script must never see.
var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
	"setTimeout",
	"setInterval",
	"fetch",
	"XMLHttpRequest",
	"WebSocket",
}

// applySandbox strips host globals and freezes the built-in prototypes so a
// script cannot tamper with them.
func applySandbox(vm *goja.Runtime) error {
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return freezeBuiltins(vm)
}

// freezeBuiltins freezes the standard built-in objects and their prototypes.
func freezeBuiltins(vm *goja.Runtime) error {
	builtins := []string{
		"Object",
		"Array",
		"Function",
		"String",
		"Number",
		"Boolean",
		"Date",
		"RegExp",
		"Error",
		"Math",
		"JSON",
	}

	freezeScript := `
		(function() {
			return function freezeObject(obj) {
				if (obj && (typeof obj === 'object' || typeof obj === 'function')) {
					Object.freeze(obj);
					if (obj.prototype) {
						Object.freeze(obj.prototype);
					}
				}
			};
		})()
	`

	val, err := vm.RunString(freezeScript)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}

	freezeFn, ok := goja.AssertFunction(val)
	if !ok {
		return fmt.Errorf("freeze helper is not a function")
	}

	for _, name := range builtins {
		obj := vm.Get(name)
		if obj == nil || goja.IsUndefined(obj) {
			continue
		}
		if _, err := freezeFn(goja.Undefined(), obj); err != nil {
			// Some built-ins resist freezing; not fatal
			continue
		}
	}

	return nil
}
