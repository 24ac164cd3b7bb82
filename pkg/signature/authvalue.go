// Package signature implements the local, file-backed store of per-node
// credentials and default parameters. Credential values are typed: a value is
// either a literal or a reference to a named environment variable, resolved
// only at call time and never written back to disk in resolved form.
package signature

import (
	"encoding/json"
	"fmt"

	"github.com/wehubfusion/Talaria/pkg/errors"
)

// AuthValue is one credential field value. It is a tagged variant: a literal
// string or an environment-variable reference. The zero value is an empty
// literal.
type AuthValue struct {
	literal string
	envName string
	isEnv   bool
}

// Literal creates an auth value holding the given string directly.
func Literal(value string) AuthValue {
	return AuthValue{literal: value}
}

// EnvRef creates an auth value that resolves to the named environment
// variable at call time.
func EnvRef(name string) AuthValue {
	return AuthValue{envName: name, isEnv: true}
}

// IsEnvRef reports whether the value is an environment reference.
func (v AuthValue) IsEnvRef() bool {
	return v.isEnv
}

// IsSet reports whether the value is present and non-empty: a non-empty
// literal, or a reference with a non-empty variable name. Whether a reference
// actually resolves is a separate question answered by Resolve.
func (v AuthValue) IsSet() bool {
	if v.isEnv {
		return v.envName != ""
	}
	return v.literal != ""
}

// Resolve returns the effective credential value. Environment references are
// looked up through the provided function; a missing or empty variable is an
// AuthResolutionError, never a silent empty string.
func (v AuthValue) Resolve(lookup func(string) (string, bool)) (string, error) {
	if !v.isEnv {
		return v.literal, nil
	}
	value, ok := lookup(v.envName)
	if !ok || value == "" {
		return "", errors.Newf(errors.KindAuthResolutionError,
			"environment variable %q is not set", v.envName)
	}
	return value, nil
}

// String renders the value for logs: literals are redacted, references show
// only the variable name.
func (v AuthValue) String() string {
	if v.isEnv {
		return fmt.Sprintf("${%s}", v.envName)
	}
	if v.literal == "" {
		return ""
	}
	return "***"
}

// envRefDocument is the persisted shape of an environment reference.
type envRefDocument struct {
	Env string `json:"$env"`
}

// MarshalJSON persists a literal as a JSON string and a reference as
// {"$env": "NAME"}.
func (v AuthValue) MarshalJSON() ([]byte, error) {
	if v.isEnv {
		return json.Marshal(envRefDocument{Env: v.envName})
	}
	return json.Marshal(v.literal)
}

// UnmarshalJSON accepts either persisted shape.
func (v *AuthValue) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		*v = Literal(literal)
		return nil
	}

	var ref envRefDocument
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("auth value must be a string or an {\"$env\": name} reference: %w", err)
	}
	if ref.Env == "" {
		return fmt.Errorf("auth value $env reference has an empty name")
	}
	*v = EnvRef(ref.Env)
	return nil
}
