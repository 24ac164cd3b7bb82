// Package schema provides the declarative parameter schema model used by the
// catalog and the gateway, together with a validator for checking flat
// argument objects against it. Operation parameter declarations and gateway
// tool input schemas are both expressed with these types.
package schema

import "encoding/json"

// Schema represents a complete schema definition
type Schema struct {
	Type        SchemaType           `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a field property in a schema
type Property struct {
	Type        SchemaType           `json:"type"`
	Required    bool                 `json:"required,omitempty"`
	Default     interface{}          `json:"default,omitempty"`
	Description string               `json:"description,omitempty"`
	Validation  *ValidationRules     `json:"validation,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"` // For OBJECT type
	Items       *Property            `json:"items,omitempty"`      // For ARRAY type
}

// SchemaType represents the data type of a field
type SchemaType string

// Supported schema types
const (
	TypeString   SchemaType = "STRING"
	TypeNumber   SchemaType = "NUMBER"
	TypeBoolean  SchemaType = "BOOLEAN"
	TypeObject   SchemaType = "OBJECT"
	TypeArray    SchemaType = "ARRAY"
	TypeDate     SchemaType = "DATE"
	TypeDateTime SchemaType = "DATETIME"
	TypeAny      SchemaType = "ANY"
)

// ValidationRules contains validation rules for a field
type ValidationRules struct {
	// String validations
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Format    string   `json:"format,omitempty"`
	Enum      []string `json:"enum,omitempty"`

	// Number validations
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// Array validations
	MinItems *int `json:"minItems,omitempty"`
	MaxItems *int `json:"maxItems,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// IsValidType checks if a schema type is valid
func IsValidType(t SchemaType) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray,
		TypeDate, TypeDateTime, TypeAny:
		return true
	}
	return false
}

// ObjectOf is a convenience constructor for a flat object schema, used by the
// gateway to declare tool input schemas.
func ObjectOf(props map[string]*Property) *Schema {
	return &Schema{Type: TypeObject, Properties: props}
}

// ToJSON converts a value to JSON bytes
func ToJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// FromJSON parses JSON bytes into a value
func FromJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
