package schema

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"time"
)

// FormatValidator checks whether a string value satisfies a named format.
type FormatValidator func(value string) bool

// Validator validates data against schemas.
type Validator struct {
	formatValidators map[string]FormatValidator

	// rejectUnknown makes object validation fail on properties that are not
	// declared in the schema instead of ignoring them
	rejectUnknown bool
}

// NewValidator creates a new schema validator with the default format
// validators registered.
func NewValidator() *Validator {
	v := &Validator{
		formatValidators: make(map[string]FormatValidator),
	}

	v.RegisterFormat("email", validateEmail)
	v.RegisterFormat("uri", validateURI)
	v.RegisterFormat("date", validateDate)
	v.RegisterFormat("datetime", validateDateTime)

	return v
}

// NewStrictValidator creates a validator that rejects undeclared object
// properties. The resolver and the gateway use this mode so an unknown
// parameter is an error, never silently passed through.
func NewStrictValidator() *Validator {
	v := NewValidator()
	v.rejectUnknown = true
	return v
}

// RegisterFormat registers a custom format validator
func (v *Validator) RegisterFormat(format string, validator FormatValidator) {
	v.formatValidators[format] = validator
}

// Validate validates data against a schema
func (v *Validator) Validate(data interface{}, schema *Schema) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	prop := &Property{
		Type:       schema.Type,
		Properties: schema.Properties,
		Items:      schema.Items,
	}

	errors := v.validateValue(data, prop, "root")
	if len(errors) > 0 {
		result.Valid = false
		result.Errors = errors
	}

	return result
}

// validateValue validates a value against a property definition
func (v *Validator) validateValue(value interface{}, prop *Property, path string) []ValidationError {
	var errors []ValidationError

	if prop.Required && value == nil {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: "field is required",
			Code:    "REQUIRED",
		})
		return errors
	}

	// Nil and not required is valid
	if value == nil {
		return errors
	}

	switch prop.Type {
	case TypeString:
		if str, ok := value.(string); ok {
			errors = append(errors, v.validateString(str, prop.Validation, path)...)
		} else {
			errors = append(errors, typeMismatch(path, "string", value))
		}

	case TypeNumber:
		var num float64
		switch n := value.(type) {
		case float64:
			num = n
		case float32:
			num = float64(n)
		case int:
			num = float64(n)
		case int64:
			num = float64(n)
		case int32:
			num = float64(n)
		default:
			errors = append(errors, typeMismatch(path, "number", value))
			return errors
		}
		errors = append(errors, v.validateNumber(num, prop.Validation, path)...)

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			errors = append(errors, typeMismatch(path, "boolean", value))
		}

	case TypeArray:
		if arr, ok := value.([]interface{}); ok {
			errors = append(errors, v.validateArray(arr, prop, path)...)
		} else {
			errors = append(errors, typeMismatch(path, "array", value))
		}

	case TypeObject:
		if obj, ok := value.(map[string]interface{}); ok {
			errors = append(errors, v.validateObject(obj, prop, path)...)
		} else {
			errors = append(errors, typeMismatch(path, "object", value))
		}

	case TypeDate, TypeDateTime:
		// Dates travel as strings with format validation
		if str, ok := value.(string); ok {
			rules := prop.Validation
			if rules == nil || rules.Format == "" {
				format := "date"
				if prop.Type == TypeDateTime {
					format = "datetime"
				}
				rules = &ValidationRules{Format: format}
			}
			errors = append(errors, v.validateString(str, rules, path)...)
		} else {
			errors = append(errors, typeMismatch(path, "string for date/datetime", value))
		}

	case TypeAny:
		// No validation needed
	}

	return errors
}

// validateString validates string-specific rules
func (v *Validator) validateString(value string, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError

	if rules == nil {
		return errors
	}

	if rules.MinLength != nil && len(value) < *rules.MinLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d is less than minimum %d", len(value), *rules.MinLength),
			Code:    "MIN_LENGTH",
		})
	}

	if rules.MaxLength != nil && len(value) > *rules.MaxLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d exceeds maximum %d", len(value), *rules.MaxLength),
			Code:    "MAX_LENGTH",
		})
	}

	if rules.Pattern != "" {
		matched, err := regexp.MatchString(rules.Pattern, value)
		if err != nil {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid regex pattern: %v", err),
				Code:    "INVALID_PATTERN",
			})
		} else if !matched {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value does not match pattern '%s'", rules.Pattern),
				Code:    "PATTERN_MISMATCH",
			})
		}
	}

	if rules.Format != "" {
		if validator, exists := v.formatValidators[rules.Format]; exists {
			if !validator(value) {
				errors = append(errors, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("value does not match format '%s'", rules.Format),
					Code:    "FORMAT_MISMATCH",
				})
			}
		} else {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("unknown format validator: %s", rules.Format),
				Code:    "UNKNOWN_FORMAT",
			})
		}
	}

	if len(rules.Enum) > 0 {
		found := false
		for _, allowed := range rules.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value '%s' not in allowed values %v", value, rules.Enum),
				Code:    "ENUM_MISMATCH",
			})
		}
	}

	return errors
}

// validateNumber validates number-specific rules
func (v *Validator) validateNumber(value float64, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError

	if rules == nil {
		return errors
	}

	if rules.Minimum != nil && value < *rules.Minimum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v is less than minimum %v", value, *rules.Minimum),
			Code:    "MIN_VALUE",
		})
	}

	if rules.Maximum != nil && value > *rules.Maximum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v exceeds maximum %v", value, *rules.Maximum),
			Code:    "MAX_VALUE",
		})
	}

	return errors
}

// validateArray validates array-specific rules
func (v *Validator) validateArray(arr []interface{}, prop *Property, path string) []ValidationError {
	var errors []ValidationError

	if prop.Validation != nil {
		if prop.Validation.MinItems != nil && len(arr) < *prop.Validation.MinItems {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array length %d is less than minimum %d", len(arr), *prop.Validation.MinItems),
				Code:    "MIN_ITEMS",
			})
		}

		if prop.Validation.MaxItems != nil && len(arr) > *prop.Validation.MaxItems {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array length %d exceeds maximum %d", len(arr), *prop.Validation.MaxItems),
				Code:    "MAX_ITEMS",
			})
		}
	}

	if prop.Items != nil {
		for i, item := range arr {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			errors = append(errors, v.validateValue(item, prop.Items, itemPath)...)
		}
	}

	return errors
}

// validateObject validates object properties
func (v *Validator) validateObject(obj map[string]interface{}, prop *Property, path string) []ValidationError {
	var errors []ValidationError

	// An object with no declared properties is open; strict mode only rejects
	// undeclared names against a declared shape
	if prop.Properties == nil {
		return errors
	}

	if v.rejectUnknown {
		for name := range obj {
			if _, declared := prop.Properties[name]; !declared {
				errors = append(errors, unknownProperty(path, name))
			}
		}
	}

	for propName, propDef := range prop.Properties {
		value, exists := obj[propName]
		propPath := fmt.Sprintf("%s.%s", path, propName)

		if !exists && propDef.Required {
			errors = append(errors, ValidationError{
				Path:    propPath,
				Message: "required field missing",
				Code:    "REQUIRED",
			})
			continue
		}

		if exists {
			errors = append(errors, v.validateValue(value, propDef, propPath)...)
		}
	}

	return errors
}

func typeMismatch(path, expected string, got interface{}) ValidationError {
	return ValidationError{
		Path:    path,
		Message: fmt.Sprintf("expected %s, got %T", expected, got),
		Code:    "TYPE_MISMATCH",
	}
}

func unknownProperty(path, name string) ValidationError {
	return ValidationError{
		Path:    fmt.Sprintf("%s.%s", path, name),
		Message: "property is not declared in the schema",
		Code:    "UNKNOWN_PROPERTY",
	}
}

func validateEmail(value string) bool {
	_, err := mail.ParseAddress(value)
	return err == nil
}

func validateURI(value string) bool {
	u, err := url.Parse(value)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func validateDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func validateDateTime(value string) bool {
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}
