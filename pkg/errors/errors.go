// Package errors defines the structured error taxonomy shared by the catalog,
// signature, resolver, executor and gateway packages. Every error that crosses
// a component boundary carries a stable Kind string that external callers can
// branch on without matching free-text messages.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error classification.
type Kind string

// Error kinds returned by the subsystem.
const (
	// KindNodeNotFound indicates the requested node type is not in the catalog
	KindNodeNotFound Kind = "NodeNotFound"

	// KindOperationNotFound indicates the node exists but does not expose the operation
	KindOperationNotFound Kind = "OperationNotFound"

	// KindAuthRequired indicates the operation requires authentication and the
	// signature entry for the node is absent or incomplete
	KindAuthRequired Kind = "AuthRequired"

	// KindAuthResolutionError indicates an auth field references an environment
	// variable that is not set
	KindAuthResolutionError Kind = "AuthResolutionError"

	// KindParamValidationError indicates an unknown, missing or mistyped parameter
	KindParamValidationError Kind = "ParamValidationError"

	// KindExecutionTimeout indicates the node invocation exceeded its deadline
	KindExecutionTimeout Kind = "ExecutionTimeout"

	// KindExecutionFailure wraps an underlying node error with a sanitized message
	KindExecutionFailure Kind = "ExecutionFailure"

	// KindCatalogSyncPartialFailure indicates one or more node definitions were
	// skipped during a catalog build
	KindCatalogSyncPartialFailure Kind = "CatalogSyncPartialFailure"

	// KindValidationError indicates invalid input to a store or gateway call
	KindValidationError Kind = "ValidationError"

	// KindNotFound indicates a signature entry or gateway tool does not exist
	KindNotFound Kind = "NotFound"

	// KindInternal indicates an unexpected internal failure
	KindInternal Kind = "Internal"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	// Kind is the stable machine-readable classification
	Kind Kind

	// Message is a human-readable description
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new structured error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new structured error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new structured error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error. Errors that are not *Error (directly
// or through wrapping) classify as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
