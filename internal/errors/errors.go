// Package errors provides the structured error taxonomy for the FlowMail
// dependency core. Graph-shape misses (a link request with no matching
// definitions, a lookup of an unknown instance) are not errors at all —
// those paths return empty results and log. CoreError is reserved for
// programmer misuse and for hook failures surfaced during propagation.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeLookup      ErrorType = "lookup"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypePropagation ErrorType = "propagation"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeInternal    ErrorType = "internal"
)

// CoreError is a structured error type with context.
type CoreError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *CoreError) Is(target error) bool {
	var t *CoreError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *CoreError) WithContext(key string, value interface{}) *CoreError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *CoreError) WithComponent(component string) *CoreError {
	e.Component = component

	return e
}

// NewLookupError creates a lookup error.
func NewLookupError(code, message string) *CoreError {
	return &CoreError{
		Type:        ErrorTypeLookup,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *CoreError {
	return &CoreError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewPropagationError creates a propagation error for a hook failure
// during a data update.
func NewPropagationError(code, message string, cause error) *CoreError {
	return &CoreError{
		Type:        ErrorTypePropagation,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *CoreError {
	return &CoreError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error for programmer misuse.
func NewInternalError(code, message string, cause error) *CoreError {
	return &CoreError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable reports whether the error allows the caller to continue.
func IsRecoverable(err error) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Recoverable
	}

	return false
}
