// Package errors provides structured error handling for the postMessage
// transport. It defines error types that carry JSON-RPC style codes,
// a category for classification, and context describing where in the
// transport lifecycle the error occurred.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category represents the type/category of an error for classification and handling.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryTransport  Category = "transport"
	CategoryProtocol   Category = "protocol"
	CategoryTimeout    Category = "timeout"
	CategorySecurity   Category = "security"
	CategoryInternal   Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context provides additional context about where and when an error occurred.
type Context struct {
	SessionID string    `json:"session_id,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Method    string    `json:"method,omitempty"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TransportError defines the interface for all structured errors produced
// by this module.
type TransportError interface {
	error

	// Code returns the JSON-RPC style error code.
	Code() int

	// Message returns a human-readable error message.
	Message() string

	// Details returns detailed technical description for debugging.
	Details() string

	// Category returns the error category for classification.
	Category() Category

	// Severity returns the error severity level.
	Severity() Severity

	// Context returns the error context information.
	Context() *Context

	// WithContext returns a new error with the provided context.
	WithContext(ctx *Context) TransportError

	// WithDetail returns a new error with additional detail.
	WithDetail(detail string) TransportError

	// Unwrap returns the underlying error for error chain traversal.
	Unwrap() error

	// ToJSON returns the error as a JSON-serializable map.
	ToJSON() map[string]interface{}
}

// baseError implements the TransportError interface.
type baseError struct {
	code     int
	message  string
	details  string
	category Category
	severity Severity
	context  *Context
	cause    error
}

// Error implements the error interface.
func (e *baseError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

func (e *baseError) Code() int          { return e.code }
func (e *baseError) Message() string    { return e.message }
func (e *baseError) Details() string    { return e.details }
func (e *baseError) Category() Category { return e.category }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) Context() *Context  { return e.context }

// WithContext returns a new error with the provided context.
func (e *baseError) WithContext(ctx *Context) TransportError {
	newErr := *e
	if ctx != nil && ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now()
	}
	newErr.context = ctx
	return &newErr
}

// WithDetail returns a new error with additional detail.
func (e *baseError) WithDetail(detail string) TransportError {
	newErr := *e
	if newErr.details != "" {
		newErr.details = fmt.Sprintf("%s; %s", newErr.details, detail)
	} else {
		newErr.details = detail
	}
	return &newErr
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// ToJSON returns the error as a JSON-serializable map.
func (e *baseError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}

	if e.details != "" {
		result["details"] = e.details
	}
	if e.context != nil {
		result["context"] = e.context
	}
	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}

	return result
}

// MarshalJSON implements json.Marshaler for baseError.
func (e *baseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// NewError creates a new TransportError with the specified parameters.
func NewError(code int, message string, category Category, severity Severity) TransportError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// WrapError wraps an existing error as a TransportError.
func WrapError(err error, code int, message string, category Category, severity Severity) TransportError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    err,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// AsTransportError extracts a TransportError from any error.
func AsTransportError(err error) (TransportError, bool) {
	if err == nil {
		return nil, false
	}
	if te, ok := err.(TransportError); ok {
		return te, true
	}
	return nil, false
}

// IsCategory checks if an error is of a specific category.
func IsCategory(err error, category Category) bool {
	if te, ok := AsTransportError(err); ok {
		return te.Category() == category
	}
	return false
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code int) bool {
	if te, ok := AsTransportError(err); ok {
		return te.Code() == code
	}
	return false
}
