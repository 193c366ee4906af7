package campaignflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeExternalService = "EXTERNAL_SERVICE_ERROR"
)

// Sentinels for errors.Is; any *Error matches the sentinel carrying its code.
var (
	ErrNotFound        = &Error{Code: ErrCodeNotFound, Message: "not found"}
	ErrConflict        = &Error{Code: ErrCodeConflict, Message: "conflict"}
	ErrValidation      = &Error{Code: ErrCodeValidation, Message: "validation failed"}
	ErrUnauthorized    = &Error{Code: ErrCodeUnauthorized, Message: "unauthorized"}
	ErrExternalService = &Error{Code: ErrCodeExternalService, Message: "external service error"}
)

// FieldError names one field that failed validation
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the single error type surfaced by the core
type Error struct {
	Code      string       `json:"kind"`
	Message   string       `json:"message"`
	Fields    []FieldError `json:"fields,omitempty"`
	Retryable bool         `json:"-"`

	// Err is the underlying cause; never exposed to callers
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "; %s %s", f.Field, f.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// NewValidationError creates a validation error listing the failed fields
func NewValidationError(message string, fields ...FieldError) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Fields: fields}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

// NewExternalServiceError wraps a storage or signalling backend failure.
// The message stays generic; the cause is kept for logging only.
func NewExternalServiceError(operation string, err error) *Error {
	return &Error{
		Code:      ErrCodeExternalService,
		Message:   operation + " failed",
		Retryable: true,
		Err:       err,
	}
}

// ErrMissingTenant is returned when no tenant context accompanies a request
var ErrMissingTenant = NewUnauthorizedError("missing tenant context")

// RequireTenant fails fast when the tenant id is empty
func RequireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrMissingTenant
	}
	return nil
}

// VersionConflict reports a stale expected version on a conditional write
func VersionConflict(key EntityKey, expected int64) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf("version %d of %s %s is stale", expected, key.Kind(), key),
	}
}

// EntityNotFound reports an absent entity
func EntityNotFound(key EntityKey) *Error {
	return NewNotFoundError(fmt.Sprintf("%s %s not found", key.Kind(), key))
}

// AsError converts any error into an *Error. Unknown errors become
// external-service errors; context cancellation is reported as retryable.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{
			Code:      ErrCodeExternalService,
			Message:   "request timed out or was cancelled",
			Retryable: true,
			Err:       err,
		}
	}

	return NewExternalServiceError("request", err)
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRetryable reports whether the caller may retry the same request
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
