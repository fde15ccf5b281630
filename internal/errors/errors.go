package errors

import "fmt"

// ErrorCode represents a handoff error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrInvalidID      ErrorCode = "INVALID_ID"      // 400
	ErrInvalidRef     ErrorCode = "INVALID_REF"     // 422
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// HandoffError represents a structured error with code, status, and details.
type HandoffError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *HandoffError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *HandoffError {
	return &HandoffError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidID creates a 400 error for a handoff id that fails the allow-list.
// The offending id is not echoed back in details.
func NewInvalidID() *HandoffError {
	return &HandoffError{
		Code:    ErrInvalidID,
		Status:  400,
		Message: "handoff id must contain only letters, digits, '-' and '_' (max 128 chars)",
	}
}

// NewInvalidRef creates a 422 error for a file reference that violates
// its field constraints.
func NewInvalidRef(field, reason string) *HandoffError {
	return &HandoffError{
		Code:    ErrInvalidRef,
		Status:  422,
		Message: fmt.Sprintf("invalid ref %s: %s", field, reason),
		Details: map[string]any{"field": field},
	}
}

// NewNotFound creates a 404 error for a missing handoff or pack.
func NewNotFound(identifier string) *HandoffError {
	return &HandoffError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("handoff not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewCancelled creates a 499 error for an operation stopped by its context.
func NewCancelled(operation string) *HandoffError {
	return &HandoffError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *HandoffError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &HandoffError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a HandoffError with the given code.
func Is(err error, code ErrorCode) bool {
	if hErr, ok := err.(*HandoffError); ok {
		return hErr.Code == code
	}
	return false
}
