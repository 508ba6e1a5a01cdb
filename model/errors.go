package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Report builder error codes.
const (
	ErrActionBlocked     = "ACTION_BLOCKED"
	ErrInvalidOperator   = "INVALID_OPERATOR"
	ErrValueShape        = "VALUE_SHAPE_MISMATCH"
	ErrUnknownField      = "UNKNOWN_FIELD"
	ErrSessionNotFound   = "SESSION_NOT_FOUND"
	ErrUnknownCommand    = "UNKNOWN_COMMAND"
	ErrInteractionActive = "INTERACTION_ACTIVE"
)

// ErrorEnvelope is the standard error response envelope returned by the
// service. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewActionBlockedError returns an ACTION_BLOCKED error for a gated action
// whose precondition does not hold.
func NewActionBlockedError(action, reason string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrActionBlocked,
		Message: fmt.Sprintf("%s is not available: %s", action, reason),
	}
}

// NewInvalidOperatorError returns an INVALID_OPERATOR error.
func NewInvalidOperatorError(op string, dataType DataType) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidOperator,
		Message: fmt.Sprintf("operator %q is not valid for %s fields", op, dataType),
	}
}

// NewValueShapeError returns a VALUE_SHAPE_MISMATCH error.
func NewValueShapeError(op string, want ValueShape) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValueShape,
		Message: fmt.Sprintf("operator %q requires a %s value", op, want),
	}
}

// NewValueTypeError returns a VALUE_SHAPE_MISMATCH error for an operand that
// cannot be read as the filter's data type.
func NewValueTypeError(op string, dataType DataType, operand any) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValueShape,
		Message: fmt.Sprintf("operator %q on a %s field cannot take %#v", op, dataType, operand),
	}
}

// NewUnknownFieldError returns an UNKNOWN_FIELD error.
func NewUnknownFieldError(ref string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUnknownField,
		Message: fmt.Sprintf("field %q does not belong to a selected data source", ref),
	}
}

// NewSessionNotFoundError returns a SESSION_NOT_FOUND error.
func NewSessionNotFoundError(sessionID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionNotFound,
		Message: fmt.Sprintf("editing session %q not found", sessionID),
	}
}
