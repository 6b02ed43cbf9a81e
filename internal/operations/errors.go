package operations

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypePersistence  ErrorType = "persistence"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInvalidState ErrorType = "invalid_state"
)

var (
	// ErrSessionClosed is returned by session methods called after Close
	ErrSessionClosed = errors.New("wizard session closed")
	// ErrUnknownStep is wrapped by errors for step ids outside the step table
	ErrUnknownStep = errors.New("unknown step")
	// ErrNoRecord is wrapped when an operation needs a record identity that does not exist yet
	ErrNoRecord = errors.New("operation record not found")
)

// OperationError is a typed wizard error carrying the step it concerns.
type OperationError struct {
	Type    ErrorType              `json:"type"`
	Step    string                 `json:"step,omitempty"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(step, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
	}
}

// NewPersistenceError wraps a record store failure. op names the store call.
func NewPersistenceError(op string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypePersistence,
		Message: fmt.Sprintf("%s failed", op),
		Cause:   cause,
		Context: map[string]interface{}{"op": op},
	}
}

// NewNotFoundError creates a not-found error for the given resource id
func NewNotFoundError(resource, id string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s %q not found", resource, id),
		Cause:   ErrNoRecord,
		Context: map[string]interface{}{"resource": resource, "id": id},
	}
}

// NewInvalidStateError reports an operation that is not allowed in the current session state
func NewInvalidStateError(step, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeInvalidState,
		Step:    step,
		Message: message,
	}
}

// IsPersistenceError reports whether err is, or wraps, a persistence error
func IsPersistenceError(err error) bool {
	return GetErrorType(err) == ErrorTypePersistence
}

// GetErrorType returns the type of the first OperationError in err's chain
func GetErrorType(err error) ErrorType {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ""
}

// WithContext adds a context value to the error and returns it
func (e *OperationError) WithContext(key string, value interface{}) *OperationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}
