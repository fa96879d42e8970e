package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeStorage           ErrorType = "storage"
	ErrorTypeAPIKey            ErrorType = "api_key"
	ErrorTypeURLParse          ErrorType = "url_parse"
	ErrorTypeAlreadySubscribed ErrorType = "already_subscribed"
	ErrorTypeTransport         ErrorType = "transport"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeInvalidState      ErrorType = "invalid_state"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Fatal reports whether the error leaves the session unrecoverable.
func (e *AppError) Fatal() bool {
	return e.Type == ErrorTypeStorage || e.Type == ErrorTypeAPIKey
}

// NewStorageError creates an error for an unreadable persisted snapshot
func NewStorageError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Internal:   internal,
	}
}

// NewAPIKeyError creates an error for a missing catalog credential
func NewAPIKeyError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAPIKey,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewURLParseError creates an error for input that is not a channel URL
func NewURLParseError(input string) *AppError {
	return &AppError{
		Type:       ErrorTypeURLParse,
		Message:    fmt.Sprintf("Not a recognized channel URL: %q", input),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]interface{}{"input": input},
	}
}

// NewAlreadySubscribedError creates an error for a duplicate subscription
func NewAlreadySubscribedError(channelID, title string) *AppError {
	name := title
	if name == "" {
		name = channelID
	}
	return &AppError{
		Type:       ErrorTypeAlreadySubscribed,
		Message:    fmt.Sprintf("Already subscribed to %s", name),
		StatusCode: http.StatusConflict,
		Details:    map[string]interface{}{"channel_id": channelID},
	}
}

// NewTransportError creates a new catalog transport error
func NewTransportError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransport,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Internal:   internal,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInvalidStateError creates an error for an operation the current mode does not allow
func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidState,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewUnknownError creates the catch-all error
func NewUnknownError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnknown,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// FromError returns err as an *AppError, wrapping anything else as unknown.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewUnknownError("Unexpected error", err)
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Type == t
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}
