package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response for the local HTTP
// surface consumed by the renderer.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")
	ErrNotFound         = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrInternalServer   = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// FromEngine maps an engine error kind onto an HTTP response. The local API
// never surfaces raw internal errors to the renderer.
func FromEngine(err error) *APIError {
	switch KindOf(err) {
	case KindTransientNetwork:
		return NewWithDetails(http.StatusServiceUnavailable, "AUTHORITY_UNREACHABLE",
			"License authority unreachable, operating offline", err.Error())
	case KindCorruptState:
		return NewWithDetails(http.StatusOK, "STATE_RESET",
			"Persisted state was corrupt and has been reset", err.Error())
	case KindIntegrityViolation:
		return NewWithDetails(http.StatusForbidden, "DEVICE_RESTRICTED",
			"Device integrity check failed, features restricted", err.Error())
	case KindBestEffort:
		return NewWithDetails(http.StatusOK, "SIDE_EFFECT_FAILED",
			"A non-critical side effect failed", err.Error())
	default:
		return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR",
			"Internal server error", err.Error())
	}
}

// ErrValidation creates a validation error with field details
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed",
		map[string]string{"field": field, "message": message})
}
