package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

// Common error codes
const (
	// Client errors (4xx)
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeTaskNotFound      = "TASK_NOT_FOUND"
	CodeUnsupportedURL    = "UNSUPPORTED_URL"

	// Server errors (5xx)
	CodeInternalError    = "INTERNAL_ERROR"
	CodePersistenceError = "PERSISTENCE_ERROR"
	CodeShuttingDown     = "SHUTTING_DOWN"

	// External collaborator errors
	CodeResolverError   = "RESOLVER_ERROR"
	CodeFetchError      = "FETCH_ERROR"
	CodeExternalTimeout = "EXTERNAL_TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// ErrorResponse is the JSON structure returned to clients
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Client error constructors

func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, CategoryClient, http.StatusBadRequest)
}

// IllegalTransition reports a control operation applied to a task whose
// current status does not permit it.
func IllegalTransition(from, to string) *AppError {
	return New(CodeIllegalTransition,
		fmt.Sprintf("cannot transition task from %s to %s", from, to),
		CategoryClient, http.StatusConflict)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryClient, http.StatusNotFound)
}

func TaskNotFound(taskID string) *AppError {
	return New(CodeTaskNotFound, fmt.Sprintf("task %s not found", taskID), CategoryClient, http.StatusNotFound)
}

func UnsupportedURL(url string) *AppError {
	return New(CodeUnsupportedURL, fmt.Sprintf("unsupported url: %s", url), CategoryClient, http.StatusBadRequest)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

// PersistenceError covers snapshot and history write failures. These are
// non-fatal: in-memory state stays authoritative for the running process.
func PersistenceError(message string) *AppError {
	return New(CodePersistenceError, message, CategoryServer, http.StatusInternalServerError)
}

func ShuttingDown() *AppError {
	return New(CodeShuttingDown, "daemon is shutting down", CategoryServer, http.StatusServiceUnavailable)
}

// External collaborator error constructors

func ResolverError(message string) *AppError {
	return New(CodeResolverError, message, CategoryExternal, http.StatusBadGateway)
}

func FetchError(message string) *AppError {
	return New(CodeFetchError, message, CategoryExternal, http.StatusBadGateway)
}

func ExternalTimeout(service string) *AppError {
	return New(CodeExternalTimeout, fmt.Sprintf("%s request timed out", service), CategoryExternal, http.StatusGatewayTimeout)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	var appErr *AppError

	switch e := err.(type) {
	case *AppError:
		appErr = e
	default:
		// Wrap unknown errors as internal errors
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}

	resp := ErrorResponse{
		Error: ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
			Details:   appErr.Details,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	// External collaborator errors are typically retryable
	if appErr.Category == CategoryExternal {
		return appErr.Code != CodeFetchError
	}

	return false
}

// IsClientError returns true if the error is a client error
func IsClientError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryClient
}

// IsServerError returns true if the error is a server error
func IsServerError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryServer
}

// IsExternalError returns true if the error is an external collaborator error
func IsExternalError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryExternal
}

// Code extracts the machine-readable code from an error, or
// CodeInternalError when the error is not an AppError.
func Code(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeInternalError
}
