package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError is an error with a stable machine-readable code. The handler
// renders it as problem details carrying error_code and details extensions.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// WithDetails returns a copy of e carrying details. Predefined errors are
// shared, so they are never mutated.
func (e *APIError) WithDetails(details interface{}) *APIError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage returns a copy of e with a more specific message
func (e *APIError) WithMessage(format string, args ...interface{}) *APIError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// ValidationError describes one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// problemTypes maps error codes to their problem type URI
var problemTypes = map[string]string{}

func define(status int, code, problemType, message string) *APIError {
	problemTypes[code] = problemType
	return &APIError{StatusCode: status, ErrorCode: code, Message: message}
}

// ProblemType returns the problem type URI registered for code
func ProblemType(code string) string {
	if t, ok := problemTypes[code]; ok {
		return t
	}
	return TypeInternal
}

// Request errors
var (
	ErrInvalidRequest       = define(http.StatusBadRequest, "INVALID_REQUEST", TypeValidation, "Invalid request format")
	ErrInvalidJSON          = define(http.StatusBadRequest, "INVALID_JSON", TypeValidation, "Request body contains invalid JSON")
	ErrMissingContentType   = define(http.StatusBadRequest, "MISSING_CONTENT_TYPE", TypeValidation, "Content-Type header is required")
	ErrValidationFailed     = define(http.StatusBadRequest, "VALIDATION_FAILED", TypeValidation, "Request validation failed")
	ErrBatchTooLarge        = define(http.StatusBadRequest, "BATCH_TOO_LARGE", TypeValidation, "Batch exceeds the maximum number of firms")
	ErrPayloadTooLarge      = define(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", TypePayloadTooLarge, "Request body exceeds maximum allowed size")
	ErrUnsupportedMediaType = define(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", TypeUnsupportedMedia, "Unsupported content type")
	ErrRateLimitExceeded    = define(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", TypeRateLimit, "Rate limit exceeded")
)

// Resource and job errors
var (
	ErrNotFound    = define(http.StatusNotFound, "NOT_FOUND", TypeNotFound, "Resource not found")
	ErrJobNotFound = define(http.StatusNotFound, "JOB_NOT_FOUND", TypeJobNotFound, "Calibration job not found")
	ErrJobFinished = define(http.StatusConflict, "JOB_FINISHED", TypeJobFinished, "Calibration job already finished")
	ErrQueueFull   = define(http.StatusServiceUnavailable, "QUEUE_FULL", TypeQueueFull, "Job queue is full")
)

// ErrServiceUnavailable is returned while the job queue is stopped
var ErrServiceUnavailable = define(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", TypeServiceDown, "Service temporarily unavailable")

// InvalidRequestWithError reports a body that could not be decoded
func InvalidRequestWithError(err error) *APIError {
	return ErrInvalidRequest.WithDetails(err.Error())
}

// ErrValidation reports a single rejected field
func ErrValidation(field, message string) *APIError {
	return ErrValidationFailed.WithDetails(ValidationError{Field: field, Message: message})
}

// NotFoundError reports a missing resource by name
func NotFoundError(resource string) *APIError {
	return ErrNotFound.WithMessage("%s not found", resource).WithDetails(resource)
}
