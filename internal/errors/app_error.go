package errors

import (
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError
type ErrorType string

const (
	ErrTypeDomain      ErrorType = "DOMAIN"
	ErrTypeInput       ErrorType = "INPUT"
	ErrTypeCalibration ErrorType = "CALIBRATION"
	ErrTypeParsing     ErrorType = "PARSING"
	ErrTypeStorage     ErrorType = "STORAGE"
	ErrTypeValidation  ErrorType = "VALIDATION"
	ErrTypeNotFound    ErrorType = "NOT_FOUND"
)

// appProblem is how one ErrorType is rendered over HTTP
type appProblem struct {
	status      int
	problemType string
	title       string
}

var appProblems = map[ErrorType]appProblem{
	ErrTypeValidation:  {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	ErrTypeInput:       {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	ErrTypeParsing:     {http.StatusBadRequest, TypeDataParsing, "Dataset Could Not Be Parsed"},
	ErrTypeDomain:      {http.StatusUnprocessableEntity, TypeCalibrationDomain, "Outside Model Domain"},
	ErrTypeNotFound:    {http.StatusNotFound, TypeNotFound, "Resource Not Found"},
	ErrTypeCalibration: {http.StatusInternalServerError, TypeCalibrationFailed, "Calibration Failed"},
	ErrTypeStorage:     {http.StatusInternalServerError, TypeInternal, "Internal Server Error"},
}

// AppError is an internal failure raised below the HTTP layer: dataset
// loading, report writing, calibration runs. Context entries become problem
// extensions when the error reaches a handler.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext records key=value on e and returns it for chaining
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// Problem renders e as a problem document for instance
func (e *AppError) Problem(instance string) *ProblemDetails {
	p, ok := appProblems[e.Type]
	if !ok {
		p = appProblems[ErrTypeStorage]
	}
	problem := NewProblemDetails(p.status, p.problemType, p.title, e.Message, instance)
	for k, v := range e.Context {
		problem.WithExtension(k, v)
	}
	return problem
}

func newAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause}
}

// NewCalibrationError wraps an unexpected failure inside a calibration run
func NewCalibrationError(message string, cause error) *AppError {
	return newAppError(ErrTypeCalibration, message, cause)
}

// NewParsingError reports a dataset that could not be decoded
func NewParsingError(message string, cause error) *AppError {
	return newAppError(ErrTypeParsing, message, cause)
}

// NewStorageError reports a filesystem failure
func NewStorageError(message string, cause error) *AppError {
	return newAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError reports data rejected before it is written or used
func NewAppValidationError(message string) *AppError {
	return newAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError reports a missing firm, sheet or file
func NewNotFoundError(resource string) *AppError {
	return newAppError(ErrTypeNotFound, resource+" not found", nil)
}
