package merton

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrDomain = errors.New("value outside model domain")
	ErrInput  = errors.New("invalid calibration input")
)

// DomainError reports a pricing primitive evaluated outside its valid domain
type DomainError struct {
	Op    string  `json:"op"`
	Field string  `json:"field"`
	Value float64 `json:"value"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s=%g is outside the model domain", e.Op, e.Field, e.Value)
}

// Is matches ErrDomain
func (e *DomainError) Is(target error) bool {
	return target == ErrDomain
}

// InputError reports calibration input rejected before any iteration starts
type InputError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *InputError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s: %s (got %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is matches ErrInput
func (e *InputError) Is(target error) bool {
	return target == ErrInput
}

func domainError(op, field string, value float64) *DomainError {
	return &DomainError{Op: op, Field: field, Value: value}
}
