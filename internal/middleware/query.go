package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	apierrors "mertoncli/internal/errors"
)

// QueryParamValidator parses query parameters and answers 400 through the
// error handler when one is malformed. Each method returns false after it
// has written the error response.
type QueryParamValidator struct {
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewQueryParamValidator creates a new query parameter validator
func NewQueryParamValidator(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *QueryParamValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryParamValidator{
		logger:       logger.With(slog.String("component", "query_validator")),
		errorHandler: errorHandler,
	}
}

func (v *QueryParamValidator) reject(w http.ResponseWriter, r *http.Request, param, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	v.logger.DebugContext(r.Context(), "query parameter rejected",
		slog.String("param", param),
		slog.String("reason", msg))
	v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, msg))
}

// ValidateInt parses param as an integer within [min, max]
func (v *QueryParamValidator) ValidateInt(w http.ResponseWriter, r *http.Request, param string, min, max int, defaultValue int) (int, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return defaultValue, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.reject(w, r, param, "%s must be a valid integer", param)
		return 0, false
	}
	if n < min || n > max {
		v.reject(w, r, param, "%s must be between %d and %d", param, min, max)
		return 0, false
	}
	return n, true
}

// ValidateEnum accepts param only when it is one of allowed
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, defaultValue string) (string, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return defaultValue, true
	}
	if slices.Contains(allowed, raw) {
		return raw, true
	}
	v.reject(w, r, param, "%s must be one of: %s", param, strings.Join(allowed, ", "))
	return "", false
}

// ValidateTime parses param as an RFC 3339 timestamp. An absent parameter
// yields the zero time.
func (v *QueryParamValidator) ValidateTime(w http.ResponseWriter, r *http.Request, param string) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		v.reject(w, r, param, "%s must be an RFC 3339 timestamp", param)
		return time.Time{}, false
	}
	return t, true
}
