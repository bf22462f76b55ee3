package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mertoncli/internal/merton"
	"mertoncli/internal/shared/testutil"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	type request struct {
		Debt float64 `validate:"gt=0"`
	}
	validationErr := validator.New().Struct(request{})
	require.Error(t, validationErr)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline exceeded", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"canceled", fmt.Errorf("asset value step: %w", context.Canceled), http.StatusGatewayTimeout, TypeTimeout},
		{"input error", &merton.InputError{Field: "equity", Message: "must be positive"}, http.StatusBadRequest, TypeCalibrationInput},
		{"wrapped domain error", fmt.Errorf("asset volatility step: %w", &merton.DomainError{Op: "d1", Field: "asset_vol", Value: math.NaN()}), http.StatusUnprocessableEntity, TypeCalibrationDomain},
		{"validator errors", validationErr, http.StatusBadRequest, TypeValidation},
		{"api error", ErrJobNotFound, http.StatusNotFound, TypeJobNotFound},
		{"queue full", ErrQueueFull, http.StatusServiceUnavailable, TypeQueueFull},
		{"app parsing error", NewParsingError("bad csv", nil), http.StatusBadRequest, TypeDataParsing},
		{"app not found", NewNotFoundError("firm"), http.StatusNotFound, TypeNotFound},
		{"app calibration error", NewCalibrationError("failed", nil), http.StatusInternalServerError, TypeCalibrationFailed},
		{"unknown error", fmt.Errorf("something odd"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, false)

			req := httptest.NewRequest(http.MethodPost, "/api/calibrations/single", nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
			w := httptest.NewRecorder()

			handler.HandleError(w, req, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeProblem(t, w)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, "req-1", body["trace_id"])
			assert.Equal(t, "/api/calibrations/single", body["instance"])
			assert.NotContains(t, body, "stack")
		})
	}
}

func TestErrorHandler_NilError(t *testing.T) {
	handler := NewErrorHandler(nil, false)
	w := httptest.NewRecorder()

	handler.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, 0, w.Body.Len())
}

func TestErrorHandler_Extensions(t *testing.T) {
	handler := NewErrorHandler(slog.Default(), false)
	req := httptest.NewRequest(http.MethodPost, "/api/calibrations/single", nil)

	problem := handler.ErrorToProblem(&merton.InputError{Field: "debt", Message: "must be positive"}, req)
	assert.Equal(t, "debt", problem.Extensions["field"])

	problem = handler.ErrorToProblem(&merton.DomainError{Op: "normal cdf", Field: "stddev", Value: math.Inf(1)}, req)
	assert.Equal(t, "normal cdf", problem.Extensions["operation"])
	assert.Equal(t, "+Inf", problem.Extensions["value"])
	_, err := json.Marshal(problem)
	assert.NoError(t, err)

	problem = handler.ErrorToProblem(ErrValidation("window", "too short"), req)
	assert.Equal(t, "VALIDATION_FAILED", problem.Extensions["error_code"])
	assert.NotNil(t, problem.Extensions["details"])

	problem = handler.ErrorToProblem(NewParsingError("bad", nil).WithContext("row", 4), req)
	assert.Equal(t, 4, problem.Extensions["row"])
}

func TestErrorHandler_StackOnlyForServerErrors(t *testing.T) {
	handler := NewErrorHandler(slog.Default(), true)

	w := httptest.NewRecorder()
	handler.HandleError(w, httptest.NewRequest(http.MethodGet, "/x", nil), fmt.Errorf("unexpected"))
	assert.Contains(t, decodeProblem(t, w), "stack")

	w = httptest.NewRecorder()
	handler.HandleError(w, httptest.NewRequest(http.MethodGet, "/x", nil), ErrJobNotFound)
	assert.NotContains(t, decodeProblem(t, w), "stack")
}

func TestFromValidator(t *testing.T) {
	type firm struct {
		Code   string  `validate:"required"`
		Window int     `validate:"min=2"`
		Rate   float64 `validate:"gte=-1,lte=1"`
	}
	err := validator.New().Struct(firm{Window: 1, Rate: 2})
	require.Error(t, err)

	errs := FromValidator(err.(validator.ValidationErrors))
	require.Len(t, errs, 3)
	assert.Equal(t, "firm.Code", errs[0].Field)
	assert.Equal(t, "failed on the 'required' rule", errs[0].Message)
	assert.Equal(t, "failed on the 'min=2' rule", errs[1].Message)
}

func TestErrorHandler_PanicAndRouting(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, true)

	w := httptest.NewRecorder()
	handler.HandlePanic(w, httptest.NewRequest(http.MethodGet, "/boom", nil), "nil map write")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, "nil map write", body["panic"])
	testutil.AssertLogContains(t, logs, slog.LevelError, "panic recovered")
	testutil.AssertLogAttr(t, logs, "component", "error_handler")

	w = httptest.NewRecorder()
	handler.NotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.MethodNotAllowed(w, httptest.NewRequest(http.MethodPut, "/api/jobs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, TypeMethodNotAllowed, decodeProblem(t, w)["type"])
}
