package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorRender(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	require.NoError(t, render.Render(w, r, ErrSessionLimit))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var body APIError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "SESSION_LIMIT", body.ErrorCode)
}

func TestAPIErrorIsAnError(t *testing.T) {
	var err error = NotImplemented("document signing is not supported by this store")
	var apiErr *APIError

	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotImplemented, apiErr.StatusCode)
	assert.Equal(t, "NOT_IMPLEMENTED", apiErr.ErrorCode)
	assert.Equal(t, "document signing is not supported by this store", err.Error())
}

func TestValidationHelpers(t *testing.T) {
	single := ErrValidation("action", "action is required")
	assert.Equal(t, http.StatusBadRequest, single.StatusCode)
	assert.Equal(t, ValidationError{Field: "action", Message: "action is required"}, single.Details)

	wrapped := InvalidRequestWithError(errors.New("unexpected EOF"))
	assert.Equal(t, "INVALID_REQUEST", wrapped.ErrorCode)
	assert.Equal(t, "unexpected EOF", wrapped.Details)
}

func TestProblemDetailsMarshalFlattensExtensions(t *testing.T) {
	pd := NewProblemDetails(http.StatusConflict, TypeInvalidState, "Invalid Wizard State", "no record", "/api/x").
		WithExtension("step", "team").
		WithExtension("status", 999)

	data, err := json.Marshal(pd)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "/errors/wizard/invalid-state",
		"title": "Invalid Wizard State",
		"status": 409,
		"detail": "no record",
		"instance": "/api/x",
		"step": "team"
	}`, string(data), "extensions never override standard members")
}

func TestWriteProblem(t *testing.T) {
	w := httptest.NewRecorder()
	WriteProblem(w, NewProblemDetails(http.StatusTooManyRequests, TypeRateLimit, "Too Many Requests", "", ""))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"type":"/errors/rate-limit","title":"Too Many Requests","status":429}`, w.Body.String())
}
