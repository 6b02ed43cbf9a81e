package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diveops/internal/services"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"store reachable", nil, http.StatusOK, services.StatusOK},
		{"store unreachable", errors.New("connection refused"), http.StatusServiceUnavailable, services.StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := services.NewHealthService(services.HealthDeps{
				Store:   pingerFunc(func(context.Context) error { return tt.pingErr }),
				Version: "test",
				Logger:  testLogger(),
			})
			h := NewHealthHandler(hs, testLogger())

			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Equal(t, tt.wantBody, decode(t, rec)["status"])
		})
	}
}

func TestHealthHandler_LivenessAndVersion(t *testing.T) {
	h := NewHealthHandler(services.NewHealthService(services.HealthDeps{Version: "1.2.3"}), nil)

	rec := httptest.NewRecorder()
	h.LivenessCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.StatusAlive, decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	h.Version(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", decode(t, rec)["version"])
}
