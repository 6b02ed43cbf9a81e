package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"diveops/internal/services"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health. Anything but ok answers 503.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.HealthCheck(r.Context())
	code := http.StatusOK
	if status.Status != services.StatusOK {
		h.logger.WarnContext(r.Context(), "health_degraded", slog.String("status", status.Status))
		code = http.StatusServiceUnavailable
	}
	h.respond(w, r, code, status)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, h.service.LivenessCheck(r.Context()))
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, h.service.Version())
}

// respond writes body uncached
func (h *HealthHandler) respond(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Cache-Control", "no-store")
	render.Status(r, code)
	render.JSON(w, r, body)
}
