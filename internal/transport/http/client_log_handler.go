package http

import (
	"log/slog"
	"net/http"

	apierrors "diveops/internal/errors"
	"diveops/internal/middleware"
)

// ClientLogHandler writes log entries posted by the browser console into
// the server log
type ClientLogHandler struct {
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(errHandler *apierrors.ErrorHandler, logger *slog.Logger) *ClientLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &ClientLogHandler{
		validator: middleware.NewValidator(),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "client_log")),
	}
}

// LogRequest represents a client log entry
type LogRequest struct {
	Level     string         `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Message   string         `json:"message" validate:"required,max=2000"`
	SessionID string         `json:"session_id,omitempty" validate:"omitempty,max=64"`
	Source    string         `json:"source,omitempty" validate:"omitempty,max=200"`
	Data      map[string]any `json:"data,omitempty"`
}

func (req LogRequest) level() slog.Level {
	switch req.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handle processes POST /api/logs
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	attrs := []slog.Attr{
		slog.String("client_source", req.Source),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if req.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", req.SessionID))
	}
	if req.Data != nil {
		attrs = append(attrs, slog.Any("data", req.Data))
	}
	h.logger.LogAttrs(r.Context(), req.level(), req.Message, attrs...)

	w.WriteHeader(http.StatusNoContent)
}
