package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "diveops/internal/errors"
	"diveops/internal/infrastructure"
	"diveops/internal/middleware"
	api "diveops/pkg/contracts/api/v1"
)

const tracerName = "diveops/transport/http"

// WizardHandler serves the wizard session API
type WizardHandler struct {
	service   WizardService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewWizardHandler creates a wizard handler
func NewWizardHandler(service WizardService, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *WizardHandler {
	if service == nil {
		panic("wizard service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &WizardHandler{
		service:   service,
		validator: middleware.NewValidator(),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "wizard")),
		tracer:    otel.Tracer(tracerName),
	}
}

// Routes returns the router mounted at /api/wizard/sessions
func (h *WizardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateSession)
	r.Get("/", h.ListSessions)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)
		r.Post("/navigate", h.Navigate)
		r.Post("/refresh", h.Refresh)
		r.Post("/steps/{step}/complete", h.CompleteStep)
	})
	return r
}

func (h *WizardHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.errors.HandleError(w, r, serviceError(err))
}

// CreateSession handles POST /api/wizard/sessions
func (h *WizardHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "wizard.create_session",
		trace.WithAttributes(attribute.String("record.id", req.RecordID)))
	defer span.End()

	snap, err := h.service.CreateSession(ctx, req.RecordID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		h.fail(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("session.id", snap.SessionID))

	h.logger.InfoContext(ctx, "wizard_session_opened",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("session_id", snap.SessionID),
		slog.String("record_id", snap.RecordID))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, snap)
}

// ListSessions handles GET /api/wizard/sessions
func (h *WizardHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.service.ListSessions()
	render.JSON(w, r, api.ListResponse{Items: sessions, Count: len(sessions)})
}

// GetSession handles GET /api/wizard/sessions/{id}
func (h *WizardHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, snap)
}

// CloseSession handles DELETE /api/wizard/sessions/{id}
func (h *WizardHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CloseSession(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "wizard_session_closed", slog.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Navigate handles POST /api/wizard/sessions/{id}/navigate. A move the
// guards reject still answers 200 with moved=false.
func (h *WizardHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req api.NavigateRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Action == api.ActionGoTo && req.Index == nil {
		h.fail(w, r, apierrors.ErrValidation("index", "index is required for goto"))
		return
	}

	moved, snap, err := h.service.Navigate(r.Context(), chi.URLParam(r, "id"), req.Action, req.Index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	infrastructure.AddSpanEvent(r.Context(), "wizard.navigate", map[string]interface{}{
		"action": req.Action,
		"moved":  moved,
		"index":  snap.CurrentStepIndex,
	})
	render.JSON(w, r, api.NavigateResponse{Moved: moved, Snapshot: snap})
}

// CompleteStep handles POST /api/wizard/sessions/{id}/steps/{step}/complete.
// Writes for later steps are debounced, so the answer is 202.
func (h *WizardHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	var req api.CompleteStepRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	id, step := chi.URLParam(r, "id"), chi.URLParam(r, "step")
	ctx, span := h.tracer.Start(r.Context(), "wizard.complete_step",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("wizard.step", step),
			attribute.Int("wizard.fields", len(req.Data)),
		))
	defer span.End()

	snap, err := h.service.CompleteStep(ctx, id, step, req.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete step failed")
		h.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, snap)
}

// Refresh handles POST /api/wizard/sessions/{id}/refresh
func (h *WizardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, snap)
}
