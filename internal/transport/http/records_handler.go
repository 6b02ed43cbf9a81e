package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "diveops/internal/errors"
	api "diveops/pkg/contracts/api/v1"
)

// RecordsHandler serves operation records and their safety documents
type RecordsHandler struct {
	service RecordService
	errors  *apierrors.ErrorHandler
	logger  *slog.Logger
}

// NewRecordsHandler creates a records handler
func NewRecordsHandler(service RecordService, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *RecordsHandler {
	if service == nil {
		panic("record service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &RecordsHandler{
		service: service,
		errors:  errHandler,
		logger:  logger.With(slog.String("handler", "records")),
	}
}

// Routes returns the router mounted at /api/records
func (h *RecordsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRecords)
	r.Get("/{id}", h.GetRecord)
	r.Post("/{id}/documents/{kind}/sign", h.SignDocument)
	r.Delete("/{id}/documents/{kind}/sign", h.RevokeDocument)
	return r
}

// ListRecords handles GET /api/records
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListRecords(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, serviceError(err))
		return
	}
	render.JSON(w, r, api.ListResponse{Items: records, Count: len(records)})
}

// GetRecord handles GET /api/records/{id}
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, serviceError(err))
		return
	}
	render.JSON(w, r, rec)
}

// SignDocument handles POST /api/records/{id}/documents/{kind}/sign
func (h *RecordsHandler) SignDocument(w http.ResponseWriter, r *http.Request) {
	id, kind := chi.URLParam(r, "id"), chi.URLParam(r, "kind")
	if err := h.service.SignDocument(r.Context(), id, kind); err != nil {
		h.errors.HandleError(w, r, serviceError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeDocument handles DELETE /api/records/{id}/documents/{kind}/sign
func (h *RecordsHandler) RevokeDocument(w http.ResponseWriter, r *http.Request) {
	id, kind := chi.URLParam(r, "id"), chi.URLParam(r, "kind")
	if err := h.service.RevokeDocument(r.Context(), id, kind); err != nil {
		h.errors.HandleError(w, r, serviceError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
