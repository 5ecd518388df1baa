package reconcile

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/common"
	"github.com/noah-isme/backend-quote/internal/export"
	"github.com/noah-isme/backend-quote/internal/obs"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

// Handler exposes reconciliation endpoints.
type Handler struct {
	service   *Service
	exporter  export.Writer
	validator *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service   *Service
	Exporter  export.Writer
	Validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, exporter: cfg.Exporter, validator: cfg.Validator}
}

// Create handles POST /api/v1/reconciliations.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ParseRequest
	if err := common.DecodeJSON(r, &req, h.validator); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.service.Reconcile(r.Context(), req)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	status := http.StatusOK
	if res.ID != "" {
		status = http.StatusCreated
	}
	common.JSON(w, status, map[string]any{"data": res})
}

// Submit handles POST /api/v1/reconciliations/async.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ParseRequest
	if err := common.DecodeJSON(r, &req, h.validator); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.service.Submit(r.Context(), req)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": sess})
}

// Get handles GET /api/v1/reconciliations/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.service.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	sess.Matches = nil
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

// RecalculateSession handles POST /api/v1/reconciliations/{id}/recalculate.
func (h *Handler) RecalculateSession(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var p Parameters
	if err := common.DecodeJSON(r, &p, h.validator); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.service.RecalculateSession(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Recalculate handles POST /api/v1/reconciliations/recalculate for callers
// that hold their own match set.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req RecalculateRequest
	if err := common.DecodeJSON(r, &req, h.validator); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.service.Recalculate(r.Context(), req)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Export handles GET /api/v1/reconciliations/{id}/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.service.Result(r.Context(), id)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	var buf bytes.Buffer
	if err := h.exporter.WriteXLSX(&buf, Table(res)); err != nil {
		obs.ObserveExport("reconcile", "error")
		common.WriteError(w, common.Fail(common.CodeInternal, "export failed", err))
		return
	}
	obs.ObserveExport("reconcile", "ok")
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "reconciliation-"+id+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "reconcile service not configured", nil)
		return false
	}
	return true
}

// ToAppError maps reconciliation errors onto API errors.
func ToAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case errors.Is(err, pricing.ErrInvalidParams), errors.Is(err, ErrTooManyRows),
		errors.Is(err, ErrInvalidMatchSet):
		return common.BadRequest(err.Error(), err)
	case errors.Is(err, ErrSessionNotFound):
		return common.Fail(common.CodeNotFound, "reconciliation session not found", err)
	case errors.Is(err, ErrSessionNotReady):
		return common.Fail(common.CodeConflict, "reconciliation session is not ready", err)
	case errors.Is(err, catalog.ErrUnavailable), errors.Is(err, pricing.ErrScheduleUnavailable):
		return common.Fail(common.CodeUnavailable, "pricing source unavailable, retry later", err)
	default:
		return common.Fail(common.CodeInternal, "internal error", err)
	}
}
