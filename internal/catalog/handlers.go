package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-quote/internal/common"
)

// Handler exposes catalog lookup endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

type resolveResponse struct {
	Reference  string    `json:"reference"`
	Normalized string    `json:"normalized"`
	Candidates []Product `json:"candidates"`
}

// Resolve handles GET /api/v1/catalog/resolve?reference=.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	ref := strings.TrimSpace(r.URL.Query().Get("reference"))
	if ref == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "reference is required", nil)
		return
	}
	candidates, err := h.service.Resolve(r.Context(), ref)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resolveResponse{
		Reference:  ref,
		Normalized: NormalizeReference(ref),
		Candidates: candidates,
	}})
}

// Product handles GET /api/v1/catalog/products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrProductNotFound) {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "product not found", nil)
		return
	}
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Reload handles POST /api/v1/admin/catalog/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	res, err := h.service.Reload(r.Context())
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// ToAppError maps catalog errors onto API errors.
func ToAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrNotFound):
		return common.Fail(common.CodeNotFound, "no catalog entry matches the reference", err)
	case errors.Is(err, ErrProductNotFound):
		return common.Fail(common.CodeProductNotFound, err.Error(), err)
	case errors.Is(err, ErrUnavailable):
		return common.Fail(common.CodeUnavailable, "catalog source unavailable, retry later", err)
	default:
		return common.Fail(common.CodeInternal, "internal error", err)
	}
}
