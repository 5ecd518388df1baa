package quote

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/common"
	"github.com/noah-isme/backend-quote/internal/export"
	"github.com/noah-isme/backend-quote/internal/obs"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

// Handler exposes quote endpoints.
type Handler struct {
	composer  *Composer
	tiers     pricing.TierSchedule
	exporter  export.Writer
	validator *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Composer  *Composer
	Tiers     pricing.TierSchedule
	Exporter  export.Writer
	Validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{composer: cfg.Composer, tiers: cfg.Tiers, exporter: cfg.Exporter, validator: cfg.Validator}
}

// Calculate handles POST /api/v1/quotes/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	res, ok := h.compose(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Export handles POST /api/v1/quotes/export and streams an xlsx workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	res, ok := h.compose(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.exporter.WriteXLSX(&buf, Table(res)); err != nil {
		obs.ObserveExport("quote", "error")
		common.WriteError(w, common.Fail(common.CodeInternal, "export failed", err))
		return
	}
	obs.ObserveExport("quote", "ok")
	name := fmt.Sprintf("quote-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type profitRateResponse struct {
	Quantity   int     `json:"quantity"`
	ProfitRate *string `json:"profitRate"`
	Found      bool    `json:"found"`
}

// ProfitRate handles GET /api/v1/pricing/profit-rate?quantity=n.
func (h *Handler) ProfitRate(w http.ResponseWriter, r *http.Request) {
	if h.tiers == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "profit tier schedule not configured", nil)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("quantity"))
	quantity := 1
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "quantity must be a positive integer", nil)
			return
		}
		quantity = n
	}
	rate, found, err := h.tiers.ProfitRate(r.Context(), quantity)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	resp := profitRateResponse{Quantity: quantity, Found: found}
	if found {
		s := rate.String()
		resp.ProfitRate = &s
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

func (h *Handler) compose(w http.ResponseWriter, r *http.Request) (Result, bool) {
	if h.composer == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "quote composer not configured", nil)
		return Result{}, false
	}
	var req Request
	if err := common.DecodeJSON(r, &req, h.validator); err != nil {
		common.WriteError(w, err)
		return Result{}, false
	}
	res, err := h.composer.Compose(r.Context(), req)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return Result{}, false
	}
	return res, true
}

// ToAppError maps pricing and catalog errors onto API errors.
func ToAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case errors.Is(err, pricing.ErrInvalidParams):
		return common.BadRequest(err.Error(), err)
	case errors.Is(err, catalog.ErrProductNotFound):
		return common.Fail(common.CodeProductNotFound, err.Error(), err)
	case errors.Is(err, catalog.ErrUnavailable), errors.Is(err, pricing.ErrScheduleUnavailable):
		return common.Fail(common.CodeUnavailable, "pricing source unavailable, retry later", err)
	default:
		return common.Fail(common.CodeInternal, "internal error", err)
	}
}
