package quote_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-quote/internal/common"
	"github.com/noah-isme/backend-quote/internal/export"
	"github.com/noah-isme/backend-quote/internal/pricing"
	"github.com/noah-isme/backend-quote/internal/quote"
)

type quoteResponse struct {
	Data struct {
		Items []struct {
			ProductID string  `json:"productId"`
			UnitPrice *string `json:"unitPrice"`
			Subtotal  *string `json:"subtotal"`
			Error     string  `json:"error"`
		} `json:"items"`
		TotalAmount  string `json:"totalAmount"`
		TotalCount   int    `json:"totalCount"`
		ExchangeRate string `json:"exchangeRate"`
		PriceMode    string `json:"priceMode"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	h := quote.NewHandler(quote.HandlerConfig{
		Composer:  newComposer(t),
		Tiers:     pricing.MustSchedule(pricing.DefaultTiers()),
		Exporter:  export.Writer{Logger: zerolog.Nop()},
		Validator: common.NewValidator(),
	})
	r := chi.NewRouter()
	r.Post("/api/v1/quotes/calculate", h.Calculate)
	r.Post("/api/v1/quotes/export", h.Export)
	r.Get("/api/v1/pricing/profit-rate", h.ProfitRate)
	return r
}

func post(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCalculateHandler(t *testing.T) {
	r := newRouter(t)

	t.Run("prices the request", func(t *testing.T) {
		rec := post(t, r, "/api/v1/quotes/calculate", `{
			"items":[{"productId":"p-1","quantity":3},{"productId":"p-2","quantity":1}],
			"priceMode":"avg","exchangeRate":"7.0","defaultProfitRate":0.2}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body quoteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "100.8", *body.Data.Items[0].UnitPrice)
		require.Nil(t, body.Data.Items[1].UnitPrice)
		require.Equal(t, "invalid_band", body.Data.Items[1].Error)
		require.Equal(t, "302.4", body.Data.TotalAmount)
		require.Equal(t, "avg", body.Data.PriceMode)
	})

	t.Run("unknown product fails the request", func(t *testing.T) {
		rec := post(t, r, "/api/v1/quotes/calculate", `{"items":[{"productId":"nope","quantity":1}]}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "PRODUCT_NOT_FOUND", body.Error.Code)
	})

	t.Run("non-positive exchange rate", func(t *testing.T) {
		rec := post(t, r, "/api/v1/quotes/calculate", `{"items":[{"productId":"p-1","quantity":1}],"exchangeRate":-2}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		rec := post(t, r, "/api/v1/quotes/calculate", `{"items":[{"productId":"","quantity":0}]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "items[0].productId")
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := post(t, r, "/api/v1/quotes/calculate", `{"items":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestExportHandler(t *testing.T) {
	r := newRouter(t)
	rec := post(t, r, "/api/v1/quotes/export", `{"items":[{"productId":"p-1","quantity":3}],"exchangeRate":"7","defaultProfitRate":"0.2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, export.ContentTypeXLSX, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Quote")
	require.NoError(t, err)
	require.Equal(t, "Quotation", rows[0][0])
	require.Equal(t, "No.", rows[4][0])
	require.Equal(t, "12-AB", rows[5][1])
}

func TestProfitRateHandler(t *testing.T) {
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pricing/profit-rate?quantity=250", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"quantity":250,"profitRate":"0.03","found":true}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pricing/profit-rate?quantity=-1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
