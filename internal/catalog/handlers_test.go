package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/catalog"
)

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestCatalogHandlers(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source: catalog.StaticSource{
			{ID: "p-1", OENumber: "12-ab", BrandCode: "DEN", Band: band("10", "12", "15")},
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	r := chi.NewRouter()
	r.Get("/api/v1/catalog/resolve", handler.Resolve)
	r.Get("/api/v1/catalog/products/{id}", handler.Product)
	r.Post("/api/v1/admin/catalog/reload", handler.Reload)

	t.Run("resolve", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/resolve?reference=0012-AB", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data struct {
				Normalized string            `json:"normalized"`
				Candidates []catalog.Product `json:"candidates"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "12AB", body.Data.Normalized)
		require.Len(t, body.Data.Candidates, 1)
		require.Equal(t, "12", body.Data.Candidates[0].Band.Avg.Decimal.String())
	})

	t.Run("resolve miss", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/resolve?reference=zz", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "NOT_FOUND", body.Error.Code)
	})

	t.Run("resolve requires reference", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/resolve", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("product", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products/p-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products/p-9", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reload", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/catalog/reload", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data catalog.ReloadResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, 1, body.Data.Products)
	})
}
