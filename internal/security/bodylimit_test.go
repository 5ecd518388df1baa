package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyLimitAllowsWithinLimit(t *testing.T) {
	var captured string
	h := BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	rr := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/quotes/calculate", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", captured)
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	h := BodyLimit{Max: 5}.Middleware(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliations", strings.NewReader("excessive"))
	req.ContentLength = -1
	rr := serve(h, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	h := BodyLimit{Max: 5}.Middleware(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliations", strings.NewReader("content"))
	req.ContentLength = 100
	rr := serve(h, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyLimitDisabled(t *testing.T) {
	h := BodyLimit{}.Middleware(http.HandlerFunc(ok))
	rr := serve(h, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	require.Equal(t, http.StatusOK, rr.Code)
}
