package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	mw := Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}
	req := httptest.NewRequest(http.MethodGet, "https://quotes.example.com/api/v1/catalog/resolve", nil)
	req.TLS = &tls.ConnectionState{}

	rr := serve(mw.Middleware(http.HandlerFunc(ok)), req)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareSkipsHSTSWithoutTLS(t *testing.T) {
	mw := Headers{Enable: true, EnableHSTS: true}
	rr := serve(mw.Middleware(http.HandlerFunc(ok)), httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	mw := Headers{Enable: false, EnableHSTS: true}
	rr := serve(mw.Middleware(http.HandlerFunc(ok)), httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}

func TestHeadersCanBeOverriddenByHandler(t *testing.T) {
	mw := Headers{Enable: true}
	h := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "private, max-age=60")
		w.WriteHeader(http.StatusOK)
	}))
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "private, max-age=60", rr.Header().Get("Cache-Control"))
}

func TestHeadersHardenSpreadsheetDownloads(t *testing.T) {
	mw := Headers{Enable: true}.Middleware(http.HandlerFunc(ok))

	rr := serve(mw, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliations/s-1/export", nil))
	require.Equal(t, "noopen", rr.Header().Get("X-Download-Options"))
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "sandbox")

	rr = serve(mw, httptest.NewRequest(http.MethodPost, "/api/v1/quotes/calculate", nil))
	require.Empty(t, rr.Header().Get("X-Download-Options"))
	require.Equal(t, "default-src 'none'; frame-ancestors 'none'", rr.Header().Get("Content-Security-Policy"))
}
