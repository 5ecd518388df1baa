package security

import (
	"net/http"
	"strconv"
	"strings"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	// Quotes and reconciliation sessions carry customer prices.
	{"Cache-Control", "no-store"},
}

// Spreadsheet exports are opened outside the browser, never rendered in it.
var downloadHeaders = [][2]string{
	{"Content-Security-Policy", "sandbox; default-src 'none'"},
	{"X-Download-Options", "noopen"},
}

// Headers hardens API responses. Values are set before the handler runs so a
// handler may still override them.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

// Middleware implements chi middleware.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for _, kv := range apiHeaders {
			dst.Set(kv[0], kv[1])
		}
		if isExport(r) {
			for _, kv := range downloadHeaders {
				dst.Set(kv[0], kv[1])
			}
		}
		if hsts != "" && r.TLS != nil {
			dst.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if !h.EnableHSTS {
		return ""
	}
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	v := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

// isExport matches /quotes/export and /reconciliations/{id}/export.
func isExport(r *http.Request) bool {
	return strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/export")
}
