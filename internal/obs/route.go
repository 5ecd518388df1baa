package obs

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route describes the handler that served a request. It is only complete once
// the router has matched, so outer middleware reads it after calling next.
type Route struct {
	Pattern   string
	Operation string
	// ResourceID is the {id} path parameter: a reconciliation session id or a
	// catalog product id depending on Operation.
	ResourceID string
}

// SessionID returns the reconciliation session addressed by the route, if any.
func (rt Route) SessionID() string {
	if strings.HasPrefix(rt.Operation, "reconcile.") {
		return rt.ResourceID
	}
	return ""
}

type routeKey struct{}

type routeState struct {
	operation string
}

// Routing installs the per request route state. Mount it before any
// middleware that calls RouteOf.
func Routing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), routeKey{}, &routeState{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Operation tags the routes it wraps with a stable domain name such as
// "quote.calculate", used for span names, metric labels and log fields.
func Operation(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if st, ok := r.Context().Value(routeKey{}).(*routeState); ok {
				st.operation = name
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RouteOf reports the matched route for r.
func RouteOf(r *http.Request) Route {
	var rt Route
	if rc := chi.RouteContext(r.Context()); rc != nil {
		rt.Pattern = rc.RoutePattern()
		rt.ResourceID = strings.TrimSpace(rc.URLParam("id"))
	}
	if st, ok := r.Context().Value(routeKey{}).(*routeState); ok {
		rt.Operation = st.operation
	}
	return rt
}

func (rt Route) patternOr(fallback string) string {
	if rt.Pattern != "" {
		return rt.Pattern
	}
	return fallback
}

func (rt Route) operationOr(fallback string) string {
	if rt.Operation != "" {
		return rt.Operation
	}
	return fallback
}
