package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLimitedHandler(t *testing.T, rate string) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewLimiter(client, rate)
	require.NoError(t, err)
	h := Handler{Limiter: l, Scope: "reconcile"}
	return h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	handler := newLimitedHandler(t, "1-M")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliations", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.NotEmpty(t, second.Header().Get("Retry-After"))
	require.Contains(t, second.Body.String(), "RATE_LIMITED")

	other := req.Clone(req.Context())
	other.RemoteAddr = "10.0.0.2:5555"
	third := httptest.NewRecorder()
	handler.ServeHTTP(third, other)
	require.Equal(t, http.StatusOK, third.Code)
}

func TestHandlerMiddlewareFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l, err := NewLimiter(client, "1-M")
	require.NoError(t, err)
	mr.Close()

	var reported error
	h := Handler{Limiter: l, OnError: func(err error) { reported = err }}
	rec := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Error(t, reported)
}

func TestNewLimiterRejectsBadRate(t *testing.T) {
	_, err := NewLimiter(nil, "lots")
	require.Error(t, err)
}
