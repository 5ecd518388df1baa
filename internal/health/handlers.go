package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. The API flips it off when shutdown begins so
// load balancers drain traffic before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Probes)+1)
	healthy := ready.Load()
	if !healthy {
		status["server"] = "shutting down"
	}
	for _, p := range h.Probes {
		if err := p.run(r.Context()); err != nil {
			status[p.Name] = err.Error()
			healthy = false
			continue
		}
		status[p.Name] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (p Probe) run(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}
