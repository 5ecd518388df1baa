package obs

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBucketsMs covers quote calculation through large reconciliation
// batches.
var DefaultBucketsMs = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// HTTPMetrics groups the request collectors labelled by operation.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the HTTP collectors on reg, reusing collectors that
// are already registered under the same name.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = DefaultBucketsMs
	}
	return &HTTPMetrics{
		Requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by operation, method and status class.",
		}, []string{"operation", "method", "status"})),
		Duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds by operation.",
			Buckets:   buckets,
		}, []string{"operation"})),
		InFlight: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "HTTP requests currently being served.",
		})),
	}
}

// ParseBuckets reads a comma separated list of positive millisecond bounds.
// An empty list yields nil so callers fall back to DefaultBucketsMs.
func ParseBuckets(csv string) ([]float64, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", part, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("bucket %q: must be positive", part)
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// register adds c to reg. When an equal collector is already registered the
// existing one is returned so repeated wiring in tests and workers is safe.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(fmt.Errorf("register metric: %w", err))
}
