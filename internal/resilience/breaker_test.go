package resilience_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/resilience"
)

func TestBreakerTransitions(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.Settings{MinRequests: 2, FailureRatio: 0.5, OpenFor: 50 * time.Millisecond})
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	require.Equal(t, resilience.Open, breaker.State())

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "cool-off elapsed, trial call admitted")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.False(t, breaker.Allow(ctx), "only one trial while half-open")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.Settings{MinRequests: 1, OpenFor: 20 * time.Millisecond})
	ctx := context.Background()

	breaker.Report(ctx, false)
	require.Eventually(t, func() bool { return breaker.Allow(ctx) }, 200*time.Millisecond, 5*time.Millisecond)
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerWindowSlides(t *testing.T) {
	// MinRequests 2 keeps a window of the last 4 outcomes.
	breaker := resilience.NewBreaker(resilience.Settings{MinRequests: 2, FailureRatio: 0.75, OpenFor: time.Minute})
	ctx := context.Background()

	breaker.Report(ctx, true)
	breaker.Report(ctx, true)
	breaker.Report(ctx, false)
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Closed, breaker.State())

	// The oldest success rolls out, leaving three failures in four calls.
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
}

func TestBreakerMetricsByDependency(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	target := resilience.SourceTarget("catalog", "postgres")
	require.Equal(t, "catalog:postgres", target)
	breaker := resilience.NewBreaker(resilience.Settings{Target: target, MinRequests: 1, OpenFor: 20 * time.Millisecond})
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)))

	require.Eventually(t, func() bool {
		return breaker.Allow(ctx)
	}, 100*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)))

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)))

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, "half_open", "closed")))
}

func TestBreakerLogsDependencyOnOpen(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	breaker := resilience.NewBreaker(resilience.Settings{
		Target:      resilience.SourceTarget("profit-tiers", "http"),
		MinRequests: 1,
		Logger:      &logger,
	})
	breaker.Report(context.Background(), false)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "dependency_breaker_transition", entry["message"])
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "profit-tiers:http", entry["dependency"])
	require.Equal(t, "open", entry["to"])
	require.EqualValues(t, 1, entry["failures"])
}
