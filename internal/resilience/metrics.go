package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker metrics are labelled by dependency, such as "catalog:postgres" or
// "profit-tiers:http".
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quote",
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"dependency"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quote",
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions",
		},
		[]string{"dependency", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quote",
			Name:      "breaker_open_total",
			Help:      "Number of times a breaker transitioned into open state",
		},
		[]string{"dependency"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}

func setStateGauge(target string, s State) {
	BreakerState.WithLabelValues(target).Set(float64(s))
}
