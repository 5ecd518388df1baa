package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen admits a single trial call after the cool-off.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// SourceTarget names a guarded data source, for example
// SourceTarget("catalog", "postgres") is "catalog:postgres". The result is the
// breaker's metric label and log field.
func SourceTarget(concern, source string) string {
	concern, source = strings.TrimSpace(concern), strings.TrimSpace(source)
	if source == "" {
		return concern
	}
	return concern + ":" + source
}

// Settings configures a Breaker.
type Settings struct {
	Target string
	// MinRequests is the number of outcomes observed before the failure ratio
	// is evaluated. The breaker keeps the last 2*MinRequests outcomes.
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       *zerolog.Logger
}

// DefaultSettings suits the catalog and profit tier sources: five calls, half
// of them failing, open for thirty seconds.
func DefaultSettings(target string) Settings {
	return Settings{Target: target, MinRequests: 5, FailureRatio: 0.5, OpenFor: 30 * time.Second}
}

// Breaker trips on the failure ratio over a sliding window of recent calls.
type Breaker struct {
	target       string
	minRequests  int
	failureRatio float64
	openFor      time.Duration
	logger       *zerolog.Logger
	now          func() time.Time

	mu       sync.Mutex
	state    State
	window   []bool // true marks a failure
	next     int
	filled   int
	failures int
	openedAt time.Time
	trial    bool
}

// NewBreaker builds a closed breaker, filling unset settings with defaults.
func NewBreaker(s Settings) *Breaker {
	def := DefaultSettings(s.Target)
	if s.MinRequests <= 0 {
		s.MinRequests = def.MinRequests
	}
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = def.FailureRatio
	}
	if s.OpenFor <= 0 {
		s.OpenFor = def.OpenFor
	}
	target := strings.TrimSpace(s.Target)
	if target == "" {
		target = "default"
	}
	b := &Breaker{
		target:       target,
		minRequests:  s.MinRequests,
		failureRatio: s.FailureRatio,
		openFor:      s.OpenFor,
		logger:       s.Logger,
		now:          time.Now,
		window:       make([]bool, 2*s.MinRequests),
	}
	setStateGauge(b.target, Closed)
	return b
}

// Target returns the dependency label.
func (b *Breaker) Target() string { return b.target }

// State reports the current position without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. Once the cool-off has passed the
// first caller becomes the half-open trial; others are refused until it
// reports.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.transitionLocked(ctx, HalfOpen)
		b.trial = true
		return true
	default:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	}
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.trial = false
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	if b.filled == len(b.window) && b.window[b.next] {
		b.failures--
	}
	b.window[b.next] = !success
	if !success {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
	if b.filled >= b.minRequests && float64(b.failures)/float64(b.filled) >= b.failureRatio {
		b.transitionLocked(ctx, Open)
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	failures, observed := b.failures, b.filled
	b.state = to
	switch to {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	clear(b.window)
	b.next, b.filled, b.failures = 0, 0, 0

	setStateGauge(b.target, to)
	BreakerTransitions.WithLabelValues(b.target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}
	b.logTransition(ctx, from, to, failures, observed)
}

func (b *Breaker) logTransition(ctx context.Context, from, to State, failures, observed int) {
	logger := b.logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = l
	}
	if logger == nil {
		return
	}
	evt := logger.Info()
	if to == Open {
		evt = logger.Warn().
			Int("failures", failures).
			Int("observed", observed).
			Dur("open_for", b.openFor)
	}
	evt = evt.Str("dependency", b.target).Str("from", from.String()).Str("to", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("dependency_breaker_transition")
}
