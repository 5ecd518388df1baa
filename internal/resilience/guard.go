package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Guard when the guarded call exceeds its deadline.
var ErrTimeout = errors.New("resilience: call timed out")

// Guard bounds a call to an external dependency with a timeout and a breaker.
// IsFailure decides which errors count against the breaker; when nil every
// non-nil error does.
type Guard struct {
	Breaker   *Breaker
	Timeout   time.Duration
	IsFailure func(error) bool
}

// Do runs fn under the guard. A deadline hit inside fn is reported as ErrTimeout
// unless the parent context was already done.
func (g Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	if g.Breaker != nil && !g.Breaker.Allow(ctx) {
		return ErrOpenCircuit
	}
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
	}
	err := fn(callCtx)
	cancel()

	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = ErrTimeout
	}
	if g.Breaker != nil {
		g.Breaker.Report(ctx, !g.failed(err))
	}
	return err
}

func (g Guard) failed(err error) bool {
	if err == nil {
		return false
	}
	if g.IsFailure == nil {
		return true
	}
	return g.IsFailure(err)
}
