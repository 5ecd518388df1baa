package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// RetryPolicy spaces retries of a source fetch with exponential backoff.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	// Jitter is a fraction of the delay, 0.2 spreads it by up to 20%.
	Jitter float64
}

// Delay returns the wait before retry number attempt (1 based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << max(attempt-1, 0)
	if p.Jitter <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

// StatusError is returned when a source answers with a retryable status after
// every attempt has been spent.
type StatusError struct {
	Status string
	Code   int
}

func (e *StatusError) Error() string { return "source responded " + e.Status }

// Fetcher performs GET requests against a remote pricing source under a
// breaker, a per attempt timeout and a retry policy. 5xx and 429 answers are
// retried and count as failures; other responses are returned to the caller.
type Fetcher struct {
	Client  *http.Client
	Breaker *Breaker
	Retry   RetryPolicy
	Timeout time.Duration
}

// Get fetches url. The caller owns the returned body.
func (f Fetcher) Get(ctx context.Context, url, accept string) (*http.Response, error) {
	if f.Client == nil {
		return nil, errors.New("resilience: fetcher has no http client")
	}
	attempts := max(f.Retry.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, f.Retry.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}
		if f.Breaker != nil && !f.Breaker.Allow(ctx) {
			return nil, fmt.Errorf("%s: %w", f.Breaker.Target(), ErrOpenCircuit)
		}
		resp, err := f.once(ctx, url, accept)
		ok := err == nil && !retryable(resp.StatusCode)
		if f.Breaker != nil {
			f.Breaker.Report(ctx, ok)
		}
		if ok {
			return resp, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		lastErr = &StatusError{Status: resp.Status, Code: resp.StatusCode}
		_ = resp.Body.Close()
	}
	return nil, lastErr
}

func (f Fetcher) once(ctx context.Context, url, accept string) (*http.Response, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if f.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, f.Timeout)
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func retryable(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cancelBody releases the attempt timeout once the caller has read the body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
