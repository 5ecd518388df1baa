package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-quote/internal/common"
)

// NewLimiter builds a Redis-backed limiter from a formatted rate such as
// "30-M" (30 requests per minute).
func NewLimiter(rdb *redis.Client, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "quote:ratelimit"})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	Scope   string
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Limiter
// failures are reported through OnError and the request is let through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		keyFn := h.Key
		if keyFn == nil {
			keyFn = common.ClientIP
		}
		key := keyFn(r)
		if h.Scope != "" {
			key = h.Scope + ":" + key
		}
		lctx, err := h.Limiter.Get(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := time.Until(time.Unix(lctx.Reset, 0)).Seconds()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(int(retryAfter)))
			common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
