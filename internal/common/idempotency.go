package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client supplied key.
const IdempotencyHeader = "Idempotency-Key"

const inFlight = "pending"

// Idem replays the stored response of a write request whose Idempotency-Key
// was already seen. A key still being served yields 409 IDEMPOTENCY_IN_FLIGHT.
// Requests without the header pass through untouched.
type Idem struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// key scopes the client key to the route so one key cannot replay the
// response of a different endpoint. The digest bounds the Redis key length.
func (i Idem) key(r *http.Request, header string) string {
	prefix := i.Prefix
	if prefix == "" {
		prefix = "idem:"
	}
	sum := sha256.Sum256([]byte(r.Method + " " + r.URL.Path + " " + header))
	return prefix + hex.EncodeToString(sum[:])
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdempotencyHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ctx := r.Context()
		key := i.key(r, header)
		ok, err := i.R.SetNX(ctx, key, inFlight, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, CodeUnavailable, "idempotency store unavailable", nil)
			return
		}
		if !ok {
			i.replay(ctx, w, key)
			return
		}

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			if !completed {
				_ = i.R.Del(context.Background(), key).Err()
			}
		}()
		next.ServeHTTP(rec, r)
		completed = true

		// Server errors are not remembered so the client may retry.
		if rec.status >= http.StatusInternalServerError {
			_ = i.R.Del(context.Background(), key).Err()
			return
		}
		payload, err := json.Marshal(storedResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			_ = i.R.Del(context.Background(), key).Err()
			return
		}
		_ = i.R.Set(context.Background(), key, payload, ttl).Err()
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	if err != nil || string(raw) == inFlight {
		JSONError(w, http.StatusConflict, CodeIdempotencyInFlight, "a request with this idempotency key is in progress", nil)
		return
	}
	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		JSONError(w, http.StatusConflict, CodeIdempotencyInFlight, "a request with this idempotency key is in progress", nil)
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
