package security

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/noah-isme/backend-quote/internal/common"
)

// BodyLimit rejects request payloads larger than Max bytes.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 PAYLOAD_TOO_LARGE for oversized bodies. Accepted
// bodies are buffered so handlers can read them more than once.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			b.reject(w)
			return
		}

		buf, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
		_ = r.Body.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "could not read request body", nil)
			return
		}
		if int64(len(buf)) > b.Max {
			b.reject(w)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}

func (b BodyLimit) reject(w http.ResponseWriter) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge,
		fmt.Sprintf("request body exceeds %d bytes", b.Max), nil)
}
