package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger configures a zerolog logger using the provided format and level.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	writer := os.Stdout
	var out io.Writer = writer
	if strings.ToLower(strings.TrimSpace(format)) == "console" || strings.ToLower(strings.TrimSpace(format)) == "text" {
		out = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger
}

// RequestLogger writes one structured line per request, tagged with the
// operation and, for reconciliation routes, the session id.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements chi middleware for structured request logs.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		rt := RouteOf(r)
		evt := l.Logger.Info()
		if rec.status >= http.StatusInternalServerError {
			evt = l.Logger.Error()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", rt.patternOr(r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", rec.bytes).
			Str("request_id", middleware.GetReqID(r.Context()))
		if rt.Operation != "" {
			evt = evt.Str("operation", rt.Operation)
		}
		switch {
		case rt.SessionID() != "":
			evt = evt.Str("session_id", rt.SessionID())
		case rt.ResourceID != "":
			evt = evt.Str("resource_id", rt.ResourceID)
		}
		if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.IsValid() {
			evt = evt.Str("trace_id", spanCtx.TraceID().String()).Str("span_id", spanCtx.SpanID().String())
		}
		if ip := strings.TrimSpace(r.RemoteAddr); ip != "" {
			evt = evt.Str("remote_addr", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
