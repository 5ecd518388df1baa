package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"

	"github.com/noah-isme/backend-quote/internal/app"
	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/common"
	"github.com/noah-isme/backend-quote/internal/config"
	"github.com/noah-isme/backend-quote/internal/health"
	"github.com/noah-isme/backend-quote/internal/obs"
	"github.com/noah-isme/backend-quote/internal/quote"
	"github.com/noah-isme/backend-quote/internal/ratelimit"
	"github.com/noah-isme/backend-quote/internal/reconcile"
	"github.com/noah-isme/backend-quote/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "quote")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "quote-api",
			Version:       envOrDefault("APP_VERSION", ""),
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.New(initCtx, cfg, logger, app.Options{})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(deps.Redis); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}

	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.CatalogLookupTimeout)
	if _, err := deps.Catalog.Warm(warmCtx); err != nil {
		logger.Warn().Err(err).Msg("catalog warm-up failed, first request will retry")
	}
	cancelWarm()

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: deps.Catalog})
	quoteHandler := quote.NewHandler(quote.HandlerConfig{
		Composer:  deps.Quotes,
		Tiers:     deps.Tiers,
		Exporter:  deps.Exporter,
		Validator: deps.Validator,
	})
	reconcileHandler := reconcile.NewHandler(reconcile.HandlerConfig{
		Service:   deps.Reconcile,
		Exporter:  deps.Exporter,
		Validator: deps.Validator,
	})
	reconcileLimit := ratelimit.Handler{
		Limiter: deps.Limiter,
		Scope:   "reconcile",
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL, Prefix: "quote:idem:"}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets, err := obs.ParseBuckets(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		if err != nil {
			logger.Warn().Err(err).Msg("OBS_METRICS_BUCKETS_MS ignored")
		}
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.Routing)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.EnableHSTS}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{Probes: deps.Probes()}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

		op := obs.Operation
		v.With(op("catalog.resolve")).Get("/catalog/resolve", catalogHandler.Resolve)
		v.With(op("catalog.product")).Get("/catalog/products/{id}", catalogHandler.Product)
		v.With(op("catalog.reload")).Post("/admin/catalog/reload", catalogHandler.Reload)

		v.With(op("pricing.profit_rate")).Get("/pricing/profit-rate", quoteHandler.ProfitRate)
		v.With(op("quote.calculate")).Post("/quotes/calculate", quoteHandler.Calculate)
		v.With(op("quote.export")).Post("/quotes/export", quoteHandler.Export)

		v.Route("/reconciliations", func(rc chi.Router) {
			rc.With(op("reconcile.create"), reconcileLimit.Middleware).Post("/", reconcileHandler.Create)
			rc.With(op("reconcile.submit"), reconcileLimit.Middleware, idem.Middleware).Post("/async", reconcileHandler.Submit)
			rc.With(op("reconcile.recalculate")).Post("/recalculate", reconcileHandler.Recalculate)
			rc.With(op("reconcile.get")).Get("/{id}", reconcileHandler.Get)
			rc.With(op("reconcile.recalculate_session")).Post("/{id}/recalculate", reconcileHandler.RecalculateSession)
			rc.With(op("reconcile.export")).Get("/{id}/export", reconcileHandler.Export)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
