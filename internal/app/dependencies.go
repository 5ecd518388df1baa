// Package app wires configuration into the services shared by the API and
// the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/common"
	"github.com/noah-isme/backend-quote/internal/config"
	"github.com/noah-isme/backend-quote/internal/export"
	"github.com/noah-isme/backend-quote/internal/health"
	"github.com/noah-isme/backend-quote/internal/lock"
	"github.com/noah-isme/backend-quote/internal/obs"
	"github.com/noah-isme/backend-quote/internal/pricing"
	"github.com/noah-isme/backend-quote/internal/quote"
	"github.com/noah-isme/backend-quote/internal/ratelimit"
	"github.com/noah-isme/backend-quote/internal/reconcile"
	"github.com/noah-isme/backend-quote/internal/resilience"
	"github.com/noah-isme/backend-quote/internal/store"
)

// Dependencies enumerates the services shared across modules.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Validator  *validator.Validate
	Catalog    *catalog.Service
	Tiers      pricing.TierSchedule
	Quotes     *quote.Composer
	Reconcile  *reconcile.Service
	Exporter   export.Writer
	Limiter    *limiter.Limiter
	TaskClient *asynq.Client
}

// Options tweak construction for callers that bring their own clients.
type Options struct {
	// Redis replaces the client normally dialled from REDIS_URL.
	Redis *redis.Client
	// SkipTasks disables the asynq client; async submission is then unavailable.
	SkipTasks bool
}

// New builds every dependency described by cfg.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger, Validator: common.NewValidator()}

	if needsPostgres(cfg) {
		pool, err := NewPool(ctx, cfg, "quote-api")
		if err != nil {
			return nil, err
		}
		d.DB = pool
	}

	d.Redis = opts.Redis
	if d.Redis == nil {
		rdb, err := NewRedis(ctx, cfg, logger)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Redis = rdb
	}

	if err := d.buildServices(cfg, logger, opts); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) buildServices(cfg *config.Config, logger zerolog.Logger, opts Options) error {
	defaults, err := cfg.PricingDefaults()
	if err != nil {
		return err
	}

	source, err := d.catalogSource(cfg)
	if err != nil {
		return err
	}
	d.Catalog, err = catalog.NewService(catalog.ServiceConfig{
		Source:  source,
		Cache:   catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
		Timeout: cfg.CatalogLookupTimeout,
		Breaker: resilience.NewBreaker(breakerSettings("catalog", cfg.CatalogSource, logger)),
		Logger:  logger.With().Str("component", "catalog").Logger(),
	})
	if err != nil {
		return fmt.Errorf("initialise catalog service: %w", err)
	}

	d.Tiers, err = d.tierSchedule(cfg, logger)
	if err != nil {
		return err
	}

	d.Quotes, err = quote.NewComposer(quote.ComposerConfig{
		Catalog:  d.Catalog,
		Tiers:    d.Tiers,
		Defaults: defaults,
		Logger:   logger.With().Str("component", "quote").Logger(),
	})
	if err != nil {
		return fmt.Errorf("initialise quote composer: %w", err)
	}

	matcher, err := reconcile.NewMatcher(reconcile.MatcherConfig{
		Catalog: d.Catalog,
		Workers: cfg.ReconcileWorkers,
		MaxRows: cfg.ReconcileMaxRows,
		Logger:  logger.With().Str("component", "reconcile").Logger(),
	})
	if err != nil {
		return err
	}
	composer, err := reconcile.NewComposer(reconcile.ComposerConfig{
		Tiers:          d.Tiers,
		Defaults:       defaults,
		BaseCurrency:   reconcile.Currency(cfg.PricingBaseCurrency),
		TargetCurrency: reconcile.Currency(cfg.PricingTargetCurrency),
	})
	if err != nil {
		return err
	}

	var enqueuer reconcile.Enqueuer
	if !opts.SkipTasks {
		connOpt, err := RedisConnOpt(cfg)
		if err != nil {
			return err
		}
		d.TaskClient = asynq.NewClient(connOpt)
		enqueuer = reconcile.AsynqEnqueuer{Client: d.TaskClient, Queue: cfg.ReconcileQueue}
	}
	d.Reconcile, err = reconcile.NewService(reconcile.ServiceConfig{
		Matcher:  matcher,
		Composer: composer,
		Store:    reconcile.NewSessionStore(d.Redis, cfg.ReconcileSessionTTL),
		Enqueuer: enqueuer,
		Locker:   lock.Locker{R: d.Redis, Prefix: "quote:lock:"},
		LockTTL:  cfg.ReconcileLockTTL,
		Logger:   logger.With().Str("component", "reconcile").Logger(),
	})
	if err != nil {
		return err
	}

	d.Exporter = export.Writer{ThumbnailPx: cfg.ExportThumbnailPx, Logger: logger.With().Str("component", "export").Logger()}
	if cfg.ExportImageDir != "" {
		d.Exporter.Images = export.DirImages{Root: cfg.ExportImageDir}
	}

	d.Limiter, err = ratelimit.NewLimiter(d.Redis, cfg.RateLimitReconcile)
	if err != nil {
		return fmt.Errorf("RATE_LIMIT_RECONCILE: %w", err)
	}
	return nil
}

func (d *Dependencies) catalogSource(cfg *config.Config) (catalog.Source, error) {
	switch cfg.CatalogSource {
	case config.SourceFile:
		return catalog.FileSource{Path: cfg.CatalogFile}, nil
	case config.SourcePostgres:
		if d.DB == nil {
			return nil, errors.New("postgres catalog source without database")
		}
		return store.NewPostgres(d.DB), nil
	default:
		return nil, fmt.Errorf("unsupported catalog source %q", cfg.CatalogSource)
	}
}

func (d *Dependencies) tierSchedule(cfg *config.Config, logger zerolog.Logger) (pricing.TierSchedule, error) {
	var (
		loader  pricing.TierLoader
		breaker *resilience.Breaker
	)
	switch cfg.ProfitTiersSource {
	case config.SourceStatic:
		return pricing.MustSchedule(pricing.DefaultTiers()), nil
	case config.SourceFile:
		loader = pricing.YAMLFile{Path: cfg.ProfitTiersFile}
	case config.SourcePostgres:
		if d.DB == nil {
			return nil, errors.New("postgres tier source without database")
		}
		loader = store.NewPostgres(d.DB)
		breaker = resilience.NewBreaker(breakerSettings("profit-tiers", cfg.ProfitTiersSource, logger))
	case config.SourceHTTP:
		loader = pricing.NewRemoteTiers(cfg.ProfitTiersURL, cfg.ProfitTiersTimeout, logger)
	default:
		return nil, fmt.Errorf("unsupported profit tier source %q", cfg.ProfitTiersSource)
	}
	return &pricing.CachedSchedule{
		Loader:  loader,
		TTL:     cfg.ProfitTiersCacheTTL,
		Timeout: cfg.ProfitTiersTimeout,
		Breaker: breaker,
		Logger:  logger.With().Str("component", "profit_tiers").Logger(),
	}, nil
}

// Probes lists readiness checks for the configured dependencies.
func (d *Dependencies) Probes() []health.Probe {
	probes := []health.Probe{{
		Name:    "redis",
		Timeout: 300 * time.Millisecond,
		Check:   func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() },
	}}
	if d.DB != nil {
		probes = append(probes, health.Probe{Name: "db", Timeout: 500 * time.Millisecond, Check: d.DB.Ping})
	}
	if d.Catalog != nil {
		probes = append(probes, health.Probe{
			Name:    "catalog",
			Timeout: d.Config.CatalogLookupTimeout,
			Check: func(ctx context.Context) error {
				_, err := d.Catalog.Acquire(ctx)
				return err
			},
		})
	}
	return probes
}

// Close releases network clients.
func (d *Dependencies) Close() {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func needsPostgres(cfg *config.Config) bool {
	return cfg.CatalogSource == config.SourcePostgres || cfg.ProfitTiersSource == config.SourcePostgres
}

// NewPool connects to Postgres with query tracing and, when enabled, applies
// schema migrations first.
func NewPool(ctx context.Context, cfg *config.Config, appName string) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.StoreTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis dials REDIS_URL with tracing instrumentation.
func NewRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisConnOpt converts REDIS_URL for asynq.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri for tasks: %w", err)
	}
	return opt, nil
}

func breakerSettings(concern, source string, logger zerolog.Logger) resilience.Settings {
	s := resilience.DefaultSettings(resilience.SourceTarget(concern, source))
	l := logger.With().Str("component", "breaker").Logger()
	s.Logger = &l
	return s
}
