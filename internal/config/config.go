package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-quote/internal/pricing"
)

// Catalog and profit tier source kinds.
const (
	SourcePostgres = "postgres"
	SourceFile     = "file"
	SourceStatic   = "static"
	SourceHTTP     = "http"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	AutoMigrate        bool

	CatalogSource        string
	CatalogFile          string
	CatalogLookupTimeout time.Duration
	CatalogCacheTTL      time.Duration

	PricingPriceMode string
	// PricingExchangeRate is quoted as base units per target unit (7.2 RMB
	// per USD); requests carry the reciprocal multiplier.
	PricingExchangeRate   string
	PricingProfitRate     string
	PricingTaxRate        string
	PricingFobRate        string
	PricingBaseCurrency   string
	PricingTargetCurrency string

	ProfitTiersSource   string
	ProfitTiersFile     string
	ProfitTiersURL      string
	ProfitTiersTimeout  time.Duration
	ProfitTiersCacheTTL time.Duration

	ReconcileWorkers    int
	ReconcileMaxRows    int
	ReconcileSessionTTL time.Duration
	ReconcileQueue      string
	ReconcileLockTTL    time.Duration
	RateLimitReconcile  string
	IdempotencyTTL      time.Duration

	MaxBodyBytes    int64
	SecurityHeaders bool
	EnableHSTS      bool

	ExportImageDir    string
	ExportThumbnailPx int
	WorkerConcurrency int
	ShutdownTimeout   time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AutoMigrate:        parseBool(k.String("DB_AUTO_MIGRATE")),

		CatalogSource:        strings.ToLower(valueOrDefault(k.String("CATALOG_SOURCE"), SourcePostgres)),
		CatalogFile:          strings.TrimSpace(k.String("CATALOG_FILE")),
		CatalogLookupTimeout: parseDuration(k.String("CATALOG_LOOKUP_TIMEOUT"), "5s"),
		CatalogCacheTTL:      parseDuration(k.String("CATALOG_CACHE_TTL"), "1h"),

		PricingPriceMode:      valueOrDefault(k.String("PRICING_DEFAULT_PRICE_MODE"), "avg"),
		PricingExchangeRate:   valueOrDefault(k.String("PRICING_DEFAULT_EXCHANGE_RATE"), "7.2"),
		PricingProfitRate:     valueOrDefault(k.String("PRICING_DEFAULT_PROFIT_RATE"), "0.10"),
		PricingTaxRate:        valueOrDefault(k.String("PRICING_DEFAULT_TAX_RATE"), "0.10"),
		PricingFobRate:        valueOrDefault(k.String("PRICING_DEFAULT_FOB_RATE"), "0.15"),
		PricingBaseCurrency:   strings.ToUpper(valueOrDefault(k.String("PRICING_BASE_CURRENCY"), "RMB")),
		PricingTargetCurrency: strings.ToUpper(valueOrDefault(k.String("PRICING_TARGET_CURRENCY"), "USD")),

		ProfitTiersSource:   strings.ToLower(valueOrDefault(k.String("PROFIT_TIERS_SOURCE"), SourceStatic)),
		ProfitTiersFile:     strings.TrimSpace(k.String("PROFIT_TIERS_FILE")),
		ProfitTiersURL:      strings.TrimSpace(k.String("PROFIT_TIERS_URL")),
		ProfitTiersTimeout:  parseDuration(k.String("PROFIT_TIERS_TIMEOUT"), "2s"),
		ProfitTiersCacheTTL: parseDuration(k.String("PROFIT_TIERS_CACHE_TTL"), "5m"),

		ReconcileWorkers:    parseInt(k.String("RECONCILE_WORKERS"), 0),
		ReconcileMaxRows:    parseInt(k.String("RECONCILE_MAX_ROWS"), 5000),
		ReconcileSessionTTL: parseDuration(k.String("RECONCILE_SESSION_TTL"), "24h"),
		ReconcileQueue:      valueOrDefault(k.String("RECONCILE_QUEUE"), "default"),
		ReconcileLockTTL:    parseDuration(k.String("RECONCILE_LOCK_TTL"), "10m"),
		RateLimitReconcile:  valueOrDefault(k.String("RATE_LIMIT_RECONCILE"), "30-M"),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		MaxBodyBytes:    int64(parseInt(k.String("MAX_BODY_BYTES"), 10<<20)),
		SecurityHeaders: parseBool(valueOrDefault(k.String("SECURITY_HEADERS_ENABLED"), "true")),
		EnableHSTS:      parseBool(k.String("SECURITY_HSTS_ENABLED")),

		ExportImageDir:    strings.TrimSpace(k.String("EXPORT_IMAGE_DIR")),
		ExportThumbnailPx: parseInt(k.String("EXPORT_THUMBNAIL_PX"), 80),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 4),
		ShutdownTimeout:   parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	switch c.CatalogSource {
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CATALOG_SOURCE=postgres")
		}
	case SourceFile:
		if c.CatalogFile == "" {
			return errors.New("CATALOG_FILE is required when CATALOG_SOURCE=file")
		}
	default:
		return fmt.Errorf("unsupported CATALOG_SOURCE %q", c.CatalogSource)
	}
	switch c.ProfitTiersSource {
	case SourceStatic:
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when PROFIT_TIERS_SOURCE=postgres")
		}
	case SourceFile:
		if c.ProfitTiersFile == "" {
			return errors.New("PROFIT_TIERS_FILE is required when PROFIT_TIERS_SOURCE=file")
		}
	case SourceHTTP:
		if c.ProfitTiersURL == "" {
			return errors.New("PROFIT_TIERS_URL is required when PROFIT_TIERS_SOURCE=http")
		}
	default:
		return fmt.Errorf("unsupported PROFIT_TIERS_SOURCE %q", c.ProfitTiersSource)
	}
	if _, err := c.PricingDefaults(); err != nil {
		return err
	}
	return nil
}

// PricingDefaults builds the request defaults from the PRICING_DEFAULT_* keys.
func (c *Config) PricingDefaults() (pricing.Defaults, error) {
	mode, err := pricing.ParsePriceMode(c.PricingPriceMode)
	if err != nil {
		return pricing.Defaults{}, fmt.Errorf("PRICING_DEFAULT_PRICE_MODE: %w", err)
	}
	d := pricing.Defaults{PriceMode: mode}
	for _, f := range []struct {
		key string
		raw string
		dst *decimal.Decimal
	}{
		{"PRICING_DEFAULT_PROFIT_RATE", c.PricingProfitRate, &d.ProfitRate},
		{"PRICING_DEFAULT_TAX_RATE", c.PricingTaxRate, &d.TaxRate},
		{"PRICING_DEFAULT_FOB_RATE", c.PricingFobRate, &d.FobRate},
	} {
		v, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return pricing.Defaults{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}
	deskRate, err := decimal.NewFromString(strings.TrimSpace(c.PricingExchangeRate))
	if err != nil {
		return pricing.Defaults{}, fmt.Errorf("PRICING_DEFAULT_EXCHANGE_RATE: %w", err)
	}
	if d.ExchangeRate, err = pricing.ExchangeRateFromDeskRate(deskRate); err != nil {
		return pricing.Defaults{}, fmt.Errorf("PRICING_DEFAULT_EXCHANGE_RATE: %w", err)
	}
	if err := d.Validate(); err != nil {
		return pricing.Defaults{}, err
	}
	return d, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
