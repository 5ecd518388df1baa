package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/config"
	"github.com/noah-isme/backend-quote/internal/pricing"
	"github.com/noah-isme/backend-quote/internal/quote"
	"github.com/noah-isme/backend-quote/internal/reconcile"
)

const catalogYAML = `
products:
  - {id: p-1, oe: "12-AB/34", brand: DEN, min: "10", avg: "12", max: "15"}
  - {id: p-2, oe: "55", brand: TOY, min: "4"}
`

const tiersYAML = `
tiers:
  - {min: 1, max: 9, rate: "0.25"}
  - {min: 10, rate: "0.05"}
`

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	tiersPath := filepath.Join(dir, "tiers.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogYAML), 0o600))
	require.NoError(t, os.WriteFile(tiersPath, []byte(tiersYAML), 0o600))
	return &config.Config{
		RedisURL:              "redis://" + redisAddr,
		CatalogSource:         config.SourceFile,
		CatalogFile:           catalogPath,
		CatalogLookupTimeout:  time.Second,
		CatalogCacheTTL:       time.Hour,
		PricingPriceMode:      "avg",
		PricingExchangeRate:   "7.2",
		PricingProfitRate:     "0.10",
		PricingTaxRate:        "0.10",
		PricingFobRate:        "0.15",
		PricingBaseCurrency:   "RMB",
		PricingTargetCurrency: "USD",
		ProfitTiersSource:     config.SourceFile,
		ProfitTiersFile:       tiersPath,
		ProfitTiersTimeout:    time.Second,
		ProfitTiersCacheTTL:   time.Minute,
		ReconcileMaxRows:      100,
		ReconcileSessionTTL:   time.Hour,
		RateLimitReconcile:    "10-M",
	}
}

func TestNewWiresFileBackedServices(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	ctx := context.Background()

	deps, err := New(ctx, cfg, zerolog.Nop(), Options{})
	require.NoError(t, err)
	t.Cleanup(deps.Close)
	require.Nil(t, deps.DB)
	require.NotNil(t, deps.TaskClient)
	require.NotNil(t, deps.Limiter)

	res, err := deps.Quotes.Compose(ctx, quote.Request{Items: []quote.LineItem{{ProductID: "p-1", Quantity: 2}}})
	require.NoError(t, err)
	// 12 RMB * 1.25 / 7.2 RMB per USD
	require.Equal(t, "2.08", res.Items[0].UnitPrice.StringFixed(2))
	require.Equal(t, pricing.RateSourceTier, res.Items[0].RateSource)

	rec, err := deps.Reconcile.Reconcile(ctx, reconcile.ParseRequest{
		Rows: []reconcile.InputRow{{Reference: "034", CustomerPriceRaw: "100"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.MatchedCount)
	require.NotEmpty(t, rec.ID)

	for _, p := range deps.Probes() {
		require.NoError(t, p.Check(ctx), p.Name)
	}
}

func TestNewRejectsUnknownTierSource(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.ProfitTiersSource = "ftp"

	_, err := New(context.Background(), cfg, zerolog.Nop(), Options{SkipTasks: true})
	require.Error(t, err)
}
