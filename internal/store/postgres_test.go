package store

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/quote", migrateURL("postgres://u:p@db:5432/quote"))
	require.Equal(t, "pgx5://db/quote?sslmode=disable", migrateURL("postgresql://db/quote?sslmode=disable"))
	require.Equal(t, "pgx5://db/quote", migrateURL("pgx5://db/quote"))
}

func TestBandFromText(t *testing.T) {
	min, max := "10.5000", "15"
	band, err := bandFromText(&min, nil, &max)
	require.NoError(t, err)
	require.True(t, band.Min.Valid)
	require.False(t, band.Avg.Valid)
	require.Equal(t, "10.5", band.Min.Decimal.String())
	require.Equal(t, 2, band.Completeness())

	bad := "abc"
	_, err = bandFromText(&bad, nil, nil)
	require.Error(t, err)

	require.Nil(t, textOrNil(decimal.NullDecimal{}))
	require.Equal(t, "4.25", *textOrNil(decimal.NewNullDecimal(decimal.RequireFromString("4.25"))))
}

func newTestStore(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, Migrate(url))
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(context.Background(), `TRUNCATE catalog_products, profit_tiers`)
	require.NoError(t, err)
	return NewPostgres(pool)
}

func TestPostgresProductsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := []catalog.Product{
		{ID: "p-1", OENumber: "12-AB/34", Aliases: []string{"X-1"}, BrandCode: "DEN",
			Band: pricing.NewBand(decimal.RequireFromString("10"), decimal.RequireFromString("12"), decimal.RequireFromString("15"))},
		{ID: "p-2", OENumber: "55", Band: pricing.Band{Min: decimal.NewNullDecimal(decimal.RequireFromString("4"))}},
	}
	require.NoError(t, s.UpsertProducts(ctx, in))
	require.NoError(t, s.UpsertProducts(ctx, in[:1]))

	got, err := s.LoadProducts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []string{"X-1"}, got[0].Aliases)
	require.Equal(t, "12", got[0].Band.Avg.Decimal.String())
	require.False(t, got[1].Band.Avg.Valid)

	snap, err := catalog.NewSnapshot(got)
	require.NoError(t, err)
	match, err := snap.Resolve("034")
	require.NoError(t, err)
	require.Equal(t, "p-1", match[0].ID)
}

func TestPostgresTiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadTiers(ctx)
	require.Error(t, err)

	require.NoError(t, s.ReplaceTiers(ctx, pricing.DefaultTiers()))
	tiers, err := s.LoadTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 4)
	require.Zero(t, tiers[3].MaxQuantity)

	sched, err := pricing.NewSchedule(tiers)
	require.NoError(t, err)
	rate, found, err := sched.ProfitRate(ctx, 150)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0.06", rate.StringFixed(2))
}
