package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/resilience"
)

func TestDefaultScheduleLookup(t *testing.T) {
	s := MustSchedule(DefaultTiers())
	ctx := context.Background()
	cases := map[int]string{1: "0.1", 99: "0.1", 100: "0.06", 199: "0.06", 200: "0.03", 499: "0.03", 500: "0", 10000: "0"}
	for qty, want := range cases {
		rate, found, err := s.ProfitRate(ctx, qty)
		require.NoError(t, err)
		require.True(t, found, "quantity %d", qty)
		require.True(t, rate.Equal(dec(want)), "quantity %d: got %s", qty, rate)
	}
	_, found, err := s.ProfitRate(ctx, 0)
	require.NoError(t, err)
	require.False(t, found)
}

func TestNewScheduleValidation(t *testing.T) {
	_, err := NewSchedule([]Tier{{MinQuantity: 0, Rate: dec("0.1")}})
	require.Error(t, err)
	_, err = NewSchedule([]Tier{{MinQuantity: 10, MaxQuantity: 5, Rate: dec("0.1")}})
	require.Error(t, err)
	_, err = NewSchedule([]Tier{{MinQuantity: 1, MaxQuantity: 10, Rate: dec("0.1")}, {MinQuantity: 10, Rate: dec("0")}})
	require.Error(t, err)
	_, err = NewSchedule([]Tier{{MinQuantity: 1, Rate: dec("-1")}})
	require.Error(t, err)

	s, err := NewSchedule([]Tier{{MinQuantity: 50, Rate: dec("0")}, {MinQuantity: 1, MaxQuantity: 49, Rate: dec("0.2")}})
	require.NoError(t, err)
	require.Equal(t, 1, s.Tiers()[0].MinQuantity)
}

type countingSchedule struct {
	calls atomic.Int32
}

func (c *countingSchedule) ProfitRate(_ context.Context, quantity int) (decimal.Decimal, bool, error) {
	c.calls.Add(1)
	return dec("0.05"), quantity < 100, nil
}

func TestTierRatesMemoises(t *testing.T) {
	src := &countingSchedule{}
	rates := NewTierRates(src)
	ctx := context.Background()

	r1, err := rates.For(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, r1)
	_, err = rates.For(ctx, 5)
	require.NoError(t, err)
	r3, err := rates.For(ctx, 500)
	require.NoError(t, err)
	require.Nil(t, r3)
	require.EqualValues(t, 2, src.calls.Load())

	var none *TierRates
	r, err := none.For(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestParseTiersYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  - {min: 1, max: 99, rate: "0.12"}
  - {min: 100, rate: "0.04"}
`), 0o600))

	tiers, err := YAMLFile{Path: path}.LoadTiers(context.Background())
	require.NoError(t, err)
	s, err := NewSchedule(tiers)
	require.NoError(t, err)
	rate, found, _ := s.ProfitRate(context.Background(), 150)
	require.True(t, found)
	require.Equal(t, "0.04", rate.String())

	_, err = ParseTiersYAML([]byte("tiers:\n  - {min: 1, rate: abc}\n"))
	require.Error(t, err)
}

func TestRemoteTiers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tiers":[{"minQuantity":1,"maxQuantity":9,"rate":"0.3"},{"minQuantity":10,"maxQuantity":0,"rate":"0.1"}]}`))
	}))
	defer srv.Close()

	loader := NewRemoteTiers(srv.URL, time.Second, zerolog.Nop())
	tiers, err := loader.LoadTiers(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	require.Equal(t, "0.3", tiers[0].Rate.String())
}

type scriptedLoader struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (s *scriptedLoader) LoadTiers(context.Context) ([]Tier, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return nil, errors.New("policy service down")
	}
	return DefaultTiers(), nil
}

func TestCachedScheduleServesStaleOnFailure(t *testing.T) {
	loader := &scriptedLoader{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cached := &CachedSchedule{Loader: loader, TTL: time.Minute, Logger: zerolog.Nop()}
	cached.now = func() time.Time { return now }
	ctx := context.Background()

	rate, found, err := cached.ProfitRate(ctx, 150)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0.06", rate.String())

	_, _, _ = cached.ProfitRate(ctx, 1)
	require.EqualValues(t, 1, loader.calls.Load())

	loader.fail.Store(true)
	now = now.Add(2 * time.Minute)
	rate, found, err = cached.ProfitRate(ctx, 150)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0.06", rate.String())
	require.EqualValues(t, 2, loader.calls.Load())
}

func TestCachedScheduleUnavailableWithoutData(t *testing.T) {
	loader := &scriptedLoader{}
	loader.fail.Store(true)
	cached := &CachedSchedule{Loader: loader, TTL: time.Minute, Logger: zerolog.Nop()}
	_, _, err := cached.ProfitRate(context.Background(), 1)
	require.ErrorIs(t, err, ErrScheduleUnavailable)
}

func TestCachedScheduleBreakerStopsHammeringSource(t *testing.T) {
	loader := &scriptedLoader{}
	loader.fail.Store(true)
	breaker := resilience.NewBreaker(resilience.Settings{
		Target:      resilience.SourceTarget("profit-tiers", "postgres"),
		MinRequests: 1,
		OpenFor:     time.Minute,
	})
	cached := &CachedSchedule{Loader: loader, Breaker: breaker, Logger: zerolog.Nop()}

	_, err := cached.Current(context.Background())
	require.ErrorIs(t, err, ErrScheduleUnavailable)
	_, err = cached.Current(context.Background())
	require.ErrorIs(t, err, ErrScheduleUnavailable)
	require.ErrorContains(t, err, "circuit breaker open")
	require.EqualValues(t, 1, loader.calls.Load())
}
