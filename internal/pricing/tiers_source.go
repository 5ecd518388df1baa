package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/backend-quote/internal/resilience"
)

// TierLoader fetches the raw tier list from an external policy source.
type TierLoader interface {
	LoadTiers(ctx context.Context) ([]Tier, error)
}

// StaticTiers serves a fixed tier list.
type StaticTiers []Tier

// LoadTiers implements TierLoader.
func (s StaticTiers) LoadTiers(context.Context) ([]Tier, error) {
	out := make([]Tier, len(s))
	copy(out, s)
	return out, nil
}

type yamlTier struct {
	Min  int    `yaml:"min"`
	Max  int    `yaml:"max"`
	Rate string `yaml:"rate"`
}

type yamlSchedule struct {
	Tiers []yamlTier `yaml:"tiers"`
}

// YAMLFile loads tiers from a YAML document of the form:
//
//	tiers:
//	  - {min: 1, max: 99, rate: "0.10"}
//	  - {min: 500, rate: "0"}
type YAMLFile struct {
	Path string
}

// LoadTiers implements TierLoader.
func (f YAMLFile) LoadTiers(context.Context) ([]Tier, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read tier file: %w", err)
	}
	return ParseTiersYAML(data)
}

// ParseTiersYAML decodes the YAML tier document.
func ParseTiersYAML(data []byte) ([]Tier, error) {
	var doc yamlSchedule
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode tier yaml: %w", err)
	}
	tiers := make([]Tier, 0, len(doc.Tiers))
	for i, t := range doc.Tiers {
		rate, err := decimal.NewFromString(strings.TrimSpace(t.Rate))
		if err != nil {
			return nil, fmt.Errorf("tier %d: invalid rate %q: %w", i, t.Rate, err)
		}
		tiers = append(tiers, Tier{MinQuantity: t.Min, MaxQuantity: t.Max, Rate: rate})
	}
	return tiers, nil
}

// RemoteTiers fetches the schedule from an HTTP policy endpoint returning
// {"tiers": [{"minQuantity": 1, "maxQuantity": 99, "rate": "0.10"}, ...]}.
type RemoteTiers struct {
	URL   string
	Fetch *resilience.Fetcher
}

// NewRemoteTiers builds a traced, breaker-protected loader for url. The
// breaker reports as "profit-tiers:http".
func NewRemoteTiers(url string, timeout time.Duration, logger zerolog.Logger) RemoteTiers {
	settings := resilience.DefaultSettings(resilience.SourceTarget("profit-tiers", "http"))
	settings.Logger = &logger
	return RemoteTiers{
		URL: url,
		Fetch: &resilience.Fetcher{
			Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker: resilience.NewBreaker(settings),
			Retry:   resilience.RetryPolicy{Attempts: 2, Base: 100 * time.Millisecond, Jitter: 0.2},
			Timeout: timeout,
		},
	}
}

// LoadTiers implements TierLoader.
func (r RemoteTiers) LoadTiers(ctx context.Context) ([]Tier, error) {
	if r.Fetch == nil {
		return nil, errors.New("pricing: remote tier client not configured")
	}
	resp, err := r.Fetch.Get(ctx, r.URL, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("tier source returned %s", resp.Status)
	}
	var payload struct {
		Tiers []Tier `json:"tiers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tier payload: %w", err)
	}
	return payload.Tiers, nil
}

// CachedSchedule is a TierSchedule backed by a TierLoader. Tiers are reloaded at
// most once per TTL; a failed reload keeps serving the previous schedule.
type CachedSchedule struct {
	Loader  TierLoader
	TTL     time.Duration
	Timeout time.Duration
	// Breaker guards loaders that have none of their own, such as the
	// Postgres source.
	Breaker *resilience.Breaker
	Logger  zerolog.Logger

	mu       sync.Mutex
	current  *Schedule
	loadedAt time.Time
	now      func() time.Time
}

// ProfitRate implements TierSchedule.
func (c *CachedSchedule) ProfitRate(ctx context.Context, quantity int) (decimal.Decimal, bool, error) {
	s, err := c.Current(ctx)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return s.ProfitRate(ctx, quantity)
}

// Current returns the active schedule, loading it when missing or expired.
func (c *CachedSchedule) Current(ctx context.Context) (Schedule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.current != nil && c.TTL > 0 && now.Sub(c.loadedAt) < c.TTL {
		return *c.current, nil
	}
	if c.current != nil && c.TTL <= 0 {
		return *c.current, nil
	}

	s, err := c.load(ctx)
	if err != nil {
		if c.current != nil {
			c.Logger.Warn().Err(err).Msg("profit tier reload failed, serving previous schedule")
			c.loadedAt = now
			return *c.current, nil
		}
		return Schedule{}, fmt.Errorf("%w: %v", ErrScheduleUnavailable, err)
	}
	c.current = &s
	c.loadedAt = now
	c.Logger.Info().Int("tiers", len(s.tiers)).Msg("profit_tiers_loaded")
	return s, nil
}

func (c *CachedSchedule) load(ctx context.Context) (Schedule, error) {
	if c.Loader == nil {
		return Schedule{}, errors.New("tier loader not configured")
	}
	var tiers []Tier
	guard := resilience.Guard{Breaker: c.Breaker, Timeout: c.Timeout}
	err := guard.Do(ctx, func(ctx context.Context) error {
		var err error
		tiers, err = c.Loader.LoadTiers(ctx)
		return err
	})
	if err != nil {
		return Schedule{}, err
	}
	return NewSchedule(tiers)
}

func (c *CachedSchedule) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
