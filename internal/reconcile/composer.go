package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-quote/internal/pricing"
)

// Parameters are the request-level knobs of a reconciliation.
type Parameters struct {
	CustomerCurrency  string           `json:"customerCurrency,omitempty"`
	PriceMode         string           `json:"priceMode,omitempty" validate:"omitempty,oneof=min avg max MIN AVG MAX"`
	ExchangeRate      *decimal.Decimal `json:"exchangeRate,omitempty"`
	DefaultProfitRate *decimal.Decimal `json:"defaultProfitRate,omitempty"`
	TaxRate           *decimal.Decimal `json:"taxRate,omitempty"`
	FobRate           *decimal.Decimal `json:"fobRate,omitempty"`
	IncludeTax        bool             `json:"includeTax"`
	IsFob             bool             `json:"isFob"`
}

func (p Parameters) overrides() pricing.Overrides {
	return pricing.Overrides{
		PriceMode:         p.PriceMode,
		ExchangeRate:      p.ExchangeRate,
		DefaultProfitRate: p.DefaultProfitRate,
		TaxRate:           p.TaxRate,
		FobRate:           p.FobRate,
		IncludeTax:        p.IncludeTax,
		IsFob:             p.IsFob,
	}
}

const (
	remarkNotFound    = "product not found"
	remarkUnparsable  = "unparsable price"
	remarkInvalidBand = "selected band value missing"
	remarkPending     = "not processed"
	priceErrorBand    = "invalid_band"
)

// Composer derives prices and variance for matched rows.
type Composer struct {
	tiers          pricing.TierSchedule
	defaults       pricing.Defaults
	baseCurrency   Currency
	targetCurrency Currency
}

// ComposerConfig groups Composer dependencies.
type ComposerConfig struct {
	Tiers          pricing.TierSchedule
	Defaults       pricing.Defaults
	BaseCurrency   Currency
	TargetCurrency Currency
}

// NewComposer constructs a Composer.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, err
	}
	base, target := cfg.BaseCurrency, cfg.TargetCurrency
	if base == "" {
		base = CurrencyRMB
	}
	if target == "" {
		target = CurrencyUSD
	}
	if base == target {
		return nil, errors.New("reconcile: base and target currency must differ")
	}
	return &Composer{tiers: cfg.Tiers, defaults: cfg.Defaults, baseCurrency: base, targetCurrency: target}, nil
}

// TargetCurrency reports the currency computed prices are expressed in.
func (c *Composer) TargetCurrency() Currency { return c.targetCurrency }

// Recalculate prices every matched row of set under p. It never re-runs
// matching and holds no state, so the same set and parameters always give the
// same result.
func (c *Composer) Recalculate(ctx context.Context, set MatchSet, p Parameters) (Result, error) {
	params, tiered, err := c.defaults.Resolve(p.overrides())
	if err != nil {
		return Result{}, err
	}
	currency, err := ParseCurrency(p.CustomerCurrency, c.targetCurrency)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", pricing.ErrInvalidParams, err)
	}
	var schedule pricing.TierSchedule
	if tiered {
		schedule = c.tiers
	}
	rates := pricing.NewTierRates(schedule)

	res := Result{
		ExchangeRate:     params.ExchangeRate,
		PriceMode:        params.PriceMode,
		CustomerCurrency: currency,
		Incomplete:       set.Incomplete,
		Items:            make([]Row, len(set.Rows)),
	}
	res.CustomerTotalUsd = decimal.Zero
	res.OurTotalUsd = decimal.Zero
	res.TotalDiffUsd = decimal.Zero
	res.TotalRows = len(set.Rows)

	for i, m := range set.Rows {
		row, err := c.row(ctx, m, params, currency, rates)
		if err != nil {
			return Result{}, err
		}
		res.Items[i] = row
		switch m.Status {
		case StatusMatched:
			res.MatchedCount++
		case StatusPending:
			res.PendingCount++
		}
		if row.ComputedPrice == nil {
			continue
		}
		res.PricedCount++
		res.CustomerTotalUsd = res.CustomerTotalUsd.Add(*row.CustomerPriceUsd)
		res.OurTotalUsd = res.OurTotalUsd.Add(*row.ComputedPrice)
		res.TotalDiffUsd = res.TotalDiffUsd.Add(*row.Variance)
	}
	res.UnmatchedCount = res.TotalRows - res.MatchedCount
	return res, nil
}

func (c *Composer) row(ctx context.Context, m Match, params pricing.Params, currency Currency, rates *pricing.TierRates) (Row, error) {
	row := Row{Match: m}
	if m.Product != nil {
		row.OurPriceMin = m.Product.Band.Min
		row.OurPriceAvg = m.Product.Band.Avg
		row.OurPriceMax = m.Product.Band.Max
	}
	switch m.Status {
	case StatusPending:
		row.Remark = remarkPending
		return row, nil
	case StatusUnmatched:
		if m.Reason == ReasonUnparsablePrice {
			row.Remark = remarkUnparsable
		} else {
			row.Remark = remarkNotFound
		}
		return row, nil
	}
	if m.Product == nil || m.CustomerPrice == nil {
		return row, fmt.Errorf("%w: row %d is matched without product or price", ErrInvalidMatchSet, m.Ordinal)
	}

	customer := c.toTarget(*m.CustomerPrice, currency, params.ExchangeRate)
	row.CustomerPriceUsd = &customer

	qty := m.Quantity
	if qty <= 0 {
		qty = 1
	}
	tierRate, err := rates.For(ctx, qty)
	if err != nil {
		return row, err
	}
	out, err := pricing.Price(pricing.Input{
		Band:     m.Product.Band,
		Quantity: qty,
		Params:   params,
		Terms:    pricing.Terms{State: pricing.Computed{}},
		TierRate: tierRate,
	})
	if errors.Is(err, pricing.ErrInvalidBand) {
		row.PriceError = priceErrorBand
		row.Remark = remarkInvalidBand
		return row, nil
	}
	if err != nil {
		return row, err
	}

	computed, seed, rate := out.UnitPrice, out.Seed, out.ProfitRate
	variance := computed.Sub(customer)
	row.ComputedPrice = &computed
	row.OurPriceRmb = &seed
	row.ProfitRate = &rate
	row.RateSource = out.RateSource
	row.Variance = &variance
	if pct, ok := pricing.Percent(variance, customer); ok {
		row.VariancePercent = &pct
	}
	return row, nil
}

// toTarget expresses a customer price in the target currency. Prices declared
// in the base currency go through the same exchange rate as catalog prices.
func (c *Composer) toTarget(price decimal.Decimal, currency Currency, exchangeRate decimal.Decimal) decimal.Decimal {
	if currency == c.baseCurrency {
		return pricing.RoundMoney(price.Mul(exchangeRate))
	}
	return price
}
