package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/obs"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

// Composer prices quote requests against the catalog.
type Composer struct {
	catalog  catalog.Provider
	tiers    pricing.TierSchedule
	defaults pricing.Defaults
	logger   zerolog.Logger
}

// ComposerConfig groups Composer dependencies.
type ComposerConfig struct {
	Catalog  catalog.Provider
	Tiers    pricing.TierSchedule
	Defaults pricing.Defaults
	Logger   zerolog.Logger
}

// NewComposer constructs a Composer.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("quote: catalog provider is required")
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, err
	}
	return &Composer{catalog: cfg.Catalog, tiers: cfg.Tiers, defaults: cfg.Defaults, logger: cfg.Logger}, nil
}

// Compose prices every line of req. Request-level problems (bad parameters,
// unknown product ids, unavailable sources) fail the whole call before any
// line is priced; an absent band value only marks its own line.
func (c *Composer) Compose(ctx context.Context, req Request) (Result, error) {
	res, err := c.compose(ctx, req)
	switch {
	case err == nil:
		obs.ObserveQuoteCompose("ok")
	case errors.Is(err, catalog.ErrProductNotFound):
		obs.ObserveQuoteCompose("product_not_found")
	case errors.Is(err, pricing.ErrInvalidParams):
		obs.ObserveQuoteCompose("invalid")
	default:
		obs.ObserveQuoteCompose("error")
	}
	return res, err
}

func (c *Composer) compose(ctx context.Context, req Request) (Result, error) {
	params, tiered, err := c.defaults.Resolve(req.Overrides())
	if err != nil {
		return Result{}, err
	}
	terms, err := lineTerms(req.Items)
	if err != nil {
		return Result{}, err
	}

	snap, err := c.catalog.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	products := make([]catalog.Product, len(req.Items))
	for i, item := range req.Items {
		p, err := snap.Get(item.ProductID)
		if err != nil {
			return Result{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		products[i] = p
	}

	var schedule pricing.TierSchedule
	if tiered {
		schedule = c.tiers
	}
	rates := pricing.NewTierRates(schedule)

	res := Result{
		Items:        make([]PricedItem, len(req.Items)),
		TotalAmount:  decimal.Zero,
		ExchangeRate: params.ExchangeRate,
		PriceMode:    params.PriceMode,
		TaxRate:      params.TaxRate,
		FobRate:      params.FobRate,
		IncludeTax:   params.IncludeTax,
		IsFob:        params.IsFob,
	}
	for i, item := range req.Items {
		p := products[i]
		line := PricedItem{
			LineNo:      i + 1,
			ProductID:   p.ID,
			OENumber:    p.OENumber,
			BrandCode:   p.BrandCode,
			XKNo:        p.XKNo,
			Name:        p.Name,
			ImageURL:    p.ImageURL,
			Quantity:    item.Quantity,
			OurPriceMin: p.Band.Min,
			OurPriceAvg: p.Band.Avg,
			OurPriceMax: p.Band.Max,
			Remark:      item.Remark,
		}

		var tierRate *decimal.Decimal
		if _, locked := terms[i].State.(pricing.Locked); !locked && terms[i].ProfitRate == nil {
			tierRate, err = rates.For(ctx, item.Quantity)
			if err != nil {
				return Result{}, err
			}
		}

		out, err := pricing.Price(pricing.Input{
			Band:     p.Band,
			Quantity: item.Quantity,
			Params:   params,
			Terms:    terms[i],
			TierRate: tierRate,
		})
		if errors.Is(err, pricing.ErrInvalidBand) {
			line.Error = ItemErrorInvalidBand
			res.Items[i] = line
			continue
		}
		if err != nil {
			return Result{}, err
		}

		unit := out.UnitPrice
		subtotal := pricing.RoundMoney(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
		line.UnitPrice = &unit
		line.Subtotal = &subtotal
		line.Locked = out.Locked
		line.RateSource = out.RateSource
		if !out.Locked {
			seed, rate := out.Seed, out.ProfitRate
			line.SeedPrice = &seed
			line.ProfitRate = &rate
			line.IncludeTax = out.IncludeTax
			line.IsFob = out.IsFob
		}
		res.Items[i] = line
		res.TotalAmount = res.TotalAmount.Add(subtotal)
		res.TotalCount += item.Quantity
		res.PricedCount++
	}
	res.TotalAmount = pricing.RoundMoney(res.TotalAmount)

	c.logger.Debug().
		Int("lines", len(res.Items)).
		Int("priced", res.PricedCount).
		Str("total", res.TotalAmount.StringFixed(pricing.MoneyPlaces)).
		Msg("quote_composed")
	return res, nil
}

func lineTerms(items []LineItem) ([]pricing.Terms, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", pricing.ErrInvalidParams)
	}
	terms := make([]pricing.Terms, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d: quantity must be positive", pricing.ErrInvalidParams, i+1)
		}
		if item.ProfitRateOverride != nil && item.ProfitRateOverride.LessThanOrEqual(decimal.NewFromInt(-1)) {
			return nil, fmt.Errorf("%w: line %d: profit rate must be greater than -1", pricing.ErrInvalidParams, i+1)
		}
		t := pricing.Terms{
			ProfitRate: item.ProfitRateOverride,
			IncludeTax: item.IncludeTax,
			IsFob:      item.IsFob,
			State:      pricing.Computed{},
		}
		if item.Locked {
			if item.FinalPrice == nil {
				return nil, fmt.Errorf("%w: line %d: locked line needs a final price", pricing.ErrInvalidParams, i+1)
			}
			if item.FinalPrice.IsNegative() {
				return nil, fmt.Errorf("%w: line %d: final price must not be negative", pricing.ErrInvalidParams, i+1)
			}
			t.State = pricing.Locked{FinalPrice: *item.FinalPrice}
		}
		terms[i] = t
	}
	return terms, nil
}
