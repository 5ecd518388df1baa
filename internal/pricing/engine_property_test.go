package pricing

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func cents(n int) decimal.Decimal { return decimal.New(int64(n), -2) }

func propertyParams(profitBps, rateMilli int, tax, fob bool) Params {
	return Params{
		PriceMode:         PriceModeAvg,
		ExchangeRate:      decimal.New(int64(rateMilli), -3),
		DefaultProfitRate: decimal.New(int64(profitBps), -4),
		TaxRate:           dec("0.13"),
		FobRate:           dec("0.05"),
		IncludeTax:        tax,
		IsFob:             fob,
	}
}

func TestPriceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("pricing is deterministic", prop.ForAll(
		func(seed, profit, rate int, tax, fob bool) bool {
			in := Input{Band: NewBand(cents(seed), cents(seed), cents(seed)), Quantity: 1, Params: propertyParams(profit, rate, tax, fob)}
			a, errA := Price(in)
			b, errB := Price(in)
			return errA == nil && errB == nil && a.UnitPrice.String() == b.UnitPrice.String()
		},
		gen.IntRange(0, 1_000_000), gen.IntRange(0, 20_000), gen.IntRange(1, 20_000), gen.Bool(), gen.Bool(),
	))

	properties.Property("raising the default profit rate never lowers the price", prop.ForAll(
		func(seed, profit, delta, rate int) bool {
			band := NewBand(cents(seed), cents(seed), cents(seed))
			low, err := Price(Input{Band: band, Params: propertyParams(profit, rate, true, false)})
			if err != nil {
				return false
			}
			high, err := Price(Input{Band: band, Params: propertyParams(profit+delta, rate, true, false)})
			if err != nil {
				return false
			}
			return high.UnitPrice.GreaterThanOrEqual(low.UnitPrice)
		},
		gen.IntRange(0, 1_000_000), gen.IntRange(0, 10_000), gen.IntRange(0, 10_000), gen.IntRange(1, 20_000),
	))

	properties.Property("doubling the exchange rate doubles the price within a cent", prop.ForAll(
		func(seed, profit, rate int, fob bool) bool {
			band := NewBand(cents(seed), cents(seed), cents(seed))
			single, err := Price(Input{Band: band, Params: propertyParams(profit, rate, false, fob)})
			if err != nil {
				return false
			}
			double, err := Price(Input{Band: band, Params: propertyParams(profit, rate*2, false, fob)})
			if err != nil {
				return false
			}
			diff := double.UnitPrice.Sub(single.UnitPrice.Mul(decimal.NewFromInt(2))).Abs()
			return diff.LessThanOrEqual(dec("0.01"))
		},
		gen.IntRange(0, 1_000_000), gen.IntRange(0, 10_000), gen.IntRange(1, 10_000), gen.Bool(),
	))

	properties.Property("locked lines ignore every parameter", prop.ForAll(
		func(final, profit, rate int, tax bool) bool {
			pinned := cents(final)
			out, err := Price(Input{
				Band:   NewBand(cents(1), cents(2), cents(3)),
				Params: propertyParams(profit, rate, tax, !tax),
				Terms:  Terms{State: Locked{FinalPrice: pinned}},
			})
			return err == nil && out.UnitPrice.Equal(pinned)
		},
		gen.IntRange(0, 1_000_000), gen.IntRange(0, 10_000), gen.IntRange(1, 10_000), gen.Bool(),
	))

	properties.TestingRun(t)
}
