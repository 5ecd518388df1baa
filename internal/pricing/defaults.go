package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Defaults fills in the request parameters a caller leaves out. ExchangeRate
// is already a base to target multiplier.
type Defaults struct {
	PriceMode    PriceMode
	ExchangeRate decimal.Decimal
	ProfitRate   decimal.Decimal
	TaxRate      decimal.Decimal
	FobRate      decimal.Decimal
}

// StandardDeskRate is the desk's default quote of 7.2 base units (RMB) per
// target unit (USD).
var StandardDeskRate = decimal.RequireFromString("7.2")

// ExchangeRateFromDeskRate turns a desk quote of base units per target unit
// into the base to target multiplier that Params.ExchangeRate holds.
func ExchangeRateFromDeskRate(basePerTarget decimal.Decimal) (decimal.Decimal, error) {
	if !basePerTarget.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: desk exchange rate must be greater than zero", ErrInvalidParams)
	}
	return one.Div(basePerTarget), nil
}

// StandardDefaults returns the quoting desk defaults.
func StandardDefaults() Defaults {
	rate, _ := ExchangeRateFromDeskRate(StandardDeskRate)
	return Defaults{
		PriceMode:    PriceModeAvg,
		ExchangeRate: rate,
		ProfitRate:   decimal.RequireFromString("0.10"),
		TaxRate:      decimal.RequireFromString("0.10"),
		FobRate:      decimal.RequireFromString("0.15"),
	}
}

// Overrides are request-supplied parameters. Nil pointers and a blank mode
// mean "not supplied".
type Overrides struct {
	PriceMode         string
	ExchangeRate      *decimal.Decimal
	DefaultProfitRate *decimal.Decimal
	TaxRate           *decimal.Decimal
	FobRate           *decimal.Decimal
	IncludeTax        bool
	IsFob             bool
}

// Resolve merges o over d and validates the result. tiered is true when the
// caller did not pin a default profit rate, in which case the tier schedule is
// consulted before falling back to the configured default.
func (d Defaults) Resolve(o Overrides) (p Params, tiered bool, err error) {
	p = Params{
		PriceMode:         d.PriceMode,
		ExchangeRate:      d.ExchangeRate,
		DefaultProfitRate: d.ProfitRate,
		TaxRate:           d.TaxRate,
		FobRate:           d.FobRate,
		IncludeTax:        o.IncludeTax,
		IsFob:             o.IsFob,
	}
	if strings.TrimSpace(o.PriceMode) != "" {
		mode, err := ParsePriceMode(o.PriceMode)
		if err != nil {
			return Params{}, false, err
		}
		p.PriceMode = mode
	}
	if o.ExchangeRate != nil {
		p.ExchangeRate = *o.ExchangeRate
	}
	if o.TaxRate != nil {
		p.TaxRate = *o.TaxRate
	}
	if o.FobRate != nil {
		p.FobRate = *o.FobRate
	}
	tiered = o.DefaultProfitRate == nil
	if !tiered {
		p.DefaultProfitRate = *o.DefaultProfitRate
	}
	if err := p.Validate(); err != nil {
		return Params{}, false, err
	}
	return p, tiered, nil
}

// Validate checks the configured defaults themselves.
func (d Defaults) Validate() error {
	_, _, err := d.Resolve(Overrides{})
	if err != nil {
		return fmt.Errorf("pricing defaults: %w", err)
	}
	return nil
}
