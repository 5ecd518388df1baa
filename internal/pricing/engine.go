package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidBand is returned when the band slot selected by the price mode is absent.
	ErrInvalidBand = errors.New("pricing: selected band value is absent")
	// ErrInvalidParams indicates malformed request-level pricing parameters.
	ErrInvalidParams = errors.New("pricing: invalid parameters")
)

// MoneyPlaces is the number of decimal places kept on monetary outputs.
const MoneyPlaces = 2

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// PriceMode selects which band value seeds a calculation.
type PriceMode string

const (
	PriceModeMin PriceMode = "min"
	PriceModeAvg PriceMode = "avg"
	PriceModeMax PriceMode = "max"
)

// ParsePriceMode normalises user input into a PriceMode.
func ParsePriceMode(value string) (PriceMode, error) {
	switch PriceMode(strings.ToLower(strings.TrimSpace(value))) {
	case PriceModeMin:
		return PriceModeMin, nil
	case PriceModeAvg:
		return PriceModeAvg, nil
	case PriceModeMax:
		return PriceModeMax, nil
	default:
		return "", fmt.Errorf("%w: unknown price mode %q", ErrInvalidParams, value)
	}
}

// Params holds the request-scoped pricing parameters. Rates are fractions (0.2 == 20%).
type Params struct {
	PriceMode         PriceMode
	ExchangeRate      decimal.Decimal
	DefaultProfitRate decimal.Decimal
	TaxRate           decimal.Decimal
	FobRate           decimal.Decimal
	IncludeTax        bool
	IsFob             bool
}

// Validate rejects parameter sets that cannot produce a meaningful price.
func (p Params) Validate() error {
	if _, err := ParsePriceMode(string(p.PriceMode)); err != nil {
		return err
	}
	if !p.ExchangeRate.IsPositive() {
		return fmt.Errorf("%w: exchange rate must be greater than zero", ErrInvalidParams)
	}
	if p.DefaultProfitRate.LessThanOrEqual(one.Neg()) {
		return fmt.Errorf("%w: default profit rate must be greater than -1", ErrInvalidParams)
	}
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", ErrInvalidParams)
	}
	if p.FobRate.IsNegative() {
		return fmt.Errorf("%w: fob rate must not be negative", ErrInvalidParams)
	}
	return nil
}

// LineState is the per-line price state: either Computed or Locked.
type LineState interface {
	lineState()
}

// Computed lines are priced from the band and policy on every pass.
type Computed struct{}

// Locked lines carry a pinned final price that recomputation must not touch.
type Locked struct {
	FinalPrice decimal.Decimal
}

func (Computed) lineState() {}
func (Locked) lineState()   {}

// Terms are the per-line overrides layered on top of Params.
type Terms struct {
	ProfitRate *decimal.Decimal
	IncludeTax *bool
	IsFob      *bool
	State      LineState
}

// RateSource records where the effective profit rate came from.
type RateSource string

const (
	RateSourceOverride RateSource = "override"
	RateSourceTier     RateSource = "tier"
	RateSourceDefault  RateSource = "default"
	RateSourceLocked   RateSource = "locked"
)

// Input is everything the policy needs to price a single unit.
// TierRate is the schedule rate for Quantity, nil when the schedule has no tier for it.
type Input struct {
	Band     Band
	Quantity int
	Params   Params
	Terms    Terms
	TierRate *decimal.Decimal
}

// Breakdown is the auditable result of pricing one unit.
type Breakdown struct {
	Seed       decimal.Decimal
	ProfitRate decimal.Decimal
	RateSource RateSource
	IncludeTax bool
	IsFob      bool
	UnitPrice  decimal.Decimal
	Locked     bool
}

// Price applies the pricing policy. It holds no state, so identical inputs
// always produce identical outputs.
func Price(in Input) (Breakdown, error) {
	if locked, ok := in.Terms.State.(Locked); ok {
		return Breakdown{
			RateSource: RateSourceLocked,
			UnitPrice:  locked.FinalPrice,
			Locked:     true,
		}, nil
	}

	seed, err := in.Band.Select(in.Params.PriceMode)
	if err != nil {
		return Breakdown{}, err
	}

	rate, source := effectiveRate(in)
	includeTax := boolOr(in.Terms.IncludeTax, in.Params.IncludeTax)
	isFob := boolOr(in.Terms.IsFob, in.Params.IsFob)

	marked := seed.Mul(one.Add(rate))
	if includeTax {
		marked = marked.Mul(one.Add(in.Params.TaxRate))
	}
	if isFob {
		marked = marked.Mul(one.Add(in.Params.FobRate))
	}
	unit := RoundMoney(marked.Mul(in.Params.ExchangeRate))

	return Breakdown{
		Seed:       seed,
		ProfitRate: rate,
		RateSource: source,
		IncludeTax: includeTax,
		IsFob:      isFob,
		UnitPrice:  unit,
	}, nil
}

func effectiveRate(in Input) (decimal.Decimal, RateSource) {
	if in.Terms.ProfitRate != nil {
		return *in.Terms.ProfitRate, RateSourceOverride
	}
	if in.TierRate != nil {
		return *in.TierRate, RateSourceTier
	}
	return in.Params.DefaultProfitRate, RateSourceDefault
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// RoundMoney rounds half away from zero to two places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent returns part/whole*100 rounded to two places. ok is false when whole is zero.
func Percent(part, whole decimal.Decimal) (decimal.Decimal, bool) {
	if whole.IsZero() {
		return decimal.Decimal{}, false
	}
	return part.Div(whole).Mul(hundred).Round(MoneyPlaces), true
}
