package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Band is a product's {min, avg, max} price triple in base currency. Each slot is optional.
type Band struct {
	Min decimal.NullDecimal `json:"min"`
	Avg decimal.NullDecimal `json:"avg"`
	Max decimal.NullDecimal `json:"max"`
}

// Select returns the slot chosen by mode, or ErrInvalidBand when it is absent.
func (b Band) Select(mode PriceMode) (decimal.Decimal, error) {
	var slot decimal.NullDecimal
	switch mode {
	case PriceModeMin:
		slot = b.Min
	case PriceModeAvg:
		slot = b.Avg
	case PriceModeMax:
		slot = b.Max
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unknown price mode %q", ErrInvalidParams, mode)
	}
	if !slot.Valid {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidBand, mode)
	}
	return slot.Decimal, nil
}

// Completeness counts the populated slots.
func (b Band) Completeness() int {
	n := 0
	for _, slot := range []decimal.NullDecimal{b.Min, b.Avg, b.Max} {
		if slot.Valid {
			n++
		}
	}
	return n
}

// NewBand is a convenience for building fully populated bands.
func NewBand(min, avg, max decimal.Decimal) Band {
	return Band{
		Min: decimal.NewNullDecimal(min),
		Avg: decimal.NewNullDecimal(avg),
		Max: decimal.NewNullDecimal(max),
	}
}
