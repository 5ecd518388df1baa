package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrScheduleUnavailable is returned when the tier schedule source cannot be reached.
var ErrScheduleUnavailable = errors.New("pricing: profit tier schedule unavailable")

// TierSchedule resolves the profit rate for a quantity. found is false when
// no tier covers the quantity.
type TierSchedule interface {
	ProfitRate(ctx context.Context, quantity int) (rate decimal.Decimal, found bool, err error)
}

// Tier maps an inclusive quantity range to a profit rate. MaxQuantity 0 means unbounded.
type Tier struct {
	MinQuantity int             `json:"minQuantity"`
	MaxQuantity int             `json:"maxQuantity"`
	Rate        decimal.Decimal `json:"rate"`
}

func (t Tier) covers(quantity int) bool {
	if quantity < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == 0 || quantity <= t.MaxQuantity
}

// Schedule is an immutable, validated list of tiers.
type Schedule struct {
	tiers []Tier
}

// DefaultTiers mirrors the schedule the quoting desk has used historically.
func DefaultTiers() []Tier {
	return []Tier{
		{MinQuantity: 1, MaxQuantity: 99, Rate: decimal.RequireFromString("0.10")},
		{MinQuantity: 100, MaxQuantity: 199, Rate: decimal.RequireFromString("0.06")},
		{MinQuantity: 200, MaxQuantity: 499, Rate: decimal.RequireFromString("0.03")},
		{MinQuantity: 500, MaxQuantity: 0, Rate: decimal.Zero},
	}
}

// NewSchedule sorts and validates tiers. Overlapping ranges are rejected.
func NewSchedule(tiers []Tier) (Schedule, error) {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQuantity < sorted[j].MinQuantity })
	for i, t := range sorted {
		if t.MinQuantity < 1 {
			return Schedule{}, fmt.Errorf("tier %d: min quantity must be at least 1", i)
		}
		if t.MaxQuantity != 0 && t.MaxQuantity < t.MinQuantity {
			return Schedule{}, fmt.Errorf("tier %d: max quantity below min quantity", i)
		}
		if t.Rate.LessThanOrEqual(one.Neg()) {
			return Schedule{}, fmt.Errorf("tier %d: rate must be greater than -1", i)
		}
		if i > 0 {
			prev := sorted[i-1]
			if prev.MaxQuantity == 0 || prev.MaxQuantity >= t.MinQuantity {
				return Schedule{}, fmt.Errorf("tier %d overlaps tier starting at %d", i, prev.MinQuantity)
			}
		}
	}
	return Schedule{tiers: sorted}, nil
}

// MustSchedule panics when tiers are invalid. Intended for defaults and tests.
func MustSchedule(tiers []Tier) Schedule {
	s, err := NewSchedule(tiers)
	if err != nil {
		panic(err)
	}
	return s
}

// ProfitRate implements TierSchedule.
func (s Schedule) ProfitRate(_ context.Context, quantity int) (decimal.Decimal, bool, error) {
	for _, t := range s.tiers {
		if t.covers(quantity) {
			return t.Rate, true, nil
		}
	}
	return decimal.Decimal{}, false, nil
}

// Tiers returns a copy of the schedule's tiers.
func (s Schedule) Tiers() []Tier {
	out := make([]Tier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// TierRates memoises schedule lookups for the lifetime of one request so every
// line with the same quantity sees the same rate. Not safe for concurrent use.
type TierRates struct {
	schedule TierSchedule
	cache    map[int]*decimal.Decimal
}

// NewTierRates wraps schedule. A nil schedule yields no tier rates.
func NewTierRates(schedule TierSchedule) *TierRates {
	return &TierRates{schedule: schedule, cache: make(map[int]*decimal.Decimal)}
}

// For returns the tier rate for quantity or nil when none applies.
func (r *TierRates) For(ctx context.Context, quantity int) (*decimal.Decimal, error) {
	if r == nil || r.schedule == nil {
		return nil, nil
	}
	if rate, ok := r.cache[quantity]; ok {
		return rate, nil
	}
	rate, found, err := r.schedule.ProfitRate(ctx, quantity)
	if err != nil {
		return nil, err
	}
	var out *decimal.Decimal
	if found {
		out = &rate
	}
	r.cache[quantity] = out
	return out, nil
}
