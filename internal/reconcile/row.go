package reconcile

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

// ErrInvalidMatchSet is returned for caller-supplied match sets whose rows
// are inconsistent, such as a matched row without a product.
var ErrInvalidMatchSet = errors.New("reconcile: invalid match set")

// Status is the match outcome of a row.
type Status string

const (
	StatusMatched   Status = "matched"
	StatusUnmatched Status = "unmatched"
	// StatusPending marks rows left unprocessed by a cancelled batch.
	StatusPending Status = "pending"
)

// Reason explains why a row is unmatched.
type Reason string

const (
	ReasonNotFound        Reason = "not_found"
	ReasonUnparsablePrice Reason = "unparsable_price"
)

// Tie-break rules recorded when a reference resolves to several products.
const (
	TieBreakBrandCode    = "brand_code"
	TieBreakCompleteness = "band_completeness"
	TieBreakProductID    = "product_id"
)

// InputRow is one customer price-list row, already mapped to named fields.
type InputRow struct {
	RowIndex         int    `json:"rowIndex,omitempty" validate:"gte=0"`
	Reference        string `json:"reference" validate:"max=200"`
	CustomerPriceRaw string `json:"customerPriceRaw" validate:"max=100"`
	Quantity         int    `json:"quantity,omitempty" validate:"gte=0"`
}

// Match is the matcher's verdict for one row. Ordinal is the row's position
// in the submitted list and its identity across recalculations.
type Match struct {
	Ordinal             int              `json:"ordinal" validate:"gte=0"`
	RowIndex            int              `json:"rowIndex"`
	Reference           string           `json:"reference" validate:"max=200"`
	NormalizedReference string           `json:"normalizedReference"`
	CustomerPriceRaw    string           `json:"customerPriceRaw" validate:"max=100"`
	CustomerPrice       *decimal.Decimal `json:"customerPrice"`
	Quantity            int              `json:"quantity" validate:"gte=0"`
	Status              Status           `json:"status" validate:"oneof=matched unmatched pending"`
	Reason              Reason           `json:"reason,omitempty"`
	Product             *catalog.Product `json:"product,omitempty"`
	CandidateCount      int              `json:"candidateCount"`
	Alternatives        []string         `json:"alternatives,omitempty"`
	TieBreak            string           `json:"tieBreak,omitempty"`
}

// Row is a reconciled row: the match plus prices derived under the current
// parameters. Derived fields are nil for rows that are not matched.
type Row struct {
	Match
	CustomerPriceUsd *decimal.Decimal    `json:"customerPriceUsd"`
	OurPriceMin      decimal.NullDecimal `json:"ourPriceMin"`
	OurPriceAvg      decimal.NullDecimal `json:"ourPriceAvg"`
	OurPriceMax      decimal.NullDecimal `json:"ourPriceMax"`
	OurPriceRmb      *decimal.Decimal    `json:"ourPriceRmb"`
	ProfitRate       *decimal.Decimal    `json:"profitRate"`
	RateSource       pricing.RateSource  `json:"rateSource,omitempty"`
	ComputedPrice    *decimal.Decimal    `json:"computedPrice"`
	Variance         *decimal.Decimal    `json:"variance"`
	VariancePercent  *decimal.Decimal    `json:"variancePercent"`
	PriceError       string              `json:"priceError,omitempty"`
	Remark           string              `json:"remark,omitempty"`
}

// Summary aggregates a reconciliation. Counts cover every row; sums cover
// matched rows that were priced.
type Summary struct {
	TotalRows        int             `json:"totalRows"`
	MatchedCount     int             `json:"matchedCount"`
	UnmatchedCount   int             `json:"unmatchedCount"`
	PendingCount     int             `json:"pendingCount"`
	PricedCount      int             `json:"pricedCount"`
	CustomerTotalUsd decimal.Decimal `json:"customerTotalUsd"`
	OurTotalUsd      decimal.Decimal `json:"ourTotalUsd"`
	TotalDiffUsd     decimal.Decimal `json:"totalDiffUsd"`
}

// Result is a full reconciliation report.
type Result struct {
	ID string `json:"id,omitempty"`
	Summary
	ExchangeRate     decimal.Decimal   `json:"exchangeRate"`
	PriceMode        pricing.PriceMode `json:"priceMode"`
	CustomerCurrency Currency          `json:"customerCurrency"`
	Incomplete       bool              `json:"incomplete"`
	Items            []Row             `json:"items"`
}

// MatchSet is the output of one matching pass.
type MatchSet struct {
	Rows       []Match `json:"rows" validate:"required,min=1,dive"`
	Incomplete bool    `json:"incomplete"`
}

// Validate checks that every matched row carries what pricing needs. Sets
// produced by Matcher always pass.
func (s MatchSet) Validate() error {
	for i, m := range s.Rows {
		switch m.Status {
		case StatusMatched:
			if m.Product == nil {
				return fmt.Errorf("%w: row %d is matched without a product", ErrInvalidMatchSet, i)
			}
			if m.CustomerPrice == nil {
				return fmt.Errorf("%w: row %d is matched without a customer price", ErrInvalidMatchSet, i)
			}
		case StatusUnmatched, StatusPending:
		default:
			return fmt.Errorf("%w: row %d has unknown status %q", ErrInvalidMatchSet, i, m.Status)
		}
	}
	return nil
}
