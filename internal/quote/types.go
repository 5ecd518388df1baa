package quote

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-quote/internal/pricing"
)

// LineItem is one requested quote line.
type LineItem struct {
	ProductID          string           `json:"productId" validate:"required"`
	Quantity           int              `json:"quantity" validate:"gt=0"`
	ProfitRateOverride *decimal.Decimal `json:"profitRateOverride,omitempty"`
	IncludeTax         *bool            `json:"includeTax,omitempty"`
	IsFob              *bool            `json:"isFob,omitempty"`
	Locked             bool             `json:"locked,omitempty"`
	FinalPrice         *decimal.Decimal `json:"finalPrice,omitempty"`
	Remark             string           `json:"remark,omitempty" validate:"max=500"`
}

// Request is the calculate-quote payload.
type Request struct {
	Items             []LineItem       `json:"items" validate:"required,min=1,max=2000,dive"`
	PriceMode         string           `json:"priceMode,omitempty" validate:"omitempty,oneof=min avg max MIN AVG MAX"`
	ExchangeRate      *decimal.Decimal `json:"exchangeRate,omitempty"`
	DefaultProfitRate *decimal.Decimal `json:"defaultProfitRate,omitempty"`
	TaxRate           *decimal.Decimal `json:"taxRate,omitempty"`
	FobRate           *decimal.Decimal `json:"fobRate,omitempty"`
	IncludeTax        bool             `json:"includeTax"`
	IsFob             bool             `json:"isFob"`
}

// Overrides extracts the request-level pricing parameters.
func (r Request) Overrides() pricing.Overrides {
	return pricing.Overrides{
		PriceMode:         r.PriceMode,
		ExchangeRate:      r.ExchangeRate,
		DefaultProfitRate: r.DefaultProfitRate,
		TaxRate:           r.TaxRate,
		FobRate:           r.FobRate,
		IncludeTax:        r.IncludeTax,
		IsFob:             r.IsFob,
	}
}

// ItemErrorInvalidBand marks a line whose selected band value is absent.
const ItemErrorInvalidBand = "invalid_band"

// PricedItem is one computed quote line. Price fields are nil when the line
// could not be priced.
type PricedItem struct {
	LineNo      int                 `json:"lineNo"`
	ProductID   string              `json:"productId"`
	OENumber    string              `json:"oeNumber"`
	BrandCode   string              `json:"brandCode,omitempty"`
	XKNo        string              `json:"xkNo,omitempty"`
	Name        string              `json:"name,omitempty"`
	ImageURL    string              `json:"imageUrl,omitempty"`
	Quantity    int                 `json:"quantity"`
	OurPriceMin decimal.NullDecimal `json:"ourPriceMin"`
	OurPriceAvg decimal.NullDecimal `json:"ourPriceAvg"`
	OurPriceMax decimal.NullDecimal `json:"ourPriceMax"`
	SeedPrice   *decimal.Decimal    `json:"seedPrice,omitempty"`
	ProfitRate  *decimal.Decimal    `json:"profitRate,omitempty"`
	RateSource  pricing.RateSource  `json:"rateSource,omitempty"`
	IncludeTax  bool                `json:"includeTax"`
	IsFob       bool                `json:"isFob"`
	Locked      bool                `json:"locked"`
	UnitPrice   *decimal.Decimal    `json:"unitPrice"`
	Subtotal    *decimal.Decimal    `json:"subtotal"`
	Remark      string              `json:"remark,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Result is the composed quote. Totals cover priced lines only.
type Result struct {
	Items        []PricedItem      `json:"items"`
	TotalCount   int               `json:"totalCount"`
	TotalAmount  decimal.Decimal   `json:"totalAmount"`
	ExchangeRate decimal.Decimal   `json:"exchangeRate"`
	PriceMode    pricing.PriceMode `json:"priceMode"`
	TaxRate      decimal.Decimal   `json:"taxRate"`
	FobRate      decimal.Decimal   `json:"fobRate"`
	IncludeTax   bool              `json:"includeTax"`
	IsFob        bool              `json:"isFob"`
	PricedCount  int               `json:"pricedCount"`
}
