package catalog

import (
	"errors"

	"github.com/noah-isme/backend-quote/internal/pricing"
)

var (
	// ErrNotFound indicates no catalog key matched a normalised reference.
	ErrNotFound = errors.New("catalog: reference not found")
	// ErrProductNotFound indicates a product id is absent from the catalog.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrUnavailable indicates the catalog source could not be reached in time.
	ErrUnavailable = errors.New("catalog: source unavailable")
)

// Product is an immutable catalog entry with its base-currency price band.
type Product struct {
	ID        string       `json:"id"`
	OENumber  string       `json:"oeNumber"`
	Aliases   []string     `json:"aliases,omitempty"`
	BrandCode string       `json:"brandCode"`
	XKNo      string       `json:"xkNo,omitempty"`
	Name      string       `json:"name,omitempty"`
	Band      pricing.Band `json:"band"`
	ImageURL  string       `json:"imageUrl,omitempty"`
}

// Keys returns the distinct normalised lookup keys of the product: every
// part of the primary OE field followed by the aliases.
func (p Product) Keys() []string {
	raw := append(SplitReferences(p.OENumber), p.Aliases...)
	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, ref := range raw {
		key := NormalizeReference(ref)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
