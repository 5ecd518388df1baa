package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/backend-quote/internal/pricing"
)

// Source loads the full product set from a backing store.
type Source interface {
	LoadProducts(ctx context.Context) ([]Product, error)
}

// StaticSource serves a fixed product list.
type StaticSource []Product

// LoadProducts implements Source.
func (s StaticSource) LoadProducts(context.Context) ([]Product, error) {
	out := make([]Product, len(s))
	copy(out, s)
	return out, nil
}

type yamlProduct struct {
	ID      string   `yaml:"id"`
	OE      string   `yaml:"oe"`
	Aliases []string `yaml:"aliases"`
	Brand   string   `yaml:"brand"`
	XKNo    string   `yaml:"xkNo"`
	Name    string   `yaml:"name"`
	Min     string   `yaml:"min"`
	Avg     string   `yaml:"avg"`
	Max     string   `yaml:"max"`
	Image   string   `yaml:"image"`
}

type yamlCatalog struct {
	Products []yamlProduct `yaml:"products"`
}

// FileSource reads products from a YAML catalog file.
type FileSource struct {
	Path string
}

// LoadProducts implements Source.
func (f FileSource) LoadProducts(context.Context) ([]Product, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseProductsYAML(data)
}

// ParseProductsYAML decodes a YAML catalog document. Band values are decimal
// strings; blank values are treated as absent.
func ParseProductsYAML(data []byte) ([]Product, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}
	products := make([]Product, 0, len(doc.Products))
	for i, row := range doc.Products {
		band, err := parseBand(row.Min, row.Avg, row.Max)
		if err != nil {
			return nil, fmt.Errorf("product %d (%s): %w", i, row.ID, err)
		}
		products = append(products, Product{
			ID:        strings.TrimSpace(row.ID),
			OENumber:  strings.TrimSpace(row.OE),
			Aliases:   row.Aliases,
			BrandCode: strings.TrimSpace(row.Brand),
			XKNo:      strings.TrimSpace(row.XKNo),
			Name:      strings.TrimSpace(row.Name),
			Band:      band,
			ImageURL:  strings.TrimSpace(row.Image),
		})
	}
	return products, nil
}

func parseBand(min, avg, max string) (pricing.Band, error) {
	var band pricing.Band
	var err error
	if band.Min, err = ParseBandValue(min); err != nil {
		return band, fmt.Errorf("min: %w", err)
	}
	if band.Avg, err = ParseBandValue(avg); err != nil {
		return band, fmt.Errorf("avg: %w", err)
	}
	if band.Max, err = ParseBandValue(max); err != nil {
		return band, fmt.Errorf("max: %w", err)
	}
	return band, nil
}

// ParseBandValue parses an optional decimal; blank input yields an absent value.
func ParseBandValue(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("negative band value %s", raw)
	}
	return decimal.NewNullDecimal(d), nil
}
