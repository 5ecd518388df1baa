package catalog_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

func band(min, avg, max string) pricing.Band {
	var b pricing.Band
	if min != "" {
		b.Min = decimal.NewNullDecimal(decimal.RequireFromString(min))
	}
	if avg != "" {
		b.Avg = decimal.NewNullDecimal(decimal.RequireFromString(avg))
	}
	if max != "" {
		b.Max = decimal.NewNullDecimal(decimal.RequireFromString(max))
	}
	return b
}

func TestSnapshotResolve(t *testing.T) {
	snap, err := catalog.NewSnapshot([]catalog.Product{
		{ID: "p-3", OENumber: "12-ab", BrandCode: "TOY", Band: band("10", "12", "15")},
		{ID: "p-2", OENumber: "0012AB", BrandCode: "DEN", Band: band("", "11", "")},
		{ID: "p-1", OENumber: "12AB", BrandCode: "DEN", Band: band("9", "11", "13")},
		{ID: "p-4", OENumber: "77-X / 0012-ab", BrandCode: "AAA", Band: band("1", "", "")},
	})
	require.NoError(t, err)
	require.Equal(t, 4, snap.Len())

	got, err := snap.Resolve("0012-AB")
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	require.Equal(t, []string{"p-4", "p-1", "p-2", "p-3"}, ids)

	alias, err := snap.Resolve("77x")
	require.NoError(t, err)
	require.Len(t, alias, 1)
	require.Equal(t, "p-4", alias[0].ID)

	_, err = snap.Resolve("99-ZZ")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = snap.Resolve(" - ")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSnapshotGet(t *testing.T) {
	snap, err := catalog.NewSnapshot([]catalog.Product{{ID: "p-1", OENumber: "1"}})
	require.NoError(t, err)

	p, err := snap.Get("p-1")
	require.NoError(t, err)
	require.Equal(t, "1", p.OENumber)

	_, err = snap.Get("missing")
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestSnapshotRejectsDuplicateIDs(t *testing.T) {
	_, err := catalog.NewSnapshot([]catalog.Product{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
	_, err = catalog.NewSnapshot([]catalog.Product{{ID: " "}})
	require.Error(t, err)
}

func TestParseProductsYAML(t *testing.T) {
	doc := []byte(`
products:
  - id: P-1
    oe: "12-ab / 12AB-ALT"
    brand: DEN
    xkNo: XK-001
    min: "10"
    avg: "12"
    max: ""
    image: https://img.example/p1.png
  - id: P-2
    oe: "55"
    aliases: ["0055-B"]
    brand: TOY
    avg: "3.5"
`)
	products, err := catalog.ParseProductsYAML(doc)
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.True(t, products[0].Band.Min.Valid)
	require.False(t, products[0].Band.Max.Valid)
	require.Equal(t, []string{"12AB", "12ABALT"}, products[0].Keys())
	require.Equal(t, []string{"55", "55B"}, products[1].Keys())

	_, err = catalog.ParseProductsYAML([]byte("products:\n  - id: X\n    min: abc\n"))
	require.Error(t, err)
}
