package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	ok := map[string]string{
		"12.5":         "12.5",
		"$1,234.50":    "1234.5",
		"USD 99":       "99",
		"99 usd":       "99",
		"¥ 88.00":      "88",
		"￥１２３":         "123",
		"RMB1,000":     "1000",
		"CNY 0":        "0",
		"0":            "0",
		" 7 ":          "7",
		"US$ 3,000.25": "3000.25",
	}
	for in, want := range ok {
		got, err := ParsePrice(in)
		require.NoError(t, err, "input %q", in)
		require.Equal(t, want, got.String(), "input %q", in)
	}

	bad := []string{"", "   ", "abc", "-5", "1.2.3", "12 pcs", "N/A", "$"}
	for _, in := range bad {
		_, err := ParsePrice(in)
		require.ErrorIs(t, err, ErrUnparsablePrice, "input %q", in)
	}
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("cny", CurrencyUSD)
	require.NoError(t, err)
	require.Equal(t, CurrencyRMB, c)

	c, err = ParseCurrency("", CurrencyUSD)
	require.NoError(t, err)
	require.Equal(t, CurrencyUSD, c)

	_, err = ParseCurrency("EUR", CurrencyUSD)
	require.Error(t, err)
}
