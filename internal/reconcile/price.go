package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// ErrUnparsablePrice marks a customer price that cannot be read as a number.
var ErrUnparsablePrice = errors.New("reconcile: unparsable price")

// Currency is the declared currency of customer prices.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyRMB Currency = "RMB"
)

// ParseCurrency accepts USD, RMB and CNY (an alias of RMB). Blank yields fallback.
func ParseCurrency(value string, fallback Currency) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "":
		return fallback, nil
	case "USD":
		return CurrencyUSD, nil
	case "RMB", "CNY":
		return CurrencyRMB, nil
	default:
		return "", fmt.Errorf("unsupported currency %q", value)
	}
}

var currencyCodes = []string{"USD", "RMB", "CNY", "US"}

// ParsePrice reads a customer price string. Currency symbols and codes,
// thousands separators and whitespace are ignored; what remains must be a
// plain non-negative decimal.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.ToUpper(width.Fold.String(raw))
	for _, code := range currencyCodes {
		s = strings.ReplaceAll(s, code, "")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), r == ',', r == '$', r == '¥', r == '€', r == '￥':
			continue
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if !plainDecimal(cleaned) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnparsablePrice, raw)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnparsablePrice, raw)
	}
	return d, nil
}

// plainDecimal accepts digits with at most one decimal point and at least one digit.
func plainDecimal(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
