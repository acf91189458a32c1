package enums

import (
	"fmt"
	"strings"
)

// Currency represents the display currencies the storefront offers.
// Cart math is always carried out in USD; other currencies are display-only.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyBTC Currency = "BTC"
	CurrencyETH Currency = "ETH"
	CurrencyLTC Currency = "LTC"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
	CurrencyCAD,
	CurrencyAUD,
	CurrencyBTC,
	CurrencyETH,
	CurrencyLTC,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsCrypto reports whether the currency is a crypto denomination, which
// renders with 8 fractional digits instead of ISO formatting.
func (c Currency) IsCrypto() bool {
	switch c {
	case CurrencyBTC, CurrencyETH, CurrencyLTC:
		return true
	default:
		return false
	}
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validCurrencies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
