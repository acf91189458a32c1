package money

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
)

// cryptoPrecision is the display precision for crypto amounts; symbols
// don't exist for these so the code is appended instead.
const cryptoPrecision = 8

// RateSource resolves how many units of a currency one US dollar buys.
type RateSource interface {
	Rate(ctx context.Context, cur enums.Currency) (decimal.Decimal, error)
}

// Formatter renders USD amounts as localized price strings in the
// shopper's display currency and locale. Prices are always stored in USD;
// display conversion is cosmetic and never feeds back into totals.
type Formatter struct {
	rates RateSource

	mu       sync.Mutex
	printers map[language.Tag]*message.Printer
}

// NewFormatter builds a formatter backed by the provided rate source.
func NewFormatter(rates RateSource) (*Formatter, error) {
	if rates == nil {
		return nil, fmt.Errorf("rate source required")
	}
	return &Formatter{
		rates:    rates,
		printers: map[language.Tag]*message.Printer{},
	}, nil
}

// printerFor returns the cached printer for the locale. An undetermined
// tag renders as English.
func (f *Formatter) printerFor(loc language.Tag) *message.Printer {
	if loc == language.Und {
		loc = language.English
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.printers[loc]
	if !ok {
		p = message.NewPrinter(loc)
		f.printers[loc] = p
	}
	return p
}

// Format converts the USD amount into the requested currency and renders
// it for display with the locale's grouping and decimal conventions.
// Unknown currencies fall back to USD rather than fail: a storefront
// price label should degrade, not error.
func (f *Formatter) Format(ctx context.Context, amountUSD decimal.Decimal, cur enums.Currency, loc language.Tag) (string, error) {
	if !cur.IsValid() {
		cur = enums.CurrencyUSD
	}

	converted, err := f.Convert(ctx, amountUSD, cur)
	if err != nil {
		return "", err
	}

	if cur.IsCrypto() {
		return converted.StringFixed(cryptoPrecision) + " " + string(cur), nil
	}

	unit, err := currency.ParseISO(string(cur))
	if err != nil {
		// Not an ISO code the formatter knows: degrade to USD.
		unit = currency.USD
		converted = amountUSD
	}

	return f.printerFor(loc).Sprintf("%v", currency.Symbol(unit.Amount(converted.InexactFloat64()))), nil
}

// Convert returns the USD amount expressed in the target currency,
// rounded to display precision.
func (f *Formatter) Convert(ctx context.Context, amountUSD decimal.Decimal, cur enums.Currency) (decimal.Decimal, error) {
	if cur == enums.CurrencyUSD {
		return amountUSD.Round(2), nil
	}

	rate, err := f.rates.Rate(ctx, cur)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve exchange rate")
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "exchange rate unavailable")
	}

	converted := amountUSD.Mul(rate)
	if cur.IsCrypto() {
		return converted.Round(cryptoPrecision), nil
	}
	return converted.Round(2), nil
}
