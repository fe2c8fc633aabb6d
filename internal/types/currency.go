package types

import (
	"strings"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/samber/lo"
)

// Currency is a supported ISO 4217 currency code. Adding a currency means
// adding it here together with its precision; nothing else switches on codes.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyAED Currency = "AED"
	CurrencyTRY Currency = "TRY"
	CurrencyIRR Currency = "IRR"
)

// currencyPrecision is the number of minor-unit digits for each currency
var currencyPrecision = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyAED: 2,
	CurrencyTRY: 2,
	CurrencyIRR: 0,
}

// CURRENCY_CODES_SYMBOLS is a map of currency codes to their display symbols
var CURRENCY_CODES_SYMBOLS = map[Currency]string{
	CurrencyUSD: "$",
	CurrencyEUR: "€",
	CurrencyGBP: "£",
	CurrencyAED: "د.إ",
	CurrencyTRY: "₺",
	CurrencyIRR: "﷼",
}

// SupportedCurrencies returns every currency code the system accepts
func SupportedCurrencies() []Currency {
	return lo.Keys(currencyPrecision)
}

func (c Currency) String() string {
	return string(c)
}

// Precision returns the number of decimal places used for amounts in c
func (c Currency) Precision() int32 {
	if p, ok := currencyPrecision[c]; ok {
		return p
	}
	return 2
}

// Symbol returns the display symbol, falling back to the code itself
func (c Currency) Symbol() string {
	if symbol, ok := CURRENCY_CODES_SYMBOLS[c]; ok {
		return symbol
	}
	return string(c)
}

func (c Currency) Validate() error {
	if _, ok := currencyPrecision[c]; !ok {
		return ierr.NewError("unsupported currency").
			WithHintf("Currency %q is not supported", string(c)).
			WithReportableDetails(map[string]any{
				"currency":  c,
				"supported": SupportedCurrencies(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ParseCurrency normalises s to upper case and validates it
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// IsMatchingCurrency compares two currency codes case-insensitively
func IsMatchingCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}
