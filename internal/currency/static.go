// Package currency provides the exchange-rate sources behind money.Converter.
package currency

import (
	"context"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

// StaticProvider serves rates from a fixed table, typically the currency.rates
// section of the configuration
type StaticProvider struct {
	base  types.Currency
	rates map[types.Currency]decimal.Decimal
}

// NewStaticProvider builds a provider from code -> rate pairs, where the rate
// is the value of one unit of the code in base
func NewStaticProvider(base types.Currency, rates map[string]string) (*StaticProvider, error) {
	p := &StaticProvider{
		base:  base,
		rates: make(map[types.Currency]decimal.Decimal, len(rates)),
	}
	for code, raw := range rates {
		c, err := types.ParseCurrency(code)
		if err != nil {
			return nil, err
		}
		r, err := decimal.NewFromString(raw)
		if err != nil || !r.IsPositive() {
			return nil, ierr.NewErrorf("invalid rate %q for %s", raw, code).
				WithHint("Exchange rates must be positive decimals").
				Mark(ierr.ErrValidation)
		}
		p.rates[c] = r
	}
	return p, nil
}

func (p *StaticProvider) Rate(_ context.Context, from types.Currency) (decimal.Decimal, error) {
	if from == p.base {
		return decimal.NewFromInt(1), nil
	}
	r, ok := p.rates[from]
	if !ok {
		return decimal.Zero, ierr.NewErrorf("no static rate for %s", from).
			WithHintf("No exchange rate configured for %s", from).
			Mark(ierr.ErrNotFound)
	}
	return r, nil
}
