package money

import (
	"context"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

// ErrConversionUnavailable is attached when no usable rate could be obtained
var ErrConversionUnavailable = ierr.New("conversion_unavailable", "currency conversion unavailable")

// RateProvider returns how many units of the base currency one unit of from is worth
type RateProvider interface {
	Rate(ctx context.Context, from types.Currency) (decimal.Decimal, error)
}

// Conversion is the result of converting an amount into the base currency
type Conversion struct {
	Amount   decimal.Decimal
	Rate     decimal.Decimal
	Currency types.Currency
}

// Converter converts transaction amounts into the accounting base currency
type Converter struct {
	base     types.Currency
	provider RateProvider
}

// NewConverter returns a converter into base backed by provider
func NewConverter(base types.Currency, provider RateProvider) *Converter {
	return &Converter{base: base, provider: provider}
}

// Base is the accounting currency amounts are converted into
func (c *Converter) Base() types.Currency {
	return c.base
}

// ConvertToBase converts amount in from into the base currency. Converting the
// base currency into itself never reaches the provider and uses rate 1.
func (c *Converter) ConvertToBase(ctx context.Context, amount decimal.Decimal, from types.Currency) (Conversion, error) {
	if from == c.base {
		return Conversion{Amount: Round(amount, c.base), Rate: decimal.NewFromInt(1), Currency: c.base}, nil
	}

	if c.provider == nil {
		return Conversion{}, unavailable(nil, from, c.base)
	}

	rate, err := c.provider.Rate(ctx, from)
	if err != nil {
		return Conversion{}, unavailable(err, from, c.base)
	}
	if !rate.IsPositive() {
		return Conversion{}, unavailable(nil, from, c.base)
	}

	return c.ConvertWithRate(amount, rate), nil
}

// ConvertWithRate converts amount with a rate captured earlier. Payments use
// the rate stored on their invoice rather than a fresh lookup.
func (c *Converter) ConvertWithRate(amount, rate decimal.Decimal) Conversion {
	return Conversion{
		Amount:   Round(amount.Mul(rate), c.base),
		Rate:     rate,
		Currency: c.base,
	}
}

func unavailable(cause error, from, base types.Currency) error {
	var b *ierr.ErrorBuilder
	if cause != nil {
		b = ierr.WithError(cause)
	} else {
		b = ierr.NewErrorf("no rate from %s to %s", from, base)
	}
	return b.
		WithMark(ErrConversionUnavailable).
		WithHintf("Currency conversion from %s to %s is unavailable", from, base).
		WithReportableDetails(map[string]any{
			"from": from,
			"to":   base,
		}).
		Mark(ierr.ErrExternalService)
}
