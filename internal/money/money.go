// Package money holds the fixed-point arithmetic every invoice and payment
// amount goes through. Amounts are shopspring decimals rounded half away from
// zero to the precision of their currency.
package money

import (
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round fixes amount to the precision of currency
func Round(amount decimal.Decimal, currency types.Currency) decimal.Decimal {
	return amount.Round(currency.Precision())
}

// ApplyPercentage returns percent% of base, rounded to currency
func ApplyPercentage(base, percent decimal.Decimal, currency types.Currency) decimal.Decimal {
	return Round(base.Mul(percent).Div(hundred), currency)
}

// MinorUnit is the smallest representable amount of currency (0.01 for USD, 1 for IRR)
func MinorUnit(currency types.Currency) decimal.Decimal {
	return decimal.New(1, -currency.Precision())
}

// Tolerance is the drift allowed when comparing a sum of independently
// rounded parts against a rounded total: one minor unit per part.
func Tolerance(currency types.Currency, parts int) decimal.Decimal {
	if parts < 1 {
		parts = 1
	}
	return MinorUnit(currency).Mul(decimal.NewFromInt(int64(parts)))
}

// WithinTolerance reports whether |a-b| <= tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// Max returns the larger of a and b
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ToMinorUnits converts an amount to the integer minor units gateways expect
func ToMinorUnits(amount decimal.Decimal, currency types.Currency) int64 {
	return Round(amount, currency).Shift(currency.Precision()).IntPart()
}

// FromMinorUnits converts gateway minor units back into an amount
func FromMinorUnits(units int64, currency types.Currency) decimal.Decimal {
	return decimal.New(units, -currency.Precision())
}

// Split divides amount into parts equal shares rounded down to the currency
// precision. The last share carries the residual, so the shares always sum to
// amount exactly and none is negative.
func Split(amount decimal.Decimal, parts int, currency types.Currency) (share, last decimal.Decimal) {
	if parts <= 1 {
		return amount, amount
	}
	n := decimal.NewFromInt(int64(parts))
	share = amount.Div(n).RoundDown(currency.Precision())
	last = amount.Sub(share.Mul(decimal.NewFromInt(int64(parts - 1))))
	return share, last
}
