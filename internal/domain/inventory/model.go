package inventory

import (
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

// Product is a sellable item whose stock is adjusted after payment
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku,omitempty"`
	Category string          `json:"category,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency types.Currency  `json:"currency"`
	// TrackStock false means stock is never decremented
	TrackStock bool `json:"track_stock"`
	Stock      int  `json:"stock"`
	// VariantStock holds per-variant stock keyed by variant key (e.g. "size:L")
	VariantStock map[string]int `json:"variant_stock,omitempty"`

	types.BaseModel
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	if p.VariantStock != nil {
		c.VariantStock = make(map[string]int, len(p.VariantStock))
		for k, v := range p.VariantStock {
			c.VariantStock[k] = v
		}
	}
	return &c
}

// Decrement removes qty from the product or variant stock, never below
// zero. It reports how many units were actually removed.
func (p *Product) Decrement(variantKey *string, qty int) int {
	if !p.TrackStock || qty <= 0 {
		return 0
	}
	if variantKey != nil && *variantKey != "" {
		current := p.VariantStock[*variantKey]
		removed := min(current, qty)
		if p.VariantStock == nil {
			p.VariantStock = map[string]int{}
		}
		p.VariantStock[*variantKey] = current - removed
		return removed
	}
	removed := min(p.Stock, qty)
	p.Stock -= removed
	return removed
}

// NewNotFoundError reports a missing product
func NewNotFoundError(id string) error {
	return ierr.NewErrorf("product %s not found", id).
		WithHintf("Product %s was not found", id).
		Mark(ierr.ErrNotFound)
}
