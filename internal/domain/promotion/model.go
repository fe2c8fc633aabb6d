package promotion

import (
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

// Promotion is a discount code. Code is stored upper case and looked up
// case-insensitively.
type Promotion struct {
	ID   string             `json:"id"`
	Code string             `json:"code"`
	Name string             `json:"name"`
	Type types.DiscountType `json:"type"`
	// Value is a percentage (0-100) or a fixed amount in the invoice currency
	Value decimal.Decimal `json:"value"`
	// Currency restricts fixed promotions to one currency; empty means any
	Currency   types.Currency `json:"currency,omitempty"`
	StartDate  *time.Time     `json:"start_date,omitempty"`
	EndDate    *time.Time     `json:"end_date,omitempty"`
	UsageLimit *int           `json:"usage_limit,omitempty"`
	UsedCount  int            `json:"used_count"`
	// MinPurchase is compared against the full cart subtotal
	MinPurchase *decimal.Decimal `json:"min_purchase,omitempty"`
	// Categories restricts the discount to line items in these categories
	Categories []string `json:"categories,omitempty"`
	Active     bool     `json:"active"`

	types.BaseModel
}

// NormalizeCode returns the stored form of a promotion code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsRestricted reports whether only some categories are eligible
func (p *Promotion) IsRestricted() bool {
	return len(p.Categories) > 0
}

// AppliesToCategory matches case-insensitively against the restriction set
func (p *Promotion) AppliesToCategory(category string) bool {
	for _, c := range p.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// IsExhausted reports whether the usage cap has been reached
func (p *Promotion) IsExhausted() bool {
	return p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit
}

func (p *Promotion) Clone() *Promotion {
	if p == nil {
		return nil
	}
	c := *p
	if p.StartDate != nil {
		t := *p.StartDate
		c.StartDate = &t
	}
	if p.EndDate != nil {
		t := *p.EndDate
		c.EndDate = &t
	}
	if p.UsageLimit != nil {
		n := *p.UsageLimit
		c.UsageLimit = &n
	}
	if p.MinPurchase != nil {
		m := *p.MinPurchase
		c.MinPurchase = &m
	}
	c.Categories = append([]string(nil), p.Categories...)
	return &c
}
