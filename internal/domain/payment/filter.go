package payment

import (
	"sort"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
)

// MatchesFilter applies every set field of f to p
func MatchesFilter(p *Payment, f *types.PaymentFilter) bool {
	if p == nil {
		return false
	}
	if f == nil {
		return true
	}
	if f.InvoiceID != "" && p.InvoiceID != f.InvoiceID {
		return false
	}
	if f.ClientID != "" && p.ClientID != f.ClientID {
		return false
	}
	if f.Gateway != "" && p.Gateway != f.Gateway {
		return false
	}
	if f.GatewayRef != "" && p.GatewayRef != f.GatewayRef {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, p.PaymentStatus) {
		return false
	}
	return true
}

// SortAndPage orders payments by creation time and applies limit and offset
func SortAndPage(items []*Payment, f *types.PaymentFilter) []*Payment {
	var qf types.QueryFilter
	if f != nil && f.QueryFilter != nil {
		qf = *f.QueryFilter
	}
	asc := qf.GetOrder() == types.OrderAsc
	sort.SliceStable(items, func(a, b int) bool {
		if asc {
			return items[a].CreatedAt.Before(items[b].CreatedAt)
		}
		return items[a].CreatedAt.After(items[b].CreatedAt)
	})
	if qf.IsUnlimited() {
		return items
	}
	start := qf.GetOffset()
	if start >= len(items) {
		return []*Payment{}
	}
	return items[start:lo.Min([]int{start + qf.GetLimit(), len(items)})]
}

// NewNotFoundError reports a missing payment
func NewNotFoundError(key string) error {
	return ierr.NewErrorf("payment %s not found", key).
		WithHintf("Payment %s was not found", key).
		WithReportableDetails(map[string]any{
			"payment": key,
		}).
		Mark(ierr.ErrNotFound)
}
