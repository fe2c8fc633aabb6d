package invoice

import (
	"sort"

	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
)

// MatchesFilter applies every set field of f to inv. Stores without a query
// language (memory, DynamoDB scans) share it.
func MatchesFilter(inv *Invoice, f *types.InvoiceFilter) bool {
	if inv == nil {
		return false
	}
	if f == nil {
		return true
	}
	if f.ClientID != "" && inv.ClientID != f.ClientID {
		return false
	}
	if f.InvoiceNumber != "" && inv.InvoiceNumber != f.InvoiceNumber {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, inv.InvoiceStatus) {
		return false
	}
	if f.Currency != "" && inv.Currency != f.Currency {
		return false
	}
	if f.DueBefore != nil && !inv.DueDate.Before(*f.DueBefore) {
		return false
	}
	if f.IssuedAfter != nil && inv.IssueDate.Before(*f.IssuedAfter) {
		return false
	}
	if f.IssuedBefore != nil && inv.IssueDate.After(*f.IssuedBefore) {
		return false
	}
	if f.PromotionCode != "" && (inv.Promotion == nil || inv.Promotion.Code != f.PromotionCode) {
		return false
	}
	return true
}

// SortAndPage orders invoices by the filter's sort field and applies limit
// and offset
func SortAndPage(items []*Invoice, f *types.InvoiceFilter) []*Invoice {
	var qf types.QueryFilter
	if f != nil && f.QueryFilter != nil {
		qf = *f.QueryFilter
	}

	desc := qf.GetOrder() == types.OrderDesc
	sort.SliceStable(items, func(a, b int) bool {
		x, y := items[a], items[b]
		var less bool
		switch qf.GetSort() {
		case "issue_date":
			less = x.IssueDate.Before(y.IssueDate)
		case "due_date":
			less = x.DueDate.Before(y.DueDate)
		case "total":
			less = x.Total.LessThan(y.Total)
		default:
			less = x.CreatedAt.Before(y.CreatedAt)
		}
		if desc {
			return !less && !sameSortKey(x, y, qf.GetSort())
		}
		return less
	})

	if qf.IsUnlimited() {
		return items
	}
	start := qf.GetOffset()
	if start >= len(items) {
		return []*Invoice{}
	}
	end := lo.Min([]int{start + qf.GetLimit(), len(items)})
	return items[start:end]
}

func sameSortKey(x, y *Invoice, field string) bool {
	switch field {
	case "issue_date":
		return x.IssueDate.Equal(y.IssueDate)
	case "due_date":
		return x.DueDate.Equal(y.DueDate)
	case "total":
		return x.Total.Equal(y.Total)
	default:
		return x.CreatedAt.Equal(y.CreatedAt)
	}
}
