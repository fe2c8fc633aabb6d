package promotion

import (
	"sort"
	"time"

	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
)

// MatchesFilter applies f to p as of now
func MatchesFilter(p *Promotion, f *types.PromotionFilter, now time.Time) bool {
	if p == nil {
		return false
	}
	if f == nil || !f.ActiveOnly {
		return true
	}
	if !p.Active {
		return false
	}
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return false
	}
	return true
}

// SortAndPage orders promotions by creation time and applies limit and offset
func SortAndPage(items []*Promotion, f *types.PromotionFilter) []*Promotion {
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
		return []*Promotion{}
	}
	return items[start:lo.Min([]int{start + qf.GetLimit(), len(items)})]
}
