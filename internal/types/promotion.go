package types

import (
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/samber/lo"
)

// DiscountType is how a promotion value is applied
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (t DiscountType) Validate() error {
	allowed := []DiscountType{DiscountTypePercentage, DiscountTypeFixed}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid discount type").
			WithHintf("Discount type %q is not valid", string(t)).
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PromotionRejectionReason tells the caller exactly why a code was refused
type PromotionRejectionReason string

const (
	PromotionReasonNotFound          PromotionRejectionReason = "PROMOTION_NOT_FOUND"
	PromotionReasonNotStarted        PromotionRejectionReason = "PROMOTION_NOT_STARTED"
	PromotionReasonExpired           PromotionRejectionReason = "PROMOTION_EXPIRED"
	PromotionReasonUsageLimitReached PromotionRejectionReason = "USAGE_LIMIT_REACHED"
	PromotionReasonNoEligibleItems   PromotionRejectionReason = "NO_ELIGIBLE_ITEMS"
	PromotionReasonMinimumNotMet     PromotionRejectionReason = "MINIMUM_PURCHASE_NOT_MET"
)

func (r PromotionRejectionReason) String() string {
	return string(r)
}

// PromotionFilter represents the filter options for listing promotions
type PromotionFilter struct {
	*QueryFilter
	ActiveOnly bool `json:"active_only,omitempty" form:"active_only"`
}

// NewPromotionFilter creates a filter with default pagination
func NewPromotionFilter() *PromotionFilter {
	return &PromotionFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}
