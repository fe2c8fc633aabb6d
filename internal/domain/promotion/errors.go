package promotion

import (
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
)

var (
	ErrPromotionNotFound     = ierr.New("promotion_not_found", "promotion not found")
	ErrPromotionNotStarted   = ierr.New("promotion_not_started", "promotion not started")
	ErrPromotionExpired      = ierr.New("promotion_expired", "promotion expired")
	ErrUsageLimitReached     = ierr.New("usage_limit_reached", "promotion usage limit reached")
	ErrNoEligibleItems       = ierr.New("no_eligible_items", "no eligible items for promotion")
	ErrMinimumPurchaseNotMet = ierr.New("minimum_purchase_not_met", "minimum purchase not met")

	// ErrUsageExhausted is returned by stores when a conditional usage
	// increment finds the limit already reached
	ErrUsageExhausted = ierr.New("usage_exhausted", "promotion usage exhausted")
)

var reasonSentinels = map[types.PromotionRejectionReason]error{
	types.PromotionReasonNotFound:          ErrPromotionNotFound,
	types.PromotionReasonNotStarted:        ErrPromotionNotStarted,
	types.PromotionReasonExpired:           ErrPromotionExpired,
	types.PromotionReasonUsageLimitReached: ErrUsageLimitReached,
	types.PromotionReasonNoEligibleItems:   ErrNoEligibleItems,
	types.PromotionReasonMinimumNotMet:     ErrMinimumPurchaseNotMet,
}

var reasonHints = map[types.PromotionRejectionReason]string{
	types.PromotionReasonNotFound:          "Promotion code %s does not exist or is inactive",
	types.PromotionReasonNotStarted:        "Promotion code %s is not active yet",
	types.PromotionReasonExpired:           "Promotion code %s has expired",
	types.PromotionReasonUsageLimitReached: "Promotion code %s has reached its usage limit",
	types.PromotionReasonNoEligibleItems:   "No items in the cart are eligible for promotion code %s",
	types.PromotionReasonMinimumNotMet:     "The cart does not meet the minimum purchase for promotion code %s",
}

// NewRejection builds the business-rule error for a refused code. The reason
// is echoed in the reportable details so callers can show actionable feedback.
func NewRejection(reason types.PromotionRejectionReason, code string, details map[string]any) error {
	d := map[string]any{
		"reason": reason,
		"code":   code,
	}
	for k, v := range details {
		d[k] = v
	}
	return ierr.NewErrorf("promotion %s rejected: %s", code, reason).
		WithMark(reasonSentinels[reason]).
		WithHintf(reasonHints[reason], code).
		WithReportableDetails(d).
		Mark(ierr.ErrInvalidOperation)
}

// RejectionReason extracts the reason from an error built by NewRejection
func RejectionReason(err error) (types.PromotionRejectionReason, bool) {
	for reason, sentinel := range reasonSentinels {
		if ierr.Is(err, sentinel) {
			return reason, true
		}
	}
	return "", false
}

// NewUsageExhaustedError is what stores return from IncrementUsage when the
// limit is already reached
func NewUsageExhaustedError(code string) error {
	return ierr.NewErrorf("promotion %s usage exhausted", code).
		WithMark(ErrUsageExhausted).
		WithHintf("Promotion code %s has reached its usage limit", code).
		Mark(ierr.ErrInvalidOperation)
}

// NewNotFoundError reports a missing promotion looked up by id
func NewNotFoundError(key string) error {
	return ierr.NewErrorf("promotion %s not found", key).
		WithHintf("Promotion %s was not found", key).
		Mark(ierr.ErrNotFound)
}

// NewCodeTakenError reports a duplicate promotion code
func NewCodeTakenError(code string) error {
	return ierr.NewErrorf("promotion code %s already exists", code).
		WithHintf("Promotion code %s already exists", code).
		Mark(ierr.ErrAlreadyExists)
}
