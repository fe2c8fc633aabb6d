package dto

import (
	"context"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/ledgerline/ledgerline/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreatePromotionRequest represents the request payload for creating a promotion code
type CreatePromotionRequest struct {
	Code        string             `json:"code" validate:"required,min=2,max=64"`
	Name        string             `json:"name" validate:"required,max=255"`
	Type        types.DiscountType `json:"type" validate:"required"`
	Value       decimal.Decimal    `json:"value"`
	Currency    string             `json:"currency,omitempty" validate:"omitempty,currency"`
	StartDate   *time.Time         `json:"start_date,omitempty"`
	EndDate     *time.Time         `json:"end_date,omitempty"`
	UsageLimit  *int               `json:"usage_limit,omitempty" validate:"omitempty,min=1"`
	MinPurchase *decimal.Decimal   `json:"min_purchase,omitempty"`
	Categories  []string           `json:"categories,omitempty" validate:"omitempty,dive,required"`
	// active defaults to true
	Active *bool `json:"active,omitempty"`
}

func (r *CreatePromotionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if !r.Value.IsPositive() {
		return ierr.NewError("value must be positive").
			WithHint("Promotion value must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	if r.Type == types.DiscountTypePercentage && r.Value.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("percentage value must not exceed 100").
			WithHint("A percentage promotion cannot exceed 100").
			Mark(ierr.ErrValidation)
	}
	if r.MinPurchase != nil && r.MinPurchase.IsNegative() {
		return ierr.NewError("min_purchase must be non-negative").
			WithHint("Minimum purchase cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if r.StartDate != nil && r.EndDate != nil && !r.EndDate.After(*r.StartDate) {
		return ierr.NewError("end_date must be after start_date").
			WithHint("Promotion end date must be after its start date").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToPromotion converts the request into a domain promotion
func (r *CreatePromotionRequest) ToPromotion(ctx context.Context) *promotion.Promotion {
	var currency types.Currency
	if r.Currency != "" {
		currency, _ = types.ParseCurrency(r.Currency)
	}
	return &promotion.Promotion{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PROMOTION),
		Code:        promotion.NormalizeCode(r.Code),
		Name:        r.Name,
		Type:        r.Type,
		Value:       r.Value,
		Currency:    currency,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		UsageLimit:  r.UsageLimit,
		MinPurchase: r.MinPurchase,
		Categories:  r.Categories,
		Active:      lo.FromPtrOr(r.Active, true),
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
}

// PromotionResponse represents a promotion code
type PromotionResponse struct {
	*promotion.Promotion

	// remaining_uses is nil for unlimited promotions
	RemainingUses *int `json:"remaining_uses,omitempty"`
}

func NewPromotionResponse(p *promotion.Promotion) *PromotionResponse {
	resp := &PromotionResponse{Promotion: p}
	if p.UsageLimit != nil {
		resp.RemainingUses = lo.ToPtr(max(*p.UsageLimit-p.UsedCount, 0))
	}
	return resp
}

// ListPromotionsResponse represents the response for listing promotions
type ListPromotionsResponse = types.ListResponse[*PromotionResponse]

// EvaluatePromotionRequest asks whether a code applies to a cart without
// redeeming it
type EvaluatePromotionRequest struct {
	Code     string                  `json:"code" validate:"required"`
	Currency string                  `json:"currency" validate:"required,currency"`
	Items    []EvaluatePromotionItem `json:"items" validate:"required,min=1,dive"`
}

// EvaluatePromotionItem is one cart row as the evaluator sees it
type EvaluatePromotionItem struct {
	Category *string         `json:"category,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"required,min=1"`
}

func (r *EvaluatePromotionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	for _, item := range r.Items {
		if item.Price.IsNegative() {
			return ierr.NewError("price must be non-negative").
				WithHint("Item price cannot be negative").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// PromotionResultResponse is the outcome of an evaluation
type PromotionResultResponse struct {
	Code             string             `json:"code"`
	Type             types.DiscountType `json:"type"`
	Value            decimal.Decimal    `json:"value"`
	DiscountAmount   decimal.Decimal    `json:"discount_amount"`
	EligibleSubtotal decimal.Decimal    `json:"eligible_subtotal"`
	Subtotal         decimal.Decimal    `json:"subtotal"`
}
