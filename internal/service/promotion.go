package service

import (
	"context"
	"time"

	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PromotionService evaluates and redeems promotion codes
type PromotionService interface {
	CreatePromotion(ctx context.Context, req dto.CreatePromotionRequest) (*dto.PromotionResponse, error)
	GetPromotion(ctx context.Context, id string) (*dto.PromotionResponse, error)
	ListPromotions(ctx context.Context, filter *types.PromotionFilter) (*dto.ListPromotionsResponse, error)

	// EvaluatePromotion is a dry run for a cart; nothing is redeemed
	EvaluatePromotion(ctx context.Context, req dto.EvaluatePromotionRequest) (*dto.PromotionResultResponse, error)

	// Evaluate applies the promotion rules in order and returns the discount
	Evaluate(ctx context.Context, in EvaluatePromotionInput) (*PromotionResult, error)

	// RedeemPromotion consumes one use of the promotion
	RedeemPromotion(ctx context.Context, result *PromotionResult) error
}

// PromotionItem is a cart row as the evaluator sees it
type PromotionItem struct {
	Category *string
	Price    decimal.Decimal
	Quantity int
}

// Amount is price times quantity
func (i PromotionItem) Amount() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// EvaluatePromotionInput is the cart a code is evaluated against. Subtotal is
// the full cart subtotal, used for the minimum purchase check.
type EvaluatePromotionInput struct {
	Code     string
	Currency types.Currency
	Subtotal decimal.Decimal
	Items    []PromotionItem
	// AlreadyRedeemed skips the validity window and usage limit checks when
	// repricing an invoice that consumed its use of the code at creation
	AlreadyRedeemed bool
}

// PromotionResult is the evaluated discount, echoing the promotion's terms
type PromotionResult struct {
	PromotionID      string
	Code             string
	Type             types.DiscountType
	Value            decimal.Decimal
	DiscountAmount   decimal.Decimal
	EligibleSubtotal decimal.Decimal
}

type promotionService struct {
	ServiceParams
}

func NewPromotionService(params ServiceParams) PromotionService {
	return &promotionService{
		ServiceParams: params,
	}
}

func (s *promotionService) CreatePromotion(ctx context.Context, req dto.CreatePromotionRequest) (*dto.PromotionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPromotion(ctx)
	if err := s.PromotionRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.Logger.Infow("created promotion", "promotion_id", p.ID, "code", p.Code)
	return dto.NewPromotionResponse(p), nil
}

func (s *promotionService) GetPromotion(ctx context.Context, id string) (*dto.PromotionResponse, error) {
	if id == "" {
		return nil, ierr.NewError("promotion_id is required").
			WithHint("Promotion ID is required").
			Mark(ierr.ErrValidation)
	}

	p, err := s.PromotionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPromotionResponse(p), nil
}

func (s *promotionService) ListPromotions(ctx context.Context, filter *types.PromotionFilter) (*dto.ListPromotionsResponse, error) {
	if filter == nil {
		filter = types.NewPromotionFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.PromotionRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.PromotionRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(
		lo.Map(items, func(p *promotion.Promotion, _ int) *dto.PromotionResponse {
			return dto.NewPromotionResponse(p)
		}),
		total, filter.GetLimit(), filter.GetOffset(),
	)
	return &resp, nil
}

func (s *promotionService) EvaluatePromotion(ctx context.Context, req dto.EvaluatePromotionRequest) (*dto.PromotionResultResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	currency, err := types.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	items := lo.Map(req.Items, func(item dto.EvaluatePromotionItem, _ int) PromotionItem {
		return PromotionItem{Category: item.Category, Price: item.Price, Quantity: item.Quantity}
	})
	subtotal := lo.Reduce(items, func(acc decimal.Decimal, item PromotionItem, _ int) decimal.Decimal {
		return acc.Add(item.Amount())
	}, decimal.Zero)

	result, err := s.Evaluate(ctx, EvaluatePromotionInput{
		Code:     req.Code,
		Currency: currency,
		Subtotal: subtotal,
		Items:    items,
	})
	if err != nil {
		return nil, err
	}

	return &dto.PromotionResultResponse{
		Code:             result.Code,
		Type:             result.Type,
		Value:            result.Value,
		DiscountAmount:   result.DiscountAmount,
		EligibleSubtotal: result.EligibleSubtotal,
		Subtotal:         subtotal,
	}, nil
}

func (s *promotionService) Evaluate(ctx context.Context, in EvaluatePromotionInput) (*PromotionResult, error) {
	code := promotion.NormalizeCode(in.Code)
	now := time.Now().UTC()

	p, err := s.PromotionRepo.GetByCode(ctx, code)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, promotion.NewRejection(types.PromotionReasonNotFound, code, nil)
		}
		return nil, err
	}
	if !p.Active {
		return nil, promotion.NewRejection(types.PromotionReasonNotFound, code, nil)
	}

	if !in.AlreadyRedeemed && p.StartDate != nil && now.Before(*p.StartDate) {
		return nil, promotion.NewRejection(types.PromotionReasonNotStarted, code, map[string]any{
			"start_date": p.StartDate,
		})
	}
	if !in.AlreadyRedeemed && p.EndDate != nil && now.After(*p.EndDate) {
		return nil, promotion.NewRejection(types.PromotionReasonExpired, code, map[string]any{
			"end_date": p.EndDate,
		})
	}

	if !in.AlreadyRedeemed && p.IsExhausted() {
		return nil, promotion.NewRejection(types.PromotionReasonUsageLimitReached, code, map[string]any{
			"usage_limit": *p.UsageLimit,
		})
	}

	eligible := in.Subtotal
	if p.IsRestricted() {
		// items without a category never match a restriction
		eligible = decimal.Zero
		matched := 0
		for _, item := range in.Items {
			if item.Category == nil || !p.AppliesToCategory(*item.Category) {
				continue
			}
			matched++
			eligible = eligible.Add(item.Amount())
		}
		if matched == 0 {
			return nil, promotion.NewRejection(types.PromotionReasonNoEligibleItems, code, map[string]any{
				"categories": p.Categories,
			})
		}
	}
	if p.Type == types.DiscountTypeFixed && p.Currency != "" && p.Currency != in.Currency {
		return nil, promotion.NewRejection(types.PromotionReasonNoEligibleItems, code, map[string]any{
			"currency": p.Currency,
		})
	}

	if p.MinPurchase != nil && in.Subtotal.LessThan(*p.MinPurchase) {
		return nil, promotion.NewRejection(types.PromotionReasonMinimumNotMet, code, map[string]any{
			"min_purchase": p.MinPurchase.String(),
			"subtotal":     in.Subtotal.String(),
		})
	}

	var raw decimal.Decimal
	switch p.Type {
	case types.DiscountTypePercentage:
		raw = eligible.Mul(p.Value).Div(decimal.NewFromInt(100))
	default:
		raw = p.Value
	}
	discount := money.Round(money.Min(raw, eligible), in.Currency)

	return &PromotionResult{
		PromotionID:      p.ID,
		Code:             p.Code,
		Type:             p.Type,
		Value:            p.Value,
		DiscountAmount:   discount,
		EligibleSubtotal: eligible,
	}, nil
}

func (s *promotionService) RedeemPromotion(ctx context.Context, result *PromotionResult) error {
	if result == nil {
		return nil
	}
	if err := s.PromotionRepo.IncrementUsage(ctx, result.PromotionID); err != nil {
		if ierr.Is(err, promotion.ErrUsageExhausted) {
			return promotion.NewRejection(types.PromotionReasonUsageLimitReached, result.Code, nil)
		}
		return err
	}
	s.Logger.Infow("redeemed promotion", "promotion_id", result.PromotionID, "code", result.Code)
	return nil
}
