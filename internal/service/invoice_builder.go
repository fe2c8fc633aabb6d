package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PricingInput is everything that feeds an invoice's derived figures. Create
// and update both price through it, so the two paths can never disagree.
type PricingInput struct {
	Currency      types.Currency
	LineItems     []invoice.LineItem
	TaxRate       *decimal.Decimal
	PromotionCode *string
	PaymentPlan   *dto.PaymentPlanRequest
	IssueDate     time.Time
	DueDate       *time.Time

	// Existing is the snapshot already on the invoice being repriced
	Existing *invoice.PromotionSnapshot
}

// Pricing is the computed result. Promotion is set only when a use of the
// code still has to be redeemed.
type Pricing struct {
	Subtotal            decimal.Decimal
	TaxRate             decimal.Decimal
	TaxAmount           decimal.Decimal
	DiscountAmount      decimal.Decimal
	Total               decimal.Decimal
	TotalInBaseCurrency decimal.Decimal
	BaseCurrency        types.Currency
	ExchangeRate        decimal.Decimal
	DueDate             time.Time
	Snapshot            *invoice.PromotionSnapshot
	PaymentPlan         *invoice.PaymentPlan
	Promotion           *PromotionResult
}

// Apply copies the computed figures onto inv
func (p *Pricing) Apply(inv *invoice.Invoice) {
	inv.Subtotal = p.Subtotal
	inv.TaxRate = p.TaxRate
	inv.TaxAmount = p.TaxAmount
	inv.DiscountAmount = p.DiscountAmount
	inv.Total = p.Total
	inv.TotalInBaseCurrency = p.TotalInBaseCurrency
	inv.BaseCurrency = p.BaseCurrency
	inv.ExchangeRate = p.ExchangeRate
	inv.DueDate = p.DueDate
	inv.Promotion = p.Snapshot
	inv.PaymentPlan = p.PaymentPlan
}

// InvoiceBuilder derives invoice figures from line items and assigns numbers
type InvoiceBuilder struct {
	ServiceParams
	promotions PromotionService
}

func NewInvoiceBuilder(params ServiceParams, promotions PromotionService) *InvoiceBuilder {
	return &InvoiceBuilder{
		ServiceParams: params,
		promotions:    promotions,
	}
}

// Build turns a create request into an unsaved, unnumbered invoice
func (b *InvoiceBuilder) Build(ctx context.Context, req dto.CreateInvoiceRequest) (*invoice.Invoice, *Pricing, error) {
	currency, err := types.ParseCurrency(req.Currency)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	issue := now
	if req.IssueDate != nil {
		issue = req.IssueDate.UTC()
	}

	inv := &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		ClientID:      req.ClientID,
		UserID:        req.UserID,
		PackageID:     req.PackageID,
		InvoiceStatus: types.InvoiceStatusDraft,
		IssueDate:     issue,
		Currency:      currency,
		LineItems:     req.ToLineItems(),
		AmountPaid:    decimal.Zero,
		Notes:         req.Notes,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
	if req.UserID == nil && types.GetUserID(ctx) != "" {
		inv.UserID = lo.ToPtr(types.GetUserID(ctx))
	}

	pricing, err := b.Price(ctx, PricingInput{
		Currency:      currency,
		LineItems:     inv.LineItems,
		TaxRate:       req.TaxRate,
		PromotionCode: req.PromotionCode,
		PaymentPlan:   req.PaymentPlan,
		IssueDate:     issue,
		DueDate:       req.DueDate,
	})
	if err != nil {
		return nil, nil, err
	}
	pricing.Apply(inv)

	if req.InvoiceStatus != nil && *req.InvoiceStatus == types.InvoiceStatusSent {
		if _, err := inv.TransitionTo(types.InvoiceStatusSent, now); err != nil {
			return nil, nil, err
		}
	}
	return inv, pricing, nil
}

// Price computes subtotal, tax, discount, total, the base-currency total and
// the installment schedule. A missing exchange rate aborts pricing.
func (b *InvoiceBuilder) Price(ctx context.Context, in PricingInput) (*Pricing, error) {
	currency := in.Currency
	p := &Pricing{}

	subtotal := decimal.Zero
	items := make([]PromotionItem, 0, len(in.LineItems))
	for _, li := range in.LineItems {
		subtotal = subtotal.Add(li.Amount)
		items = append(items, PromotionItem{Category: li.Category, Price: li.UnitPrice, Quantity: li.Quantity})
	}
	p.Subtotal = money.Round(subtotal, currency)

	p.TaxRate = b.Config.Billing.DefaultTaxRate
	if in.TaxRate != nil {
		p.TaxRate = *in.TaxRate
	}
	p.TaxAmount = money.ApplyPercentage(p.Subtotal, p.TaxRate, currency)

	p.DiscountAmount = decimal.Zero
	if code := strings.TrimSpace(lo.FromPtr(in.PromotionCode)); code != "" {
		alreadyRedeemed := in.Existing != nil && strings.EqualFold(in.Existing.Code, code)
		result, err := b.promotions.Evaluate(ctx, EvaluatePromotionInput{
			Code:            code,
			Currency:        currency,
			Subtotal:        p.Subtotal,
			Items:           items,
			AlreadyRedeemed: alreadyRedeemed,
		})
		if err != nil {
			return nil, err
		}
		p.DiscountAmount = result.DiscountAmount
		p.Snapshot = &invoice.PromotionSnapshot{
			Code:             result.Code,
			Type:             result.Type,
			Value:            result.Value,
			DiscountAmount:   result.DiscountAmount,
			EligibleSubtotal: result.EligibleSubtotal,
		}
		if !alreadyRedeemed {
			p.Promotion = result
		}
	}

	total := p.Subtotal.Add(p.TaxAmount).Sub(p.DiscountAmount)
	p.Total = money.Round(money.Max(decimal.Zero, total), currency)

	conv, err := b.Converter.ConvertToBase(ctx, p.Total, currency)
	if err != nil {
		return nil, err
	}
	p.TotalInBaseCurrency = conv.Amount
	p.ExchangeRate = conv.Rate
	p.BaseCurrency = conv.Currency

	p.DueDate = in.IssueDate.AddDate(0, 0, b.Config.Billing.DefaultDueDays)
	if in.DueDate != nil {
		p.DueDate = in.DueDate.UTC()
	}

	if in.PaymentPlan != nil {
		plan, err := buildPaymentPlan(*in.PaymentPlan, p.Total, currency, in.IssueDate)
		if err != nil {
			return nil, err
		}
		p.PaymentPlan = plan
		p.DueDate = plan.Schedule[len(plan.Schedule)-1].DueDate
	}
	return p, nil
}

func buildPaymentPlan(req dto.PaymentPlanRequest, total decimal.Decimal, currency types.Currency, issue time.Time) (*invoice.PaymentPlan, error) {
	down := money.Round(req.DownPayment, currency)
	if down.GreaterThan(total) {
		return nil, ierr.NewError("down_payment exceeds invoice total").
			WithHint("Down payment cannot be greater than the invoice total").
			WithReportableDetails(map[string]any{
				"down_payment": down.String(),
				"total":        total.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	share, last := money.Split(total.Sub(down), req.InstallmentsCount, currency)
	plan := &invoice.PaymentPlan{
		DownPayment:       down,
		DownPaymentPaid:   down.IsZero(),
		InstallmentsCount: req.InstallmentsCount,
		InstallmentAmount: share,
		Period:            req.Period,
		Schedule:          make([]invoice.Installment, 0, req.InstallmentsCount),
	}
	for n := 1; n <= req.InstallmentsCount; n++ {
		amount := share
		if n == req.InstallmentsCount {
			amount = last
		}
		plan.Schedule = append(plan.Schedule, invoice.Installment{
			Number:  n,
			DueDate: req.Period.DueDate(issue, n),
			Amount:  amount,
			Status:  types.InstallmentStatusUnpaid,
		})
	}
	return plan, nil
}

// NextInvoiceNumber formats {prefix}-{YYYYMMDD}-{SHORTID}
func (b *InvoiceBuilder) NextInvoiceNumber(issue time.Time) string {
	return fmt.Sprintf("%s-%s-%s",
		b.Config.Billing.InvoiceNumberPrefix,
		issue.UTC().Format("20060102"),
		strings.ToUpper(types.GenerateShortID(types.SHORT_ID_LENGTH_INVOICE_NUMBER)),
	)
}

// Persist stores inv. Generated numbers are retried on collision up to the
// configured number of attempts; a caller-supplied number is not.
func (b *InvoiceBuilder) Persist(ctx context.Context, inv *invoice.Invoice, requested *string) error {
	if requested != nil {
		inv.InvoiceNumber = strings.TrimSpace(*requested)
		return b.InvoiceRepo.Create(ctx, inv)
	}

	attempts := max(b.Config.Billing.InvoiceNumberAttempts, 1)
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), uint64(attempts-1)),
		ctx,
	)

	operation := func() error {
		inv.InvoiceNumber = b.NextInvoiceNumber(inv.IssueDate)
		err := b.InvoiceRepo.Create(ctx, inv)
		if err == nil {
			return nil
		}
		if ierr.IsAlreadyExists(err) {
			b.Logger.Debugw("invoice number collision, retrying", "invoice_number", inv.InvoiceNumber)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, bo); err != nil {
		if ierr.IsAlreadyExists(err) {
			return ierr.WithError(err).
				WithHintf("Could not allocate a unique invoice number after %d attempts", attempts).
				Mark(ierr.ErrAlreadyExists)
		}
		return err
	}
	return nil
}
