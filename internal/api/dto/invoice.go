package dto

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/ledgerline/ledgerline/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest represents the request payload for creating a new invoice.
// Subtotal, tax, discount and total are always derived server side and are
// not part of the schema.
type CreateInvoiceRequest struct {
	// invoice_number is an optional caller-chosen number; a collision is a conflict
	InvoiceNumber *string `json:"invoice_number,omitempty" validate:"omitempty,min=1,max=64"`

	// client_id is the unique identifier of the billed client
	ClientID string `json:"client_id" validate:"required"`

	// user_id optionally links the invoice to a platform user
	UserID *string `json:"user_id,omitempty"`

	// package_id optionally links the invoice to a sold package
	PackageID *string `json:"package_id,omitempty"`

	// currency is the three-letter ISO code the invoice is issued in
	Currency string `json:"currency" validate:"required,currency"`

	// tax_rate is a percentage between 0 and 100; the configured default applies when omitted
	TaxRate *decimal.Decimal `json:"tax_rate,omitempty"`

	// line_items contains the individual items that make up this invoice
	LineItems []CreateInvoiceLineItemRequest `json:"line_items" validate:"required,min=1,dive"`

	// promotion_code is evaluated against the line items
	PromotionCode *string `json:"promotion_code,omitempty"`

	// payment_plan splits the total into a down payment and installments
	PaymentPlan *PaymentPlanRequest `json:"payment_plan,omitempty"`

	// issue_date defaults to now
	IssueDate *time.Time `json:"issue_date,omitempty"`

	// due_date defaults to issue_date plus the configured number of days
	DueDate *time.Time `json:"due_date,omitempty"`

	// invoice_status is draft (default) or sent
	InvoiceStatus *types.InvoiceStatus `json:"invoice_status,omitempty"`

	Notes string `json:"notes,omitempty" validate:"max=2000"`
}

// CreateInvoiceLineItemRequest is one requested invoice row
type CreateInvoiceLineItemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    int             `json:"quantity" validate:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ProductID   *string         `json:"product_id,omitempty"`
	VariantKey  *string         `json:"variant_key,omitempty"`
	Category    *string         `json:"category,omitempty"`
}

// PaymentPlanRequest asks for an installment schedule
type PaymentPlanRequest struct {
	DownPayment       decimal.Decimal         `json:"down_payment"`
	InstallmentsCount int                     `json:"installments_count" validate:"required,min=1,max=120"`
	Period            types.InstallmentPeriod `json:"period" validate:"required"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if _, err := types.ParseCurrency(r.Currency); err != nil {
		return err
	}

	if err := validateTaxRate(r.TaxRate); err != nil {
		return err
	}

	for idx, item := range r.LineItems {
		if err := item.Validate(); err != nil {
			return ierr.WithError(err).
				WithHintf("Line item %d is invalid", idx+1).
				Mark(ierr.ErrValidation)
		}
	}

	if r.PaymentPlan != nil {
		if err := r.PaymentPlan.Validate(); err != nil {
			return err
		}
	}

	if r.InvoiceStatus != nil &&
		*r.InvoiceStatus != types.InvoiceStatusDraft &&
		*r.InvoiceStatus != types.InvoiceStatusSent {
		return ierr.NewError("invoice_status must be draft or sent").
			WithHint("New invoices can only be created as draft or sent").
			WithReportableDetails(map[string]any{
				"invoice_status": *r.InvoiceStatus,
			}).
			Mark(ierr.ErrValidation)
	}

	if r.IssueDate != nil && r.DueDate != nil && r.DueDate.Before(*r.IssueDate) {
		return ierr.NewError("due_date must not be before issue_date").
			WithHint("Due date must be on or after the issue date").
			Mark(ierr.ErrValidation)
	}

	return nil
}

func (r *CreateInvoiceLineItemRequest) Validate() error {
	if r.UnitPrice.IsNegative() {
		return ierr.NewError("unit_price must be non-negative").
			WithHint("Unit price cannot be negative").
			WithReportableDetails(map[string]any{
				"unit_price": r.UnitPrice.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if r.Quantity < 1 {
		return ierr.NewError("quantity must be at least 1").
			WithHint("Quantity must be at least 1").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *PaymentPlanRequest) Validate() error {
	if r.DownPayment.IsNegative() {
		return ierr.NewError("down_payment must be non-negative").
			WithHint("Down payment cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if r.InstallmentsCount < 1 {
		return ierr.NewError("installments_count must be at least 1").
			WithHint("A payment plan needs at least one installment").
			Mark(ierr.ErrValidation)
	}
	return r.Period.Validate()
}

// ToLineItems prices the requested rows. Amount is always quantity * unit price.
func (r *CreateInvoiceRequest) ToLineItems() []invoice.LineItem {
	return toLineItems(r.LineItems)
}

func toLineItems(items []CreateInvoiceLineItemRequest) []invoice.LineItem {
	return lo.Map(items, func(item CreateInvoiceLineItemRequest, _ int) invoice.LineItem {
		return invoice.LineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			ProductID:   item.ProductID,
			VariantKey:  item.VariantKey,
			Category:    item.Category,
		}
	})
}

func validateTaxRate(rate *decimal.Decimal) error {
	if rate == nil {
		return nil
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("tax_rate must be between 0 and 100").
			WithHint("Tax rate must be a percentage between 0 and 100").
			WithReportableDetails(map[string]any{
				"tax_rate": rate.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UpdateInvoiceRequest replaces the priced content of a draft or sent
// invoice. Totals are recomputed from scratch. An omitted payment plan keeps
// the stored terms; RemovePaymentPlan drops them.
type UpdateInvoiceRequest struct {
	LineItems         []CreateInvoiceLineItemRequest `json:"line_items" validate:"required,min=1,dive"`
	TaxRate           *decimal.Decimal               `json:"tax_rate,omitempty"`
	PromotionCode     *string                        `json:"promotion_code,omitempty"`
	PaymentPlan       *PaymentPlanRequest            `json:"payment_plan,omitempty"`
	RemovePaymentPlan bool                           `json:"remove_payment_plan,omitempty"`
	DueDate           *time.Time                     `json:"due_date,omitempty"`
	Notes             *string                        `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (r *UpdateInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := validateTaxRate(r.TaxRate); err != nil {
		return err
	}
	for idx, item := range r.LineItems {
		if err := item.Validate(); err != nil {
			return ierr.WithError(err).
				WithHintf("Line item %d is invalid", idx+1).
				Mark(ierr.ErrValidation)
		}
	}
	if r.PaymentPlan != nil && r.RemovePaymentPlan {
		return ierr.NewError("payment_plan and remove_payment_plan are mutually exclusive").
			WithHint("Either send new payment plan terms or remove the plan, not both").
			Mark(ierr.ErrValidation)
	}
	if r.PaymentPlan != nil {
		return r.PaymentPlan.Validate()
	}
	return nil
}

// ToLineItems prices the requested rows
func (r *UpdateInvoiceRequest) ToLineItems() []invoice.LineItem {
	return toLineItems(r.LineItems)
}

// InvoiceResponse represents an invoice with the figures a payer needs
type InvoiceResponse struct {
	*invoice.Invoice

	// amount_due is total minus amount paid, never negative
	AmountDue decimal.Decimal `json:"amount_due"`

	// next_payable_amount is what the payer is expected to settle next
	NextPayableAmount decimal.Decimal `json:"next_payable_amount"`

	// effective_status reports overdue as soon as a due date passes
	EffectiveStatus types.InvoiceStatus `json:"effective_status"`
}

// NewInvoiceResponse creates a new invoice response as of now
func NewInvoiceResponse(inv *invoice.Invoice, now time.Time) *InvoiceResponse {
	if inv == nil {
		return nil
	}
	return &InvoiceResponse{
		Invoice:           inv,
		AmountDue:         inv.AmountDue(),
		NextPayableAmount: inv.NextPayableAmount(),
		EffectiveStatus:   inv.EffectiveStatus(now),
	}
}

// ListInvoicesResponse represents the response for listing invoices
type ListInvoicesResponse = types.ListResponse[*InvoiceResponse]

// MarkOverdueResponse reports what the overdue sweep changed
type MarkOverdueResponse struct {
	Checked     int      `json:"checked"`
	MarkedCount int      `json:"marked_count"`
	MarkedIDs   []string `json:"marked_ids"`
	FailedIDs   []string `json:"failed_ids,omitempty"`
}
