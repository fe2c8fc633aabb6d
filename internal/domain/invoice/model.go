package invoice

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Invoice is the document the ledger owns. Every monetary field is derived
// server side from LineItems, the tax rate and the promotion snapshot.
type Invoice struct {
	ID            string              `json:"id"`
	InvoiceNumber string              `json:"invoice_number"`
	ClientID      string              `json:"client_id"`
	UserID        *string             `json:"user_id,omitempty"`
	PackageID     *string             `json:"package_id,omitempty"`
	InvoiceStatus types.InvoiceStatus `json:"invoice_status"`

	IssueDate   time.Time  `json:"issue_date"`
	DueDate     time.Time  `json:"due_date"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Currency     types.Currency  `json:"currency"`
	BaseCurrency types.Currency  `json:"base_currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`

	LineItems           []LineItem         `json:"line_items"`
	Subtotal            decimal.Decimal    `json:"subtotal"`
	TaxRate             decimal.Decimal    `json:"tax_rate"`
	TaxAmount           decimal.Decimal    `json:"tax_amount"`
	DiscountAmount      decimal.Decimal    `json:"discount_amount"`
	Total               decimal.Decimal    `json:"total"`
	TotalInBaseCurrency decimal.Decimal    `json:"total_in_base_currency"`
	AmountPaid          decimal.Decimal    `json:"amount_paid"`
	Promotion           *PromotionSnapshot `json:"promotion,omitempty"`
	PaymentPlan         *PaymentPlan       `json:"payment_plan,omitempty"`

	PaymentMethod     *string  `json:"payment_method,omitempty"`
	PaymentNotes      *string  `json:"payment_notes,omitempty"`
	AppliedPaymentIDs []string `json:"applied_payment_ids,omitempty"`
	Notes             string   `json:"notes,omitempty"`

	// Version increases with every persisted write and guards conditional updates
	Version int `json:"version"`
	types.BaseModel
}

// LineItem is one row of the invoice. Amount is always Quantity * UnitPrice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	ProductID   *string         `json:"product_id,omitempty"`
	VariantKey  *string         `json:"variant_key,omitempty"`
	Category    *string         `json:"category,omitempty"`
}

// PromotionSnapshot freezes the promotion as it was evaluated at creation
type PromotionSnapshot struct {
	Code             string             `json:"code"`
	Type             types.DiscountType `json:"type"`
	Value            decimal.Decimal    `json:"value"`
	DiscountAmount   decimal.Decimal    `json:"discount_amount"`
	EligibleSubtotal decimal.Decimal    `json:"eligible_subtotal"`
}

// PaymentPlan splits the total into a down payment and dated installments
type PaymentPlan struct {
	DownPayment       decimal.Decimal         `json:"down_payment"`
	DownPaymentPaid   bool                    `json:"down_payment_paid"`
	DownPaymentPaidAt *time.Time              `json:"down_payment_paid_at,omitempty"`
	InstallmentsCount int                     `json:"installments_count"`
	InstallmentAmount decimal.Decimal         `json:"installment_amount"`
	Period            types.InstallmentPeriod `json:"period"`
	Schedule          []Installment           `json:"schedule"`
}

type Installment struct {
	Number  int                     `json:"number"`
	DueDate time.Time               `json:"due_date"`
	Amount  decimal.Decimal         `json:"amount"`
	Status  types.InstallmentStatus `json:"status"`
	PaidAt  *time.Time              `json:"paid_at,omitempty"`
}

// Clone returns a deep copy, so stores never share slices or pointers with callers
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	c.UserID = clonePtr(i.UserID)
	c.PackageID = clonePtr(i.PackageID)
	c.SentAt = clonePtr(i.SentAt)
	c.PaidAt = clonePtr(i.PaidAt)
	c.CancelledAt = clonePtr(i.CancelledAt)
	c.PaymentMethod = clonePtr(i.PaymentMethod)
	c.PaymentNotes = clonePtr(i.PaymentNotes)
	c.AppliedPaymentIDs = append([]string(nil), i.AppliedPaymentIDs...)
	c.LineItems = lo.Map(i.LineItems, func(li LineItem, _ int) LineItem {
		li.ProductID = clonePtr(li.ProductID)
		li.VariantKey = clonePtr(li.VariantKey)
		li.Category = clonePtr(li.Category)
		return li
	})
	if i.Promotion != nil {
		p := *i.Promotion
		c.Promotion = &p
	}
	if i.PaymentPlan != nil {
		p := *i.PaymentPlan
		p.DownPaymentPaidAt = clonePtr(i.PaymentPlan.DownPaymentPaidAt)
		p.Schedule = lo.Map(i.PaymentPlan.Schedule, func(in Installment, _ int) Installment {
			in.PaidAt = clonePtr(in.PaidAt)
			return in
		})
		c.PaymentPlan = &p
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// AmountDue is what is still owed, never negative
func (i *Invoice) AmountDue() decimal.Decimal {
	return money.Max(decimal.Zero, i.Total.Sub(i.AmountPaid))
}

// IsPayable reports whether a payment may be applied in the current status
func (i *Invoice) IsPayable() bool {
	switch i.InvoiceStatus {
	case types.InvoiceStatusSent, types.InvoiceStatusPartial, types.InvoiceStatusOverdue:
		return true
	}
	return false
}

// IsEditable reports whether line items and totals may still change
func (i *Invoice) IsEditable() bool {
	return i.InvoiceStatus == types.InvoiceStatusDraft || i.InvoiceStatus == types.InvoiceStatusSent
}

// HasPayment reports whether paymentID was already applied
func (i *Invoice) HasPayment(paymentID string) bool {
	return lo.Contains(i.AppliedPaymentIDs, paymentID)
}

// HasInstallments reports whether the invoice carries a payment plan
func (i *Invoice) HasInstallments() bool {
	return i.PaymentPlan != nil && i.PaymentPlan.InstallmentsCount > 0
}

// NextPayableAmount is the amount the payer is expected to settle next: the
// outstanding down payment, else the next unpaid installment, else the full
// balance. Any surplus already paid toward that part is deducted.
func (i *Invoice) NextPayableAmount() decimal.Decimal {
	due := i.AmountDue()
	if !i.HasInstallments() || due.IsZero() {
		return due
	}

	plan := i.PaymentPlan
	covered := i.AmountPaid
	if plan.DownPayment.IsPositive() {
		if covered.LessThan(plan.DownPayment) {
			return money.Min(plan.DownPayment.Sub(covered), due)
		}
		covered = covered.Sub(plan.DownPayment)
	}
	for _, in := range plan.Schedule {
		if covered.LessThan(in.Amount) {
			return money.Min(in.Amount.Sub(covered), due)
		}
		covered = covered.Sub(in.Amount)
	}
	return due
}

// EffectiveStatus derives overdue from the due dates without persisting it.
// Installment invoices become overdue once an unpaid installment's date has
// passed; the down payment is due on issue and never makes an invoice overdue.
func (i *Invoice) EffectiveStatus(now time.Time) types.InvoiceStatus {
	if i.InvoiceStatus != types.InvoiceStatusSent && i.InvoiceStatus != types.InvoiceStatusPartial {
		return i.InvoiceStatus
	}
	if i.AmountDue().IsZero() {
		return i.InvoiceStatus
	}

	if i.HasInstallments() {
		for _, in := range i.PaymentPlan.Schedule {
			if in.Status == types.InstallmentStatusUnpaid && in.DueDate.Before(now) {
				return types.InvoiceStatusOverdue
			}
		}
		return i.InvoiceStatus
	}

	if !i.DueDate.IsZero() && i.DueDate.Before(now) {
		return types.InvoiceStatusOverdue
	}
	return i.InvoiceStatus
}

// ScheduleTotal is the down payment plus every installment amount
func (p *PaymentPlan) ScheduleTotal() decimal.Decimal {
	total := p.DownPayment
	for _, in := range p.Schedule {
		total = total.Add(in.Amount)
	}
	return total
}
