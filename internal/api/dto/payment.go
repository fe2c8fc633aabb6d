package dto

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/ledgerline/ledgerline/internal/validator"
	"github.com/shopspring/decimal"
)

// PaymentResponse represents a payment ledger entry
type PaymentResponse struct {
	*payment.Payment
}

func NewPaymentResponse(p *payment.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{Payment: p}
}

// ListPaymentsResponse represents the response for listing payments
type ListPaymentsResponse = types.ListResponse[*PaymentResponse]

// PaymentOutcomeResponse is what a confirmation attempt reports back. Outcome
// tells a retryable not_confirmed apart from a final rejected.
type PaymentOutcomeResponse struct {
	Outcome types.PaymentOutcome `json:"outcome"`
	// reason is set for every outcome other than confirmed
	Reason  string           `json:"reason,omitempty"`
	Payment *PaymentResponse `json:"payment,omitempty"`
	Invoice *InvoiceResponse `json:"invoice,omitempty"`
}

// ZarinpalVerifyRequest is posted after the payer is redirected back from the
// gateway. The expected amount always comes from the stored invoice.
type ZarinpalVerifyRequest struct {
	InvoiceID string `json:"invoice_id" form:"invoice_id" validate:"required"`
	Authority string `json:"authority" form:"Authority" validate:"required"`
	Status    string `json:"status" form:"Status" validate:"required"`
}

func (r *ZarinpalVerifyRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// PayInvoiceRequest starts a gateway payment for the next payable amount
type PayInvoiceRequest struct {
	Gateway types.PaymentGateway `json:"gateway" validate:"required"`
	// success_url and cancel_url override the configured redirect targets
	SuccessURL string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

func (r *PayInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Gateway != types.PaymentGatewayStripe && r.Gateway != types.PaymentGatewayZarinpal {
		return ierr.NewError("gateway must be stripe or zarinpal").
			WithHintf("Payments cannot be started through %q", string(r.Gateway)).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PayInvoiceResponse tells the payer where to go next
type PayInvoiceResponse struct {
	Gateway     types.PaymentGateway `json:"gateway"`
	RedirectURL string               `json:"redirect_url"`
	// reference is the checkout session id or the zarinpal authority
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  types.Currency  `json:"currency"`
}

// RecordPaymentRequest records a payment settled outside the gateways, such
// as a bank transfer entered by an operator
type RecordPaymentRequest struct {
	// reference must be unique per settlement; replays are duplicates
	Reference string          `json:"reference" validate:"required,max=255"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required,currency"`
	Method    string          `json:"method" validate:"required,max=64"`
	Notes     string          `json:"notes,omitempty" validate:"max=2000"`
}

func (r *RecordPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return ierr.NewError("amount must be positive").
			WithHint("Payment amount must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// WebhookResponse acknowledges a gateway event
type WebhookResponse struct {
	Received bool                 `json:"received"`
	Outcome  types.PaymentOutcome `json:"outcome"`
	Reason   string               `json:"reason,omitempty"`
}

// NewPaymentOutcomeResponse assembles the user-facing result of a confirmation
func NewPaymentOutcomeResponse(outcome types.PaymentOutcome, reason string, p *payment.Payment, inv *invoice.Invoice, now time.Time) *PaymentOutcomeResponse {
	return &PaymentOutcomeResponse{
		Outcome: outcome,
		Reason:  reason,
		Payment: NewPaymentResponse(p),
		Invoice: NewInvoiceResponse(inv, now),
	}
}
