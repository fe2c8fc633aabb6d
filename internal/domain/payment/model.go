package payment

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

// Payment is an append-only ledger entry for one gateway settlement
type Payment struct {
	// ID is the unique identifier of the payment record
	ID string `json:"id"`
	// IdempotencyKey is derived from (gateway, gateway_ref) and is unique
	// across all payments; it is what makes confirmation exactly-once
	IdempotencyKey string `json:"idempotency_key"`
	// InvoiceID is the invoice this payment settles
	InvoiceID string `json:"invoice_id"`
	// ClientID is the paying client
	ClientID string `json:"client_id"`
	// Gateway is the provider the payment was settled through
	Gateway types.PaymentGateway `json:"gateway"`
	// GatewayRef is the provider's reference (payment intent id, ref_id)
	GatewayRef string `json:"gateway_ref"`
	// Method is the payment method reported to the invoice
	Method string `json:"method"`
	// Amount is in the transaction currency
	Amount decimal.Decimal `json:"amount"`
	// AmountInBaseCurrency uses the rate captured on the invoice
	AmountInBaseCurrency decimal.Decimal `json:"amount_in_base_currency"`
	// ExchangeRate is the rate used for AmountInBaseCurrency
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Currency     types.Currency  `json:"currency"`
	BaseCurrency types.Currency  `json:"base_currency"`
	// PaymentStatus starts pending for settlements and moves to completed
	// once the invoice records it, or to unapplied when the invoice no longer
	// accepts payments. Recorded gateway failures are failed.
	PaymentStatus types.PaymentStatus `json:"payment_status"`
	Notes         string              `json:"notes,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	Metadata      types.Metadata      `json:"metadata,omitempty"`

	types.BaseModel
}

// Clone returns a deep copy
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.FailureReason != nil {
		r := *p.FailureReason
		c.FailureReason = &r
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	c.Metadata = p.Metadata.Clone()
	return &c
}
