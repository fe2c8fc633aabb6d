package stripe

import (
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

// Event types the reconciler acts on
const (
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventCheckoutSessionCompleted   = "checkout.session.completed"
)

// MetadataKeyInvoiceID links a Stripe object back to the invoice
const MetadataKeyInvoiceID = "invoice_id"

// NoticeKind is what an authentic event means for the ledger
type NoticeKind string

const (
	NoticeSucceeded NoticeKind = "succeeded"
	NoticeFailed    NoticeKind = "failed"
	NoticeIgnored   NoticeKind = "ignored"
)

// PaymentNotice is a verified event reduced to the fields reconciliation needs
type PaymentNotice struct {
	Kind      NoticeKind
	EventID   string
	EventType string
	InvoiceID string
	// GatewayRef is the payment intent id, so a checkout session and its
	// payment intent resolve to the same settlement
	GatewayRef    string
	Amount        decimal.Decimal
	Currency      types.Currency
	Method        string
	FailureReason string
	// Reason explains an ignored notice
	Reason string
}

// CheckoutInput describes a hosted checkout for one invoice payment
type CheckoutInput struct {
	InvoiceID     string
	InvoiceNumber string
	ClientID      string
	ClientEmail   string
	Amount        decimal.Decimal
	Currency      types.Currency
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the created hosted checkout
type CheckoutSession struct {
	ID  string
	URL string
}
