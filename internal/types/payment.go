package types

import (
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/samber/lo"
)

// PaymentStatus is the settlement state of a payment record
type PaymentStatus string

const (
	// PaymentStatusPending is a settlement recorded but not yet applied
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	// PaymentStatusUnapplied is a settlement the gateway captured after the
	// invoice stopped accepting payments. It needs a refund.
	PaymentStatusUnapplied PaymentStatus = "unapplied"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusCompleted,
		PaymentStatusFailed,
		PaymentStatusUnapplied,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment status").
			WithHintf("Payment status %q is not valid", string(s)).
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentGateway identifies the provider a payment was settled through
type PaymentGateway string

const (
	// PaymentGatewayStripe delivers signed asynchronous webhook events
	PaymentGatewayStripe PaymentGateway = "stripe"
	// PaymentGatewayZarinpal redirects the payer back with an authority
	// token that has to be verified server to server
	PaymentGatewayZarinpal PaymentGateway = "zarinpal"
	// PaymentGatewayManual is used for payments recorded by an operator
	PaymentGatewayManual PaymentGateway = "manual"
)

func (g PaymentGateway) String() string {
	return string(g)
}

func (g PaymentGateway) Validate() error {
	allowed := []PaymentGateway{
		PaymentGatewayStripe,
		PaymentGatewayZarinpal,
		PaymentGatewayManual,
	}
	if !lo.Contains(allowed, g) {
		return ierr.NewError("invalid payment gateway").
			WithHintf("Payment gateway %q is not supported", string(g)).
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentOutcome is what a gateway adapter reports back to the caller
type PaymentOutcome string

const (
	// PaymentOutcomeConfirmed means the payment was applied to the invoice
	PaymentOutcomeConfirmed PaymentOutcome = "confirmed"
	// PaymentOutcomeDuplicate means the gateway reference was already applied
	PaymentOutcomeDuplicate PaymentOutcome = "duplicate"
	// PaymentOutcomeNotConfirmed means the gateway could not be reached or
	// did not answer in time; the invoice is untouched and the payer may retry
	PaymentOutcomeNotConfirmed PaymentOutcome = "not_confirmed"
	// PaymentOutcomeRejected means the gateway explicitly refused the payment
	PaymentOutcomeRejected PaymentOutcome = "rejected"
	// PaymentOutcomeUnapplied means the money was captured but the invoice
	// was already settled or cancelled; the payment is held for refund
	PaymentOutcomeUnapplied PaymentOutcome = "unapplied"
	// PaymentOutcomeIgnored means the event was authentic but not actionable
	PaymentOutcomeIgnored PaymentOutcome = "ignored"
)

// PaymentFilter represents the filter options for listing payments
type PaymentFilter struct {
	*QueryFilter
	InvoiceID  string          `json:"invoice_id,omitempty" form:"invoice_id"`
	ClientID   string          `json:"client_id,omitempty" form:"client_id"`
	Gateway    PaymentGateway  `json:"gateway,omitempty" form:"gateway"`
	GatewayRef string          `json:"gateway_ref,omitempty" form:"gateway_ref"`
	Statuses   []PaymentStatus `json:"statuses,omitempty" form:"statuses"`
}

// NewPaymentFilter creates a filter with default pagination
func NewPaymentFilter() *PaymentFilter {
	return &PaymentFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitPaymentFilter creates a filter without pagination
func NewNoLimitPaymentFilter() *PaymentFilter {
	return &PaymentFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *PaymentFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	if f.Gateway != "" {
		if err := f.Gateway.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
