package payment

import (
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
)

var (
	// ErrPaymentNotConfirmed is attached when the gateway could not be
	// reached or did not answer in time. Nothing was recorded and the payer
	// may try again.
	ErrPaymentNotConfirmed = ierr.New("payment_not_confirmed", "payment not confirmed")

	// ErrPaymentRejected is attached when the gateway explicitly refused the
	// payment. It is final for that attempt.
	ErrPaymentRejected = ierr.New("payment_rejected", "payment rejected")

	// ErrCurrencyMismatch is attached when a settlement is reported in a
	// currency other than the invoice's
	ErrCurrencyMismatch = ierr.New("payment_currency_mismatch", "payment currency mismatch")
)

// NewNotConfirmedError wraps a transient gateway failure
func NewNotConfirmedError(cause error, gateway string) error {
	return ierr.WithError(cause).
		WithMark(ErrPaymentNotConfirmed).
		WithHint("The payment could not be confirmed yet; please try again").
		WithReportableDetails(map[string]any{
			"gateway": gateway,
		}).
		Mark(ierr.ErrExternalService)
}

// NewRejectedError reports a gateway refusal with its result code
func NewRejectedError(gateway string, code int, message string) error {
	return ierr.NewErrorf("%s rejected the payment with code %d: %s", gateway, code, message).
		WithMark(ErrPaymentRejected).
		WithHint("The payment was rejected by the gateway").
		WithReportableDetails(map[string]any{
			"gateway": gateway,
			"code":    code,
		}).
		Mark(ierr.ErrInvalidOperation)
}

// NewStatusConflictError reports a status change raced by another writer
func NewStatusConflictError(p *Payment, expected types.PaymentStatus) error {
	return ierr.NewErrorf("payment %s changed concurrently", p.ID).
		WithHint("Payment was modified by another request, please retry").
		WithReportableDetails(map[string]any{
			"payment_id":      p.ID,
			"expected_status": expected,
		}).
		Mark(ierr.ErrVersionConflict)
}
