package invoice

import (
	ierr "github.com/ledgerline/ledgerline/internal/errors"
)

var (
	// ErrInvoiceLocked is attached when totals change after payment started
	ErrInvoiceLocked = ierr.New("invoice_locked", "invoice locked")

	// ErrInvalidTransition is attached when the state machine forbids a move
	ErrInvalidTransition = ierr.New("invalid_invoice_transition", "invalid invoice status transition")

	// ErrInvoiceNotPayable is attached when a payment targets an invoice that
	// is draft, paid or cancelled
	ErrInvoiceNotPayable = ierr.New("invoice_not_payable", "invoice not payable")
)

// NewLockedError reports an attempt to edit an invoice outside draft/sent
func NewLockedError(inv *Invoice) error {
	return ierr.NewErrorf("invoice %s is %s and cannot be edited", inv.ID, inv.InvoiceStatus).
		WithMark(ErrInvoiceLocked).
		WithHintf("Invoice is %s; line items and totals can no longer change", inv.InvoiceStatus).
		WithReportableDetails(map[string]any{
			"invoice_id": inv.ID,
			"status":     inv.InvoiceStatus,
		}).
		Mark(ierr.ErrInvalidOperation)
}

// NewNotPayableError reports a payment against an invoice that accepts none
func NewNotPayableError(inv *Invoice) error {
	return ierr.NewErrorf("invoice %s is %s and cannot accept payments", inv.ID, inv.InvoiceStatus).
		WithMark(ErrInvoiceNotPayable).
		WithHintf("Invoice is %s and cannot be paid", inv.InvoiceStatus).
		WithReportableDetails(map[string]any{
			"invoice_id": inv.ID,
			"status":     inv.InvoiceStatus,
		}).
		Mark(ierr.ErrInvalidOperation)
}

// NewNotFoundError reports a missing invoice looked up by key (id or number)
func NewNotFoundError(key string) error {
	return ierr.NewErrorf("invoice %s not found", key).
		WithHintf("Invoice %s was not found", key).
		WithReportableDetails(map[string]any{
			"invoice": key,
		}).
		Mark(ierr.ErrNotFound)
}

// NewNumberTakenError reports an invoice number that is already in use
func NewNumberTakenError(number string) error {
	return ierr.NewErrorf("invoice number %s already exists", number).
		WithHintf("Invoice number %s is already in use", number).
		WithReportableDetails(map[string]any{
			"invoice_number": number,
		}).
		Mark(ierr.ErrAlreadyExists)
}

// NewVersionConflictError reports a conditional update that lost a race
func NewVersionConflictError(inv *Invoice, expected interface{}) error {
	return ierr.NewErrorf("invoice %s changed concurrently", inv.ID).
		WithHint("Invoice was modified by another request, please retry").
		WithReportableDetails(map[string]any{
			"invoice_id":      inv.ID,
			"expected_status": expected,
			"version":         inv.Version,
		}).
		Mark(ierr.ErrVersionConflict)
}
