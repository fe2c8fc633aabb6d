package invoice

import (
	"time"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var transitions = map[types.InvoiceStatus][]types.InvoiceStatus{
	types.InvoiceStatusDraft: {
		types.InvoiceStatusSent,
		types.InvoiceStatusCancelled,
	},
	types.InvoiceStatusSent: {
		types.InvoiceStatusPartial,
		types.InvoiceStatusPaid,
		types.InvoiceStatusOverdue,
		types.InvoiceStatusCancelled,
	},
	types.InvoiceStatusPartial: {
		types.InvoiceStatusPaid,
		types.InvoiceStatusOverdue,
		types.InvoiceStatusCancelled,
	},
	types.InvoiceStatusOverdue: {
		types.InvoiceStatusPartial,
		types.InvoiceStatusPaid,
		types.InvoiceStatusCancelled,
	},
}

// CanTransition reports whether from -> to is a permitted move. Staying in the
// same status is always permitted and means nothing changes.
func CanTransition(from, to types.InvoiceStatus) bool {
	if from == to {
		return true
	}
	return lo.Contains(transitions[from], to)
}

// TransitionTo moves the invoice to status and stamps the matching timestamp.
// It reports whether anything changed.
func (i *Invoice) TransitionTo(status types.InvoiceStatus, now time.Time) (bool, error) {
	if i.InvoiceStatus == status {
		return false, nil
	}
	if !CanTransition(i.InvoiceStatus, status) {
		return false, ierr.NewErrorf("invoice %s cannot move from %s to %s", i.ID, i.InvoiceStatus, status).
			WithMark(ErrInvalidTransition).
			WithHintf("Invoice cannot move from %s to %s", i.InvoiceStatus, status).
			WithReportableDetails(map[string]any{
				"invoice_id": i.ID,
				"from":       i.InvoiceStatus,
				"to":         status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	i.InvoiceStatus = status
	switch status {
	case types.InvoiceStatusSent:
		i.SentAt = lo.ToPtr(now)
	case types.InvoiceStatusPaid:
		i.PaidAt = lo.ToPtr(now)
	case types.InvoiceStatusCancelled:
		i.CancelledAt = lo.ToPtr(now)
	}
	return true, nil
}

// PaymentApplication is the part of a confirmed payment the invoice records
type PaymentApplication struct {
	PaymentID string
	Amount    decimal.Decimal
	Method    string
	Notes     string
	PaidAt    time.Time
}

// ApplyPayment records a confirmed payment. Applying the same payment twice is
// a no-op and reports false. Installment parts are settled in order, down
// payment first, from the cumulative amount paid.
func (i *Invoice) ApplyPayment(p PaymentApplication) (bool, error) {
	if i.HasPayment(p.PaymentID) {
		return false, nil
	}
	if !i.IsPayable() {
		return false, NewNotPayableError(i)
	}
	if !p.Amount.IsPositive() {
		return false, ierr.NewError("payment amount must be positive").
			WithHint("Payment amount must be greater than zero").
			Mark(ierr.ErrValidation)
	}

	i.AmountPaid = i.AmountPaid.Add(p.Amount)
	i.AppliedPaymentIDs = append(i.AppliedPaymentIDs, p.PaymentID)
	if p.Method != "" {
		i.PaymentMethod = lo.ToPtr(p.Method)
	}
	if p.Notes != "" {
		i.PaymentNotes = lo.ToPtr(p.Notes)
	}
	i.allocate(p.PaidAt)

	target := types.InvoiceStatusPartial
	if i.AmountPaid.GreaterThanOrEqual(i.Total) {
		target = types.InvoiceStatusPaid
	}
	if _, err := i.TransitionTo(target, p.PaidAt); err != nil {
		return false, err
	}
	return true, nil
}

// allocate marks plan parts as paid while the cumulative amount covers them
func (i *Invoice) allocate(now time.Time) {
	if i.PaymentPlan == nil {
		return
	}
	plan := i.PaymentPlan
	covered := i.AmountPaid

	if covered.GreaterThanOrEqual(plan.DownPayment) {
		if !plan.DownPaymentPaid {
			plan.DownPaymentPaid = true
			plan.DownPaymentPaidAt = lo.ToPtr(now)
		}
		covered = covered.Sub(plan.DownPayment)
	} else {
		return
	}

	for idx := range plan.Schedule {
		in := &plan.Schedule[idx]
		if covered.LessThan(in.Amount) {
			return
		}
		if in.Status != types.InstallmentStatusPaid {
			in.Status = types.InstallmentStatusPaid
			in.PaidAt = lo.ToPtr(now)
		}
		covered = covered.Sub(in.Amount)
	}
}
