package types

import (
	"time"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/samber/lo"
)

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusSent,
		InvoiceStatusPartial,
		InvoiceStatusPaid,
		InvoiceStatusOverdue,
		InvoiceStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHintf("Invoice status %q is not valid", string(s)).
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// InstallmentStatus is the payment state of a single installment
type InstallmentStatus string

const (
	InstallmentStatusUnpaid InstallmentStatus = "unpaid"
	InstallmentStatusPaid   InstallmentStatus = "paid"
)

// InstallmentPeriod is the spacing between installment due dates
type InstallmentPeriod string

const (
	InstallmentPeriodWeekly    InstallmentPeriod = "weekly"
	InstallmentPeriodMonthly   InstallmentPeriod = "monthly"
	InstallmentPeriodQuarterly InstallmentPeriod = "quarterly"
)

func (p InstallmentPeriod) Validate() error {
	allowed := []InstallmentPeriod{
		InstallmentPeriodWeekly,
		InstallmentPeriodMonthly,
		InstallmentPeriodQuarterly,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid installment period").
			WithHintf("Installment period %q is not valid", string(p)).
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DueDate returns the due date of the n-th installment counted from anchor.
// Every date is computed from the anchor, so month-end clamping in one period
// never drifts into the next (Jan 31 -> Feb 29 -> Mar 31).
func (p InstallmentPeriod) DueDate(anchor time.Time, n int) time.Time {
	switch p {
	case InstallmentPeriodWeekly:
		return anchor.AddDate(0, 0, 7*n)
	case InstallmentPeriodQuarterly:
		return AddClampedDate(anchor, 0, 3*n, 0)
	default:
		return AddClampedDate(anchor, 0, n, 0)
	}
}

// InvoiceFilter represents the filter options for listing invoices
type InvoiceFilter struct {
	*QueryFilter
	ClientID      string          `json:"client_id,omitempty" form:"client_id"`
	InvoiceNumber string          `json:"invoice_number,omitempty" form:"invoice_number"`
	Statuses      []InvoiceStatus `json:"statuses,omitempty" form:"statuses"`
	Currency      Currency        `json:"currency,omitempty" form:"currency"`
	DueBefore     *time.Time      `json:"due_before,omitempty" form:"due_before"`
	IssuedAfter   *time.Time      `json:"issued_after,omitempty" form:"issued_after"`
	IssuedBefore  *time.Time      `json:"issued_before,omitempty" form:"issued_before"`
	PromotionCode string          `json:"promotion_code,omitempty" form:"promotion_code"`
}

// NewInvoiceFilter creates a filter with default pagination
func NewInvoiceFilter() *InvoiceFilter {
	return &InvoiceFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitInvoiceFilter creates a filter without pagination
func NewNoLimitInvoiceFilter() *InvoiceFilter {
	return &InvoiceFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *InvoiceFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if f.Currency != "" {
		if err := f.Currency.Validate(); err != nil {
			return err
		}
	}
	if f.IssuedAfter != nil && f.IssuedBefore != nil && f.IssuedAfter.After(*f.IssuedBefore) {
		return ierr.NewError("issued_after must be before issued_before").
			WithHint("Issued date range is invalid").
			Mark(ierr.ErrValidation)
	}
	return nil
}
