package service

import (
	"context"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
)

// InvoiceService owns the invoice lifecycle. It is the only writer of
// invoice status and amount_paid.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error)
	UpdateInvoice(ctx context.Context, id string, req dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error)
	SendInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	CancelInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)

	// MarkOverdueInvoices persists overdue for every sent or partial invoice
	// whose due date has passed
	MarkOverdueInvoices(ctx context.Context) (*dto.MarkOverdueResponse, error)

	// ApplyPayment records a confirmed payment on the invoice with a
	// conditional write. It reports whether this call changed the invoice.
	ApplyPayment(ctx context.Context, invoiceID string, app invoice.PaymentApplication) (*invoice.Invoice, bool, error)
}

type invoiceService struct {
	ServiceParams
	builder    *InvoiceBuilder
	promotions PromotionService
}

func NewInvoiceService(params ServiceParams, promotions PromotionService) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
		builder:       NewInvoiceBuilder(params, promotions),
		promotions:    promotions,
	}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.ClientRepo.Get(ctx, req.ClientID); err != nil {
		return nil, err
	}

	inv, pricing, err := s.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	// the use is consumed before the invoice exists, so a failed write can
	// only under-count redemptions
	if err := s.promotions.RedeemPromotion(ctx, pricing.Promotion); err != nil {
		return nil, err
	}

	if err := s.builder.Persist(ctx, inv, req.InvoiceNumber); err != nil {
		if pricing.Promotion != nil {
			s.Logger.Warnw("invoice not stored after promotion was redeemed",
				"promotion_code", pricing.Promotion.Code,
				"error", err,
			)
		}
		return nil, err
	}

	s.Logger.Infow("created invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"client_id", inv.ClientID,
		"total", inv.Total.String(),
		"currency", inv.Currency,
		"status", inv.InvoiceStatus,
	)
	return dto.NewInvoiceResponse(inv, time.Now().UTC()), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	if id == "" {
		return nil, ierr.NewError("invoice_id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation)
	}

	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv, time.Now().UTC()), nil
}

func (s *invoiceService) GetInvoiceByNumber(ctx context.Context, number string) (*dto.InvoiceResponse, error) {
	if number == "" {
		return nil, ierr.NewError("invoice_number is required").
			WithHint("Invoice number is required").
			Mark(ierr.ErrValidation)
	}

	inv, err := s.InvoiceRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv, time.Now().UTC()), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = types.NewInvoiceFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.InvoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resp := types.NewListResponse(
		lo.Map(items, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
			return dto.NewInvoiceResponse(inv, now)
		}),
		total, filter.GetLimit(), filter.GetOffset(),
	)
	return &resp, nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, id string, req dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkEditable(inv); err != nil {
		return nil, err
	}
	expected := inv.InvoiceStatus

	// an omitted code keeps the current promotion, an empty one removes it
	code := req.PromotionCode
	if code == nil && inv.Promotion != nil {
		code = lo.ToPtr(inv.Promotion.Code)
	}

	taxRate := req.TaxRate
	if taxRate == nil {
		taxRate = lo.ToPtr(inv.TaxRate)
	}
	plan := req.PaymentPlan
	if plan == nil && !req.RemovePaymentPlan {
		plan = storedPlanTerms(inv)
	}
	dueDate := req.DueDate
	if dueDate == nil {
		dueDate = planlessDueDate(inv, plan)
	}

	pricing, err := s.builder.Price(ctx, PricingInput{
		Currency:      inv.Currency,
		LineItems:     req.ToLineItems(),
		TaxRate:       taxRate,
		PromotionCode: code,
		PaymentPlan:   plan,
		IssueDate:     inv.IssueDate,
		DueDate:       dueDate,
		Existing:      inv.Promotion,
	})
	if err != nil {
		return nil, err
	}

	if err := s.promotions.RedeemPromotion(ctx, pricing.Promotion); err != nil {
		return nil, err
	}

	inv.LineItems = req.ToLineItems()
	pricing.Apply(inv)
	if req.Notes != nil {
		inv.Notes = *req.Notes
	}
	inv.Touch(ctx)

	if err := s.InvoiceRepo.Update(ctx, inv, expected); err != nil {
		return nil, err
	}

	s.Logger.Infow("updated invoice",
		"invoice_id", inv.ID,
		"total", inv.Total.String(),
		"promotion_code", strings.TrimSpace(lo.FromPtr(code)),
		"version", inv.Version,
	)
	return dto.NewInvoiceResponse(inv, time.Now().UTC()), nil
}

// planlessDueDate keeps the stored due date when neither a new due date nor
// a payment plan is given
func planlessDueDate(inv *invoice.Invoice, plan *dto.PaymentPlanRequest) *time.Time {
	if plan != nil || inv.DueDate.IsZero() {
		return nil
	}
	return lo.ToPtr(inv.DueDate)
}

// storedPlanTerms recovers the request that produced the invoice's plan, so
// the schedule can be rebuilt against a new total
func storedPlanTerms(inv *invoice.Invoice) *dto.PaymentPlanRequest {
	if inv.PaymentPlan == nil {
		return nil
	}
	return &dto.PaymentPlanRequest{
		DownPayment:       inv.PaymentPlan.DownPayment,
		InstallmentsCount: inv.PaymentPlan.InstallmentsCount,
		Period:            inv.PaymentPlan.Period,
	}
}

func checkEditable(inv *invoice.Invoice) error {
	if inv.IsEditable() {
		return nil
	}
	switch inv.InvoiceStatus {
	case types.InvoiceStatusPartial, types.InvoiceStatusPaid:
		return invoice.NewLockedError(inv)
	default:
		return ierr.NewErrorf("invoice %s is %s and cannot be edited", inv.ID, inv.InvoiceStatus).
			WithHintf("A %s invoice cannot be edited", inv.InvoiceStatus).
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"status":     inv.InvoiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
}

func (s *invoiceService) SendInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, id, types.InvoiceStatusSent)
}

func (s *invoiceService) CancelInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, id, types.InvoiceStatusCancelled)
}

func (s *invoiceService) transition(ctx context.Context, id string, to types.InvoiceStatus) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	from := inv.InvoiceStatus
	changed, err := inv.TransitionTo(to, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return dto.NewInvoiceResponse(inv, now), nil
	}

	inv.Touch(ctx)
	if err := s.InvoiceRepo.Update(ctx, inv, from); err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice status changed", "invoice_id", inv.ID, "from", from, "to", to)
	return dto.NewInvoiceResponse(inv, now), nil
}

func (s *invoiceService) MarkOverdueInvoices(ctx context.Context) (*dto.MarkOverdueResponse, error) {
	filter := types.NewNoLimitInvoiceFilter()
	filter.Statuses = []types.InvoiceStatus{types.InvoiceStatusSent, types.InvoiceStatusPartial}

	candidates, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resp := &dto.MarkOverdueResponse{
		Checked:   len(candidates),
		MarkedIDs: make([]string, 0),
	}
	for _, inv := range candidates {
		if inv.EffectiveStatus(now) != types.InvoiceStatusOverdue {
			continue
		}

		from := inv.InvoiceStatus
		if _, err := inv.TransitionTo(types.InvoiceStatusOverdue, now); err != nil {
			resp.FailedIDs = append(resp.FailedIDs, inv.ID)
			continue
		}
		inv.Touch(ctx)

		// a concurrent payment wins; the invoice is re-checked on the next sweep
		if err := s.InvoiceRepo.Update(ctx, inv, from); err != nil {
			s.Logger.Warnw("failed to mark invoice overdue", "invoice_id", inv.ID, "error", err)
			resp.FailedIDs = append(resp.FailedIDs, inv.ID)
			continue
		}
		resp.MarkedIDs = append(resp.MarkedIDs, inv.ID)
	}
	resp.MarkedCount = len(resp.MarkedIDs)

	s.Logger.Infow("overdue sweep finished",
		"checked", resp.Checked,
		"marked", resp.MarkedCount,
		"failed", len(resp.FailedIDs),
	)
	return resp, nil
}

func (s *invoiceService) ApplyPayment(ctx context.Context, invoiceID string, app invoice.PaymentApplication) (*invoice.Invoice, bool, error) {
	attempts := max(s.Config.Billing.MaxConfirmAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
		if err != nil {
			return nil, false, err
		}

		expected := inv.InvoiceStatus
		applied, err := inv.ApplyPayment(app)
		if err != nil {
			return inv, false, err
		}
		if !applied {
			return inv, false, nil
		}
		inv.Touch(ctx)

		err = s.InvoiceRepo.Update(ctx, inv, expected)
		if err == nil {
			s.Logger.Infow("applied payment to invoice",
				"invoice_id", inv.ID,
				"payment_id", app.PaymentID,
				"amount", app.Amount.String(),
				"amount_paid", inv.AmountPaid.String(),
				"status", inv.InvoiceStatus,
				"attempt", attempt,
			)
			return inv, true, nil
		}
		if !ierr.IsVersionConflict(err) {
			return nil, false, err
		}
		s.Logger.Debugw("invoice changed while applying payment, retrying",
			"invoice_id", invoiceID,
			"payment_id", app.PaymentID,
			"attempt", attempt,
		)
	}

	return nil, false, ierr.NewErrorf("could not apply payment %s to invoice %s after %d attempts", app.PaymentID, invoiceID, attempts).
		WithHint("Invoice is being modified concurrently, please retry").
		WithReportableDetails(map[string]any{
			"invoice_id": invoiceID,
			"payment_id": app.PaymentID,
		}).
		Mark(ierr.ErrVersionConflict)
}
