package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ledgerline/ledgerline/internal/domain/payment"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

var paymentSortColumns = map[string]string{
	"created_at": "created_at",
}

type paymentRepository struct {
	baseRepository
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger, sentry *sentry.Service) payment.Repository {
	return &paymentRepository{baseRepository{db: db, logger: logger, sentry: sentry}}
}

// CreateIfAbsent relies on the unique idempotency key index, so concurrent
// confirmations of one settlement insert exactly one row
func (r *paymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (stored *payment.Payment, created bool, err error) {
	span, ctx := r.startSpan(ctx, "payment", "create_if_absent", map[string]interface{}{
		"payment_id":      p.ID,
		"idempotency_key": p.IdempotencyKey,
	})
	defer func() { finishSpan(span, err) }()

	data, err := encode(p)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO payments (
			id, idempotency_key, invoice_id, client_id, gateway, gateway_ref, payment_status,
			data, status, created_at, updated_at, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (idempotency_key) DO NOTHING`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		p.ID, p.IdempotencyKey, p.InvoiceID, p.ClientID, p.Gateway, p.GatewayRef, p.PaymentStatus,
		data, p.Status, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy,
	)
	if err != nil {
		return nil, false, dbError(err, "Failed to record payment", map[string]any{
			"payment_id": p.ID,
			"invoice_id": p.InvoiceID,
		})
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, dbError(err, "Failed to record payment", map[string]any{"payment_id": p.ID})
	}
	if affected == 1 {
		return p.Clone(), true, nil
	}

	r.logger.Debugw("payment already recorded", "idempotency_key", p.IdempotencyKey)
	stored, err = r.GetByIdempotencyKey(ctx, p.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// UpdateStatus is a compare-and-set on payment_status
func (r *paymentRepository) UpdateStatus(ctx context.Context, p *payment.Payment, from types.PaymentStatus) (err error) {
	span, ctx := r.startSpan(ctx, "payment", "update_status", map[string]interface{}{
		"payment_id": p.ID,
		"from":       from,
		"to":         p.PaymentStatus,
	})
	defer func() { finishSpan(span, err) }()

	data, err := encode(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE payments
		SET payment_status = $1, data = $2, updated_at = $3, updated_by = $4
		WHERE id = $5 AND payment_status = $6`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		p.PaymentStatus, data, p.UpdatedAt, p.UpdatedBy, p.ID, from,
	)
	if err != nil {
		return dbError(err, "Failed to update payment", map[string]any{"payment_id": p.ID})
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Failed to update payment", map[string]any{"payment_id": p.ID})
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err = r.db.GetQuerier(ctx).GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)", p.ID); err != nil {
		return dbError(err, "Failed to update payment", map[string]any{"payment_id": p.ID})
	}
	if !exists {
		return payment.NewNotFoundError(p.ID)
	}
	return payment.NewStatusConflictError(p, from)
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getBy(ctx, "id", id)
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return r.getBy(ctx, "idempotency_key", key)
}

func (r *paymentRepository) getBy(ctx context.Context, column, value string) (p *payment.Payment, err error) {
	span, ctx := r.startSpan(ctx, "payment", "get", map[string]interface{}{column: value})
	defer func() { finishSpan(span, err) }()

	var row documentRow
	err = r.db.GetQuerier(ctx).GetContext(ctx, &row, "SELECT data FROM payments WHERE "+column+" = $1", value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.NewNotFoundError(value)
		}
		return nil, dbError(err, "Failed to get payment", map[string]any{column: value})
	}
	return decode[payment.Payment](row.Data)
}

func (r *paymentRepository) List(ctx context.Context, filter *types.PaymentFilter) (items []*payment.Payment, err error) {
	span, ctx := r.startSpan(ctx, "payment", "list", nil)
	defer func() { finishSpan(span, err) }()

	w := paymentWhere(filter)
	var qf *types.QueryFilter
	if filter != nil {
		qf = filter.QueryFilter
	}
	query := "SELECT data FROM payments" + w.String()
	query += w.page(qf, paymentSortColumns)

	var rows []documentRow
	if err = r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, dbError(err, "Failed to list payments", nil)
	}
	return decodeRows[payment.Payment](rows)
}

func (r *paymentRepository) Count(ctx context.Context, filter *types.PaymentFilter) (count int, err error) {
	span, ctx := r.startSpan(ctx, "payment", "count", nil)
	defer func() { finishSpan(span, err) }()

	w := paymentWhere(filter)
	if err = r.db.GetQuerier(ctx).GetContext(ctx, &count, "SELECT COUNT(*) FROM payments"+w.String(), w.args...); err != nil {
		return 0, dbError(err, "Failed to count payments", nil)
	}
	return count, nil
}

func paymentWhere(f *types.PaymentFilter) *where {
	w := &where{}
	if f == nil {
		return w
	}
	if f.InvoiceID != "" {
		w.add("invoice_id = $%d", f.InvoiceID)
	}
	if f.ClientID != "" {
		w.add("client_id = $%d", f.ClientID)
	}
	if f.Gateway != "" {
		w.add("gateway = $%d", f.Gateway)
	}
	if f.GatewayRef != "" {
		w.add("gateway_ref = $%d", f.GatewayRef)
	}
	if len(f.Statuses) > 0 {
		w.add("payment_status = ANY($%d)", pq.Array(lo.Map(f.Statuses, func(s types.PaymentStatus, _ int) string {
			return string(s)
		})))
	}
	return w
}
