package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

const invoiceNumberConstraint = "idx_invoices_number"

var invoiceSortColumns = map[string]string{
	"created_at": "created_at",
	"issue_date": "issue_date",
	"due_date":   "due_date",
	"total":      "total",
}

type invoiceRepository struct {
	baseRepository
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger, sentry *sentry.Service) invoice.Repository {
	return &invoiceRepository{baseRepository{db: db, logger: logger, sentry: sentry}}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) (err error) {
	span, ctx := r.startSpan(ctx, "invoice", "create", map[string]interface{}{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
	})
	defer func() { finishSpan(span, err) }()

	data, err := encode(inv)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (
			id, invoice_number, client_id, invoice_status, currency, total, promotion_code,
			issue_date, due_date, version, data, status, created_at, updated_at, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"client_id", inv.ClientID,
	)

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.ClientID, inv.InvoiceStatus, inv.Currency, inv.Total, promotionCode(inv),
		inv.IssueDate, inv.DueDate, inv.Version, data, inv.Status, inv.CreatedAt, inv.UpdatedAt, inv.CreatedBy, inv.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err, invoiceNumberConstraint) {
			return invoice.NewNumberTakenError(inv.InvoiceNumber)
		}
		return dbError(err, "Failed to create invoice", map[string]any{
			"invoice_id": inv.ID,
		})
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return r.getBy(ctx, "id", id)
}

func (r *invoiceRepository) GetByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return r.getBy(ctx, "invoice_number", number)
}

func (r *invoiceRepository) getBy(ctx context.Context, column, value string) (inv *invoice.Invoice, err error) {
	span, ctx := r.startSpan(ctx, "invoice", "get", map[string]interface{}{column: value})
	defer func() { finishSpan(span, err) }()

	var row documentRow
	// column is one of two constants
	err = r.db.GetQuerier(ctx).GetContext(ctx, &row, "SELECT data FROM invoices WHERE "+column+" = $1", value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.NewNotFoundError(value)
		}
		return nil, dbError(err, "Failed to get invoice", map[string]any{column: value})
	}
	return decode[invoice.Invoice](row.Data)
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.InvoiceFilter) (items []*invoice.Invoice, err error) {
	span, ctx := r.startSpan(ctx, "invoice", "list", nil)
	defer func() { finishSpan(span, err) }()

	w := invoiceWhere(filter)
	var qf *types.QueryFilter
	if filter != nil {
		qf = filter.QueryFilter
	}
	query := "SELECT data FROM invoices" + w.String()
	query += w.page(qf, invoiceSortColumns)

	var rows []documentRow
	if err = r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, dbError(err, "Failed to list invoices", nil)
	}
	return decodeRows[invoice.Invoice](rows)
}

func (r *invoiceRepository) Count(ctx context.Context, filter *types.InvoiceFilter) (count int, err error) {
	span, ctx := r.startSpan(ctx, "invoice", "count", nil)
	defer func() { finishSpan(span, err) }()

	w := invoiceWhere(filter)
	if err = r.db.GetQuerier(ctx).GetContext(ctx, &count, "SELECT COUNT(*) FROM invoices"+w.String(), w.args...); err != nil {
		return 0, dbError(err, "Failed to count invoices", nil)
	}
	return count, nil
}

// Update is a compare-and-swap on (version, invoice_status)
func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice, expectedStatus types.InvoiceStatus) (err error) {
	span, ctx := r.startSpan(ctx, "invoice", "update", map[string]interface{}{
		"invoice_id":      inv.ID,
		"version":         inv.Version,
		"expected_status": expectedStatus,
	})
	defer func() { finishSpan(span, err) }()

	next := inv.Clone()
	next.Version = inv.Version + 1
	data, err := encode(next)
	if err != nil {
		return err
	}

	query := `
		UPDATE invoices
		SET data = $1, invoice_status = $2, total = $3, promotion_code = $4, due_date = $5,
			version = version + 1, status = $6, updated_at = $7, updated_by = $8
		WHERE id = $9 AND version = $10 AND invoice_status = $11`

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, query,
		data, next.InvoiceStatus, next.Total, promotionCode(next), next.DueDate,
		next.Status, next.UpdatedAt, next.UpdatedBy,
		inv.ID, inv.Version, expectedStatus,
	)
	if err != nil {
		return dbError(err, "Failed to update invoice", map[string]any{"invoice_id": inv.ID})
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Failed to update invoice", map[string]any{"invoice_id": inv.ID})
	}

	if affected == 0 {
		var exists bool
		if err = q.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)", inv.ID); err != nil {
			return dbError(err, "Failed to update invoice", map[string]any{"invoice_id": inv.ID})
		}
		if !exists {
			return invoice.NewNotFoundError(inv.ID)
		}
		return invoice.NewVersionConflictError(inv, expectedStatus)
	}

	inv.Version++
	return nil
}

func invoiceWhere(f *types.InvoiceFilter) *where {
	w := &where{}
	if f == nil {
		return w
	}
	if f.ClientID != "" {
		w.add("client_id = $%d", f.ClientID)
	}
	if f.InvoiceNumber != "" {
		w.add("invoice_number = $%d", f.InvoiceNumber)
	}
	if len(f.Statuses) > 0 {
		w.add("invoice_status = ANY($%d)", pq.Array(lo.Map(f.Statuses, func(s types.InvoiceStatus, _ int) string {
			return string(s)
		})))
	}
	if f.Currency != "" {
		w.add("currency = $%d", f.Currency)
	}
	if f.DueBefore != nil {
		w.add("due_date < $%d", *f.DueBefore)
	}
	if f.IssuedAfter != nil {
		w.add("issue_date >= $%d", *f.IssuedAfter)
	}
	if f.IssuedBefore != nil {
		w.add("issue_date <= $%d", *f.IssuedBefore)
	}
	if f.PromotionCode != "" {
		w.add("promotion_code = $%d", f.PromotionCode)
	}
	return w
}

func promotionCode(inv *invoice.Invoice) *string {
	if inv.Promotion == nil {
		return nil
	}
	return &inv.Promotion.Code
}
