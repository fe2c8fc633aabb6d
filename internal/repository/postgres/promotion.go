package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
)

const promotionCodeConstraint = "idx_promotions_code"

var promotionSortColumns = map[string]string{
	"created_at": "created_at",
}

type promotionRepository struct {
	baseRepository
}

func NewPromotionRepository(db *postgres.DB, logger *logger.Logger, sentry *sentry.Service) promotion.Repository {
	return &promotionRepository{baseRepository{db: db, logger: logger, sentry: sentry}}
}

func (r *promotionRepository) Create(ctx context.Context, p *promotion.Promotion) (err error) {
	span, ctx := r.startSpan(ctx, "promotion", "create", map[string]interface{}{
		"promotion_id": p.ID,
		"code":         p.Code,
	})
	defer func() { finishSpan(span, err) }()

	data, err := encode(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO promotions (
			id, code, active, start_date, end_date, usage_limit, used_count,
			data, status, created_at, updated_at, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		p.ID, p.Code, p.Active, p.StartDate, p.EndDate, p.UsageLimit, p.UsedCount,
		data, p.Status, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err, promotionCodeConstraint) {
			return promotion.NewCodeTakenError(p.Code)
		}
		return dbError(err, "Failed to create promotion", map[string]any{"code": p.Code})
	}
	return nil
}

func (r *promotionRepository) Get(ctx context.Context, id string) (*promotion.Promotion, error) {
	return r.getBy(ctx, "id", id)
}

func (r *promotionRepository) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return r.getBy(ctx, "code", code)
}

func (r *promotionRepository) getBy(ctx context.Context, column, value string) (p *promotion.Promotion, err error) {
	span, ctx := r.startSpan(ctx, "promotion", "get", map[string]interface{}{column: value})
	defer func() { finishSpan(span, err) }()

	var row documentRow
	err = r.db.GetQuerier(ctx).GetContext(ctx, &row, "SELECT data FROM promotions WHERE "+column+" = $1", value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, promotion.NewNotFoundError(value)
		}
		return nil, dbError(err, "Failed to get promotion", map[string]any{column: value})
	}
	return decode[promotion.Promotion](row.Data)
}

func (r *promotionRepository) List(ctx context.Context, filter *types.PromotionFilter) (items []*promotion.Promotion, err error) {
	span, ctx := r.startSpan(ctx, "promotion", "list", nil)
	defer func() { finishSpan(span, err) }()

	w := promotionWhere(filter, time.Now().UTC())
	var qf *types.QueryFilter
	if filter != nil {
		qf = filter.QueryFilter
	}
	query := "SELECT data FROM promotions" + w.String()
	query += w.page(qf, promotionSortColumns)

	var rows []documentRow
	if err = r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, dbError(err, "Failed to list promotions", nil)
	}
	return decodeRows[promotion.Promotion](rows)
}

func (r *promotionRepository) Count(ctx context.Context, filter *types.PromotionFilter) (count int, err error) {
	span, ctx := r.startSpan(ctx, "promotion", "count", nil)
	defer func() { finishSpan(span, err) }()

	w := promotionWhere(filter, time.Now().UTC())
	if err = r.db.GetQuerier(ctx).GetContext(ctx, &count, "SELECT COUNT(*) FROM promotions"+w.String(), w.args...); err != nil {
		return 0, dbError(err, "Failed to count promotions", nil)
	}
	return count, nil
}

// IncrementUsage guards the limit in the WHERE clause so concurrent
// redemptions can never push used_count past usage_limit
func (r *promotionRepository) IncrementUsage(ctx context.Context, id string) (err error) {
	span, ctx := r.startSpan(ctx, "promotion", "increment_usage", map[string]interface{}{"promotion_id": id})
	defer func() { finishSpan(span, err) }()

	query := `
		UPDATE promotions
		SET used_count = used_count + 1,
			data = jsonb_set(data, '{used_count}', to_jsonb(used_count + 1)),
			updated_at = $2
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return dbError(err, "Failed to redeem promotion", map[string]any{"promotion_id": id})
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Failed to redeem promotion", map[string]any{"promotion_id": id})
	}
	if affected == 1 {
		return nil
	}

	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return promotion.NewUsageExhaustedError(p.Code)
}

func promotionWhere(f *types.PromotionFilter, now time.Time) *where {
	w := &where{}
	if f == nil || !f.ActiveOnly {
		return w
	}
	w.clauses = append(w.clauses, "active")
	w.add("(start_date IS NULL OR start_date <= $%d)", now)
	w.add("(end_date IS NULL OR end_date >= $%d)", now)
	return w
}
