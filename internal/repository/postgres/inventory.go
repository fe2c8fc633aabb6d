package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	"github.com/ledgerline/ledgerline/internal/sentry"
)

type productRepository struct {
	baseRepository
}

func NewProductRepository(db *postgres.DB, logger *logger.Logger, sentry *sentry.Service) inventory.Repository {
	return &productRepository{baseRepository{db: db, logger: logger, sentry: sentry}}
}

func (r *productRepository) Create(ctx context.Context, p *inventory.Product) (err error) {
	span, ctx := r.startSpan(ctx, "product", "create", map[string]interface{}{"product_id": p.ID})
	defer func() { finishSpan(span, err) }()

	data, err := encode(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, name, data, status, created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		p.ID, p.Name, data, p.Status, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy,
	)
	if err != nil {
		return dbError(err, "Failed to create product", map[string]any{"product_id": p.ID})
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (p *inventory.Product, err error) {
	span, ctx := r.startSpan(ctx, "product", "get", map[string]interface{}{"product_id": id})
	defer func() { finishSpan(span, err) }()

	return r.get(ctx, id, false)
}

func (r *productRepository) get(ctx context.Context, id string, forUpdate bool) (*inventory.Product, error) {
	query := "SELECT data FROM products WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var row documentRow
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.NewNotFoundError(id)
		}
		return nil, dbError(err, "Failed to get product", map[string]any{"product_id": id})
	}
	return decode[inventory.Product](row.Data)
}

func (r *productRepository) List(ctx context.Context) (items []*inventory.Product, err error) {
	span, ctx := r.startSpan(ctx, "product", "list", nil)
	defer func() { finishSpan(span, err) }()

	var rows []documentRow
	if err = r.db.GetQuerier(ctx).SelectContext(ctx, &rows, "SELECT data FROM products ORDER BY name, id"); err != nil {
		return nil, dbError(err, "Failed to list products", nil)
	}
	return decodeRows[inventory.Product](rows)
}

// Decrement locks the product row for the read-modify-write so concurrent
// side effects serialize on it. The key row commits with the stock update.
func (r *productRepository) Decrement(ctx context.Context, key, productID string, variantKey *string, qty int) (p *inventory.Product, err error) {
	span, ctx := r.startSpan(ctx, "product", "decrement", map[string]interface{}{
		"product_id": productID,
		"quantity":   qty,
	})
	defer func() { finishSpan(span, err) }()

	err = r.db.WithTx(ctx, func(ctx context.Context) error {
		current, err := r.get(ctx, productID, true)
		if err != nil {
			return err
		}

		res, err := r.db.GetQuerier(ctx).ExecContext(ctx,
			`INSERT INTO stock_decrements (key, product_id, quantity, created_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO NOTHING`,
			key, productID, qty, time.Now().UTC(),
		)
		if err != nil {
			return dbError(err, "Failed to record stock decrement", map[string]any{"product_id": productID})
		}
		if n, err := res.RowsAffected(); err != nil {
			return dbError(err, "Failed to record stock decrement", map[string]any{"product_id": productID})
		} else if n == 0 {
			r.logger.Debugw("stock decrement already applied", "product_id", productID, "key", key)
			p = current
			return nil
		}

		if current.Decrement(variantKey, qty) == 0 {
			p = current
			return nil
		}
		current.UpdatedAt = time.Now().UTC()

		data, err := encode(current)
		if err != nil {
			return err
		}
		_, err = r.db.GetQuerier(ctx).ExecContext(ctx,
			"UPDATE products SET data = $1, updated_at = $2 WHERE id = $3",
			data, current.UpdatedAt, productID,
		)
		if err != nil {
			return dbError(err, "Failed to update product stock", map[string]any{"product_id": productID})
		}
		p = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
