package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ledgerline/ledgerline/internal/domain/client"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	"github.com/ledgerline/ledgerline/internal/sentry"
)

type clientRepository struct {
	baseRepository
}

func NewClientRepository(db *postgres.DB, logger *logger.Logger, sentry *sentry.Service) client.Repository {
	return &clientRepository{baseRepository{db: db, logger: logger, sentry: sentry}}
}

func (r *clientRepository) Create(ctx context.Context, c *client.Client) (err error) {
	span, ctx := r.startSpan(ctx, "client", "create", map[string]interface{}{"client_id": c.ID})
	defer func() { finishSpan(span, err) }()

	data, err := encode(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO clients (id, name, email, data, status, created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	r.logger.Debugw("creating client", "client_id", c.ID, "email", c.Email)

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		c.ID, c.Name, c.Email, data, c.Status, c.CreatedAt, c.UpdatedAt, c.CreatedBy, c.UpdatedBy,
	)
	if err != nil {
		return dbError(err, "Failed to create client", map[string]any{"client_id": c.ID})
	}
	return nil
}

func (r *clientRepository) Get(ctx context.Context, id string) (c *client.Client, err error) {
	span, ctx := r.startSpan(ctx, "client", "get", map[string]interface{}{"client_id": id})
	defer func() { finishSpan(span, err) }()

	var row documentRow
	err = r.db.GetQuerier(ctx).GetContext(ctx, &row, "SELECT data FROM clients WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, client.NewNotFoundError(id)
		}
		return nil, dbError(err, "Failed to get client", map[string]any{"client_id": id})
	}
	return decode[client.Client](row.Data)
}
