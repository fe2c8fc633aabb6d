package dynamodb

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/client"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/sentry"
)

type clientItem struct {
	PK    string `dynamodbav:"pk"`
	Kind  string `dynamodbav:"kind"`
	Email string `dynamodbav:"email"`
	Data  string `dynamodbav:"data"`
}

type clientRepository struct {
	baseRepository
}

func NewClientRepository(c *ddb.Client, cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) client.Repository {
	return &clientRepository{baseRepository{
		client: c,
		table:  cfg.DynamoDB.ClientTable,
		logger: logger,
		sentry: sentry,
	}}
}

func (r *clientRepository) Create(ctx context.Context, c *client.Client) (err error) {
	span, ctx := r.startSpan(ctx, "client", "create", map[string]interface{}{"client_id": c.ID})
	defer func() { finishSpan(span, err) }()

	data, err := encodeDocument(c)
	if err != nil {
		return err
	}
	return r.put(ctx, &clientItem{PK: c.ID, Kind: kindDocument, Email: c.Email, Data: data}, c.ID)
}

func (r *clientRepository) Get(ctx context.Context, id string) (c *client.Client, err error) {
	span, ctx := r.startSpan(ctx, "client", "get", map[string]interface{}{"client_id": id})
	defer func() { finishSpan(span, err) }()

	var item clientItem
	ok, err := r.get(ctx, id, &item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, client.NewNotFoundError(id)
	}
	return decodeDocument[client.Client](item.Data)
}
