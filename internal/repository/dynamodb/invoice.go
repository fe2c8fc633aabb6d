package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
)

const invoiceNumberRef = "number"

type invoiceItem struct {
	PK            string `dynamodbav:"pk"`
	Kind          string `dynamodbav:"kind"`
	Version       int    `dynamodbav:"version"`
	InvoiceStatus string `dynamodbav:"invoice_status"`
	Data          string `dynamodbav:"data"`
}

func newInvoiceItem(inv *invoice.Invoice) (*invoiceItem, error) {
	data, err := encodeDocument(inv)
	if err != nil {
		return nil, err
	}
	return &invoiceItem{
		PK:            inv.ID,
		Kind:          kindDocument,
		Version:       inv.Version,
		InvoiceStatus: string(inv.InvoiceStatus),
		Data:          data,
	}, nil
}

type invoiceRepository struct {
	baseRepository
}

func NewInvoiceRepository(client *ddb.Client, cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) invoice.Repository {
	return &invoiceRepository{baseRepository{
		client: client,
		table:  cfg.DynamoDB.InvoiceTable,
		logger: logger,
		sentry: sentry,
	}}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) (err error) {
	span, ctx := r.startSpan(ctx, "invoice", "create", map[string]interface{}{"invoice_id": inv.ID})
	defer func() { finishSpan(span, err) }()

	item, err := newInvoiceItem(inv)
	if err != nil {
		return err
	}

	r.logger.Debugw("creating invoice", "invoice_id", inv.ID, "invoice_number", inv.InvoiceNumber)

	taken, err := r.createWithRef(ctx, item, invoiceNumberRef, inv.InvoiceNumber, inv.ID)
	if err != nil {
		return err
	}
	if taken {
		return invoice.NewNumberTakenError(inv.InvoiceNumber)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (inv *invoice.Invoice, err error) {
	span, ctx := r.startSpan(ctx, "invoice", "get", map[string]interface{}{"invoice_id": id})
	defer func() { finishSpan(span, err) }()

	var item invoiceItem
	ok, err := r.get(ctx, id, &item)
	if err != nil {
		return nil, err
	}
	if !ok || item.Kind != kindDocument {
		return nil, invoice.NewNotFoundError(id)
	}
	return decodeDocument[invoice.Invoice](item.Data)
}

func (r *invoiceRepository) GetByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	id, ok, err := r.resolveRef(ctx, invoiceNumberRef, number)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invoice.NewNotFoundError(number)
	}
	return r.Get(ctx, id)
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	items, err := r.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return invoice.SortAndPage(items, filter), nil
}

func (r *invoiceRepository) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	items, err := r.scan(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (r *invoiceRepository) scan(ctx context.Context, filter *types.InvoiceFilter) (out []*invoice.Invoice, err error) {
	span, ctx := r.startSpan(ctx, "invoice", "scan", nil)
	defer func() { finishSpan(span, err) }()

	raw, err := r.scanDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range raw {
		var item invoiceItem
		if err := attributevalue.UnmarshalMap(m, &item); err != nil {
			return nil, dbError(err, "Failed to decode stored item", nil)
		}
		inv, err := decodeDocument[invoice.Invoice](item.Data)
		if err != nil {
			return nil, err
		}
		if invoice.MatchesFilter(inv, filter) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// Update is a conditional put on (version, invoice_status)
func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice, expectedStatus types.InvoiceStatus) (err error) {
	span, ctx := r.startSpan(ctx, "invoice", "update", map[string]interface{}{
		"invoice_id": inv.ID,
		"version":    inv.Version,
	})
	defer func() { finishSpan(span, err) }()

	next := inv.Clone()
	next.Version = inv.Version + 1
	item, err := newInvoiceItem(next)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return encodeError(err)
	}

	_, err = r.client.DB().PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String("#version = :version AND #status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#version": "version",
			"#status":  "invoice_status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":version": &ddbtypes.AttributeValueMemberN{Value: itoa(inv.Version)},
			":status":  &ddbtypes.AttributeValueMemberS{Value: string(expectedStatus)},
		},
	})
	if isConditionFailed(err) {
		var current invoiceItem
		ok, getErr := r.get(ctx, inv.ID, &current)
		if getErr != nil {
			return getErr
		}
		if !ok {
			return invoice.NewNotFoundError(inv.ID)
		}
		return invoice.NewVersionConflictError(inv, expectedStatus)
	}
	if err != nil {
		return dbError(err, "Failed to update invoice", map[string]any{"invoice_id": inv.ID})
	}

	inv.Version++
	return nil
}
