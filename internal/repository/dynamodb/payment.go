package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
)

const idempotencyRef = "idem"

type paymentItem struct {
	PK             string `dynamodbav:"pk"`
	Kind           string `dynamodbav:"kind"`
	IdempotencyKey string `dynamodbav:"idempotency_key"`
	InvoiceID      string `dynamodbav:"invoice_id"`
	PaymentStatus  string `dynamodbav:"payment_status"`
	Data           string `dynamodbav:"data"`
}

func newPaymentItem(p *payment.Payment) (*paymentItem, error) {
	data, err := encodeDocument(p)
	if err != nil {
		return nil, err
	}
	return &paymentItem{
		PK:             p.ID,
		Kind:           kindDocument,
		IdempotencyKey: p.IdempotencyKey,
		InvoiceID:      p.InvoiceID,
		PaymentStatus:  string(p.PaymentStatus),
		Data:           data,
	}, nil
}

type paymentRepository struct {
	baseRepository
}

func NewPaymentRepository(client *ddb.Client, cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) payment.Repository {
	return &paymentRepository{baseRepository{
		client: client,
		table:  cfg.DynamoDB.PaymentTable,
		logger: logger,
		sentry: sentry,
	}}
}

// CreateIfAbsent claims the idempotency key and writes the payment in one
// transaction; losing the claim means the payment is already recorded
func (r *paymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (stored *payment.Payment, created bool, err error) {
	span, ctx := r.startSpan(ctx, "payment", "create_if_absent", map[string]interface{}{
		"payment_id":      p.ID,
		"idempotency_key": p.IdempotencyKey,
	})
	defer func() { finishSpan(span, err) }()

	item, err := newPaymentItem(p)
	if err != nil {
		return nil, false, err
	}

	taken, err := r.createWithRef(ctx, item, idempotencyRef, p.IdempotencyKey, p.ID)
	if err != nil {
		return nil, false, err
	}
	if !taken {
		return p.Clone(), true, nil
	}

	r.logger.Debugw("payment already recorded", "idempotency_key", p.IdempotencyKey)
	stored, err = r.GetByIdempotencyKey(ctx, p.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// UpdateStatus is a conditional put on the payment_status guard attribute
func (r *paymentRepository) UpdateStatus(ctx context.Context, p *payment.Payment, from types.PaymentStatus) (err error) {
	span, ctx := r.startSpan(ctx, "payment", "update_status", map[string]interface{}{
		"payment_id": p.ID,
		"from":       from,
		"to":         p.PaymentStatus,
	})
	defer func() { finishSpan(span, err) }()

	item, err := newPaymentItem(p)
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
		ConditionExpression: aws.String("#payment_status = :from"),
		ExpressionAttributeNames: map[string]string{
			"#payment_status": "payment_status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":from": &ddbtypes.AttributeValueMemberS{Value: string(from)},
		},
	})
	if isConditionFailed(err) {
		var current paymentItem
		ok, getErr := r.get(ctx, p.ID, &current)
		if getErr != nil {
			return getErr
		}
		if !ok {
			return payment.NewNotFoundError(p.ID)
		}
		return payment.NewStatusConflictError(p, from)
	}
	if err != nil {
		return dbError(err, "Failed to update payment", map[string]any{"payment_id": p.ID})
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (p *payment.Payment, err error) {
	span, ctx := r.startSpan(ctx, "payment", "get", map[string]interface{}{"payment_id": id})
	defer func() { finishSpan(span, err) }()

	var item paymentItem
	ok, err := r.get(ctx, id, &item)
	if err != nil {
		return nil, err
	}
	if !ok || item.Kind != kindDocument {
		return nil, payment.NewNotFoundError(id)
	}
	return decodeDocument[payment.Payment](item.Data)
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	id, ok, err := r.resolveRef(ctx, idempotencyRef, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, payment.NewNotFoundError(key)
	}
	return r.Get(ctx, id)
}

func (r *paymentRepository) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	items, err := r.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return payment.SortAndPage(items, filter), nil
}

func (r *paymentRepository) Count(ctx context.Context, filter *types.PaymentFilter) (int, error) {
	items, err := r.scan(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (r *paymentRepository) scan(ctx context.Context, filter *types.PaymentFilter) (out []*payment.Payment, err error) {
	span, ctx := r.startSpan(ctx, "payment", "scan", nil)
	defer func() { finishSpan(span, err) }()

	raw, err := r.scanDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range raw {
		var item paymentItem
		if err := attributevalue.UnmarshalMap(m, &item); err != nil {
			return nil, dbError(err, "Failed to decode stored item", nil)
		}
		p, err := decodeDocument[payment.Payment](item.Data)
		if err != nil {
			return nil, err
		}
		if payment.MatchesFilter(p, filter) {
			out = append(out, p)
		}
	}
	return out, nil
}
