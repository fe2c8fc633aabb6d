package dynamodb

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/sentry"
)

const (
	// maxDecrementAttempts bounds the optimistic retry loop of Decrement
	maxDecrementAttempts = 5

	decrementRef = "decrement"
)

type productItem struct {
	PK       string `dynamodbav:"pk"`
	Kind     string `dynamodbav:"kind"`
	Revision int    `dynamodbav:"revision"`
	Data     string `dynamodbav:"data"`
}

type productRepository struct {
	baseRepository
}

func NewProductRepository(client *ddb.Client, cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) inventory.Repository {
	return &productRepository{baseRepository{
		client: client,
		table:  cfg.DynamoDB.ProductTable,
		logger: logger,
		sentry: sentry,
	}}
}

func (r *productRepository) Create(ctx context.Context, p *inventory.Product) (err error) {
	span, ctx := r.startSpan(ctx, "product", "create", map[string]interface{}{"product_id": p.ID})
	defer func() { finishSpan(span, err) }()

	data, err := encodeDocument(p)
	if err != nil {
		return err
	}
	return r.put(ctx, &productItem{PK: p.ID, Kind: kindDocument, Data: data}, p.ID)
}

func (r *productRepository) Get(ctx context.Context, id string) (p *inventory.Product, err error) {
	span, ctx := r.startSpan(ctx, "product", "get", map[string]interface{}{"product_id": id})
	defer func() { finishSpan(span, err) }()

	p, _, err = r.load(ctx, id)
	return p, err
}

func (r *productRepository) load(ctx context.Context, id string) (*inventory.Product, int, error) {
	var item productItem
	ok, err := r.get(ctx, id, &item)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, inventory.NewNotFoundError(id)
	}
	p, err := decodeDocument[inventory.Product](item.Data)
	if err != nil {
		return nil, 0, err
	}
	return p, item.Revision, nil
}

func (r *productRepository) List(ctx context.Context) (out []*inventory.Product, err error) {
	span, ctx := r.startSpan(ctx, "product", "list", nil)
	defer func() { finishSpan(span, err) }()

	raw, err := r.scanDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range raw {
		var item productItem
		if err := attributevalue.UnmarshalMap(m, &item); err != nil {
			return nil, dbError(err, "Failed to decode stored item", nil)
		}
		p, err := decodeDocument[inventory.Product](item.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Name < out[b].Name
	})
	return out, nil
}

// Decrement is a read-modify-write guarded by the item revision. The key is
// claimed as a ref item in the same transaction as the stock write.
func (r *productRepository) Decrement(ctx context.Context, key, productID string, variantKey *string, qty int) (p *inventory.Product, err error) {
	span, ctx := r.startSpan(ctx, "product", "decrement", map[string]interface{}{
		"product_id": productID,
		"quantity":   qty,
	})
	defer func() { finishSpan(span, err) }()

	claim, err := attributevalue.MarshalMap(refItem{PK: refKey(decrementRef, key), Kind: kindRef, Target: productID})
	if err != nil {
		return nil, encodeError(err)
	}

	for i := 0; i < maxDecrementAttempts; i++ {
		current, revision, err := r.load(ctx, productID)
		if err != nil {
			return nil, err
		}
		if current.Decrement(variantKey, qty) == 0 {
			return current, nil
		}
		current.UpdatedAt = time.Now().UTC()

		data, err := encodeDocument(current)
		if err != nil {
			return nil, err
		}
		av, err := attributevalue.MarshalMap(&productItem{
			PK:       productID,
			Kind:     kindDocument,
			Revision: revision + 1,
			Data:     data,
		})
		if err != nil {
			return nil, encodeError(err)
		}

		_, err = r.client.DB().TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []ddbtypes.TransactWriteItem{
				{Put: &ddbtypes.Put{
					TableName:           aws.String(r.table),
					Item:                claim,
					ConditionExpression: aws.String("attribute_not_exists(pk)"),
				}},
				{Put: &ddbtypes.Put{
					TableName:           aws.String(r.table),
					Item:                av,
					ConditionExpression: aws.String("revision = :revision"),
					ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
						":revision": &ddbtypes.AttributeValueMemberN{Value: itoa(revision)},
					},
				}},
			},
		})
		if err == nil {
			return current, nil
		}

		var canceled *ddbtypes.TransactionCanceledException
		if !errors.As(err, &canceled) || len(canceled.CancellationReasons) < 2 {
			return nil, dbError(err, "Failed to update product stock", map[string]any{"product_id": productID})
		}
		if aws.ToString(canceled.CancellationReasons[0].Code) == conditionFailed {
			r.logger.Debugw("stock decrement already applied", "product_id", productID, "key", key)
			p, _, err = r.load(ctx, productID)
			return p, err
		}
		r.logger.Debugw("product changed concurrently, retrying decrement", "product_id", productID)
	}

	return nil, ierr.NewErrorf("product %s kept changing during stock decrement", productID).
		WithHint("Stock update conflicted repeatedly, please retry").
		Mark(ierr.ErrVersionConflict)
}
