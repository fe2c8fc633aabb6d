package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
)

const promotionCodeRef = "code"

// used_count lives outside the document so redemptions can be a single
// conditional counter update
type promotionItem struct {
	PK         string `dynamodbav:"pk"`
	Kind       string `dynamodbav:"kind"`
	Code       string `dynamodbav:"code"`
	UsedCount  int    `dynamodbav:"used_count"`
	UsageLimit *int   `dynamodbav:"usage_limit,omitempty"`
	Data       string `dynamodbav:"data"`
}

func (i *promotionItem) promotion() (*promotion.Promotion, error) {
	p, err := decodeDocument[promotion.Promotion](i.Data)
	if err != nil {
		return nil, err
	}
	p.UsedCount = i.UsedCount
	return p, nil
}

type promotionRepository struct {
	baseRepository
}

func NewPromotionRepository(client *ddb.Client, cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) promotion.Repository {
	return &promotionRepository{baseRepository{
		client: client,
		table:  cfg.DynamoDB.PromotionTable,
		logger: logger,
		sentry: sentry,
	}}
}

func (r *promotionRepository) Create(ctx context.Context, p *promotion.Promotion) (err error) {
	span, ctx := r.startSpan(ctx, "promotion", "create", map[string]interface{}{"code": p.Code})
	defer func() { finishSpan(span, err) }()

	data, err := encodeDocument(p)
	if err != nil {
		return err
	}
	item := &promotionItem{
		PK:         p.ID,
		Kind:       kindDocument,
		Code:       p.Code,
		UsedCount:  p.UsedCount,
		UsageLimit: p.UsageLimit,
		Data:       data,
	}

	taken, err := r.createWithRef(ctx, item, promotionCodeRef, p.Code, p.ID)
	if err != nil {
		return err
	}
	if taken {
		return promotion.NewCodeTakenError(p.Code)
	}
	return nil
}

func (r *promotionRepository) Get(ctx context.Context, id string) (p *promotion.Promotion, err error) {
	span, ctx := r.startSpan(ctx, "promotion", "get", map[string]interface{}{"promotion_id": id})
	defer func() { finishSpan(span, err) }()

	var item promotionItem
	ok, err := r.get(ctx, id, &item)
	if err != nil {
		return nil, err
	}
	if !ok || item.Kind != kindDocument {
		return nil, promotion.NewNotFoundError(id)
	}
	return item.promotion()
}

func (r *promotionRepository) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	id, ok, err := r.resolveRef(ctx, promotionCodeRef, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, promotion.NewNotFoundError(code)
	}
	return r.Get(ctx, id)
}

func (r *promotionRepository) List(ctx context.Context, filter *types.PromotionFilter) ([]*promotion.Promotion, error) {
	items, err := r.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return promotion.SortAndPage(items, filter), nil
}

func (r *promotionRepository) Count(ctx context.Context, filter *types.PromotionFilter) (int, error) {
	items, err := r.scan(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (r *promotionRepository) scan(ctx context.Context, filter *types.PromotionFilter) (out []*promotion.Promotion, err error) {
	span, ctx := r.startSpan(ctx, "promotion", "scan", nil)
	defer func() { finishSpan(span, err) }()

	raw, err := r.scanDocuments(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, m := range raw {
		var item promotionItem
		if err := attributevalue.UnmarshalMap(m, &item); err != nil {
			return nil, dbError(err, "Failed to decode stored item", nil)
		}
		p, err := item.promotion()
		if err != nil {
			return nil, err
		}
		if promotion.MatchesFilter(p, filter, now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *promotionRepository) IncrementUsage(ctx context.Context, id string) (err error) {
	span, ctx := r.startSpan(ctx, "promotion", "increment_usage", map[string]interface{}{"promotion_id": id})
	defer func() { finishSpan(span, err) }()

	_, err = r.client.DB().UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 key(id),
		UpdateExpression:    aws.String("SET used_count = used_count + :one"),
		ConditionExpression: aws.String("attribute_exists(pk) AND #kind = :doc AND (attribute_not_exists(usage_limit) OR used_count < usage_limit)"),
		ExpressionAttributeNames: map[string]string{
			"#kind": "kind",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":one": &ddbtypes.AttributeValueMemberN{Value: "1"},
			":doc": &ddbtypes.AttributeValueMemberS{Value: kindDocument},
		},
	})
	if isConditionFailed(err) {
		p, getErr := r.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		return promotion.NewUsageExhaustedError(p.Code)
	}
	if err != nil {
		return dbError(err, "Failed to redeem promotion", map[string]any{"promotion_id": id})
	}
	return nil
}
