package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	sentrygo "github.com/getsentry/sentry-go"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/sentry"
)

const (
	spanOp = "db.dynamodb"

	kindDocument = "doc"
	kindRef      = "ref"

	conditionFailed = "ConditionalCheckFailed"
)

// Every table is keyed by a string pk. Documents live under "<id>"; unique
// secondary keys (invoice number, idempotency key, promotion code) are
// claimed by ref items under "<prefix>#<value>" that point back at the id.
type refItem struct {
	PK     string `dynamodbav:"pk"`
	Kind   string `dynamodbav:"kind"`
	Target string `dynamodbav:"target"`
}

type baseRepository struct {
	client *ddb.Client
	table  string
	logger *logger.Logger
	sentry *sentry.Service
}

func (r *baseRepository) startSpan(ctx context.Context, entity, operation string, params map[string]interface{}) (*sentrygo.Span, context.Context) {
	if params == nil {
		params = map[string]interface{}{}
	}
	params["table"] = r.table
	return r.sentry.StartDBSpan(ctx, spanOp, entity+"."+operation, params)
}

func finishSpan(span *sentrygo.Span, err error) {
	if span == nil {
		return
	}
	if err != nil && !ierr.IsNotFound(err) {
		span.Status = sentrygo.SpanStatusInternalError
	} else {
		span.Status = sentrygo.SpanStatusOK
	}
	sentry.FinishSpan(span)
}

func key(pk string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"pk": &ddbtypes.AttributeValueMemberS{Value: pk},
	}
}

func refKey(prefix, value string) string {
	return prefix + "#" + value
}

// get loads the item under pk into out and reports whether it exists
func (r *baseRepository) get(ctx context.Context, pk string, out interface{}) (bool, error) {
	res, err := r.client.DB().GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key(pk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, dbError(err, "Failed to read item", map[string]any{"pk": pk})
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to decode stored item").
			Mark(ierr.ErrDatabase)
	}
	return true, nil
}

// resolveRef follows a ref item to the document id it claims
func (r *baseRepository) resolveRef(ctx context.Context, prefix, value string) (string, bool, error) {
	var ref refItem
	ok, err := r.get(ctx, refKey(prefix, value), &ref)
	if err != nil || !ok {
		return "", false, err
	}
	return ref.Target, true, nil
}

// createWithRef writes the document and its unique ref in one transaction.
// It returns refTaken when another document already owns the ref.
func (r *baseRepository) createWithRef(ctx context.Context, doc interface{}, prefix, value, id string) (refTaken bool, err error) {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return false, encodeError(err)
	}
	ref, err := attributevalue.MarshalMap(refItem{PK: refKey(prefix, value), Kind: kindRef, Target: id})
	if err != nil {
		return false, encodeError(err)
	}

	notExists := aws.String("attribute_not_exists(pk)")
	_, err = r.client.DB().TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{Put: &ddbtypes.Put{TableName: aws.String(r.table), Item: ref, ConditionExpression: notExists}},
			{Put: &ddbtypes.Put{TableName: aws.String(r.table), Item: item, ConditionExpression: notExists}},
		},
	})
	if err == nil {
		return false, nil
	}

	var canceled *ddbtypes.TransactionCanceledException
	if errors.As(err, &canceled) && len(canceled.CancellationReasons) > 0 &&
		aws.ToString(canceled.CancellationReasons[0].Code) == conditionFailed {
		return true, nil
	}
	return false, dbError(err, "Failed to create item", map[string]any{"id": id})
}

// put writes a document with no uniqueness beyond its pk
func (r *baseRepository) put(ctx context.Context, doc interface{}, id string) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return encodeError(err)
	}
	_, err = r.client.DB().PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if isConditionFailed(err) {
		return ierr.NewErrorf("item %s already exists", id).
			Mark(ierr.ErrAlreadyExists)
	}
	if err != nil {
		return dbError(err, "Failed to create item", map[string]any{"id": id})
	}
	return nil
}

// scanDocuments reads every document item of the table
func (r *baseRepository) scanDocuments(ctx context.Context) ([]map[string]ddbtypes.AttributeValue, error) {
	var (
		items []map[string]ddbtypes.AttributeValue
		start map[string]ddbtypes.AttributeValue
	)
	for {
		res, err := r.client.DB().Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(r.table),
			FilterExpression:         aws.String("#kind = :kind"),
			ExpressionAttributeNames: map[string]string{"#kind": "kind"},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":kind": &ddbtypes.AttributeValueMemberS{Value: kindDocument},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, dbError(err, "Failed to scan table", nil)
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = res.LastEvaluatedKey
	}
}

func isConditionFailed(err error) bool {
	var ccf *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// Documents are stored as a JSON attribute; decimal amounts do not map onto
// DynamoDB numbers without losing their scale.
func encodeDocument(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", encodeError(err)
	}
	return string(data), nil
}

func decodeDocument[T any](data string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to decode stored document").
			Mark(ierr.ErrDatabase)
	}
	return &v, nil
}

func encodeError(err error) error {
	return ierr.WithError(err).
		WithHint("Failed to encode item").
		Mark(ierr.ErrSystem)
}

func dbError(err error, hint string, details map[string]any) error {
	return ierr.WithError(err).
		WithHint(hint).
		WithReportableDetails(details).
		Mark(ierr.ErrDatabase)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
