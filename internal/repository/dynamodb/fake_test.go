package dynamodb

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
)

type item = map[string]ddbtypes.AttributeValue

// fakeDynamo understands exactly the condition expressions the stores send
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]item
}

var _ ddb.API = (*fakeDynamo)(nil)

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: map[string]map[string]item{}}
}

func (f *fakeDynamo) table(name string) map[string]item {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]item{}
		f.tables[name] = t
	}
	return t
}

func pkOf(it item) string {
	return it["pk"].(*ddbtypes.AttributeValueMemberS).Value
}

func str(it item, attr string) (string, bool) {
	v, ok := it[attr].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

func num(it item, attr string) (int, bool) {
	v, ok := it[attr].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, _ := strconv.Atoi(v.Value)
	return n, true
}

func (f *fakeDynamo) check(existing item, cond *string, values item) bool {
	if cond == nil {
		return true
	}
	switch *cond {
	case "attribute_not_exists(pk)":
		return existing == nil
	case "#version = :version AND #status = :status":
		if existing == nil {
			return false
		}
		v, _ := num(existing, "version")
		want, _ := num(values, ":version")
		s, _ := str(existing, "invoice_status")
		wantStatus, _ := str(values, ":status")
		return v == want && s == wantStatus
	case "#payment_status = :from":
		if existing == nil {
			return false
		}
		s, _ := str(existing, "payment_status")
		want, _ := str(values, ":from")
		return s == want
	case "revision = :revision":
		if existing == nil {
			return false
		}
		v, _ := num(existing, "revision")
		want, _ := num(values, ":revision")
		return v == want
	case "attribute_exists(pk) AND #kind = :doc AND (attribute_not_exists(usage_limit) OR used_count < usage_limit)":
		if existing == nil {
			return false
		}
		if kind, _ := str(existing, "kind"); kind != kindDocument {
			return false
		}
		limit, limited := num(existing, "usage_limit")
		used, _ := num(existing, "used_count")
		return !limited || used < limit
	}
	panic("unexpected condition: " + *cond)
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.table(*in.TableName)[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	pk := pkOf(in.Item)
	if !f.check(t[pk], in.ConditionExpression, in.ExpressionAttributeValues) {
		return nil, &ddbtypes.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	t[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	pk := pkOf(in.Key)
	existing := t[pk]
	if !f.check(existing, in.ConditionExpression, in.ExpressionAttributeValues) {
		return nil, &ddbtypes.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	if aws.ToString(in.UpdateExpression) != "SET used_count = used_count + :one" {
		panic("unexpected update: " + aws.ToString(in.UpdateExpression))
	}
	used, _ := num(existing, "used_count")
	next := item{}
	for k, v := range existing {
		next[k] = v
	}
	next["used_count"] = &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(used + 1)}
	t[pk] = next
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reasons := make([]ddbtypes.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		t := f.table(*ti.Put.TableName)
		if !f.check(t[pkOf(ti.Put.Item)], ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues) {
			reasons[i].Code = aws.String(conditionFailed)
			failed = true
		}
	}
	if failed {
		return nil, &ddbtypes.TransactionCanceledException{
			Message:             aws.String("transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range in.TransactItems {
		f.table(*ti.Put.TableName)[pkOf(ti.Put.Item)] = ti.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// Scan returns one item per page so pagination is exercised
func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want, _ := str(in.ExpressionAttributeValues, ":kind")
	var after string
	if in.ExclusiveStartKey != nil {
		after = pkOf(in.ExclusiveStartKey)
	}

	var next string
	for pk, it := range f.table(*in.TableName) {
		if kind, _ := str(it, "kind"); kind != want {
			continue
		}
		if pk > after && (next == "" || pk < next) {
			next = pk
		}
	}
	if next == "" {
		return &dynamodb.ScanOutput{}, nil
	}
	return &dynamodb.ScanOutput{
		Items:            []item{f.table(*in.TableName)[next]},
		LastEvaluatedKey: key(next),
	}, nil
}
