package dynamo_test

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/persist/store/dynamo"
)

// fakeClient is an in-memory stand-in for DynamoDB. It understands the condition and
// update expressions the store issues, nothing more.
type fakeClient struct {
	mu     sync.Mutex
	now    time.Time
	tables map[string]map[string]map[string]types.AttributeValue

	calls        []string
	transactions []*dynamodb.TransactWriteItemsInput
	created      []string
	ttlEnabled   []string

	// failNext makes the next call of the named operation fail with the error.
	failNext map[string]error
}

func newFakeClient(now time.Time) *fakeClient {
	return &fakeClient{
		now:      now,
		tables:   make(map[string]map[string]map[string]types.AttributeValue),
		failNext: make(map[string]error),
	}
}

var _ dynamo.Client = (*fakeClient)(nil)

func (f *fakeClient) record(op string) error {
	f.calls = append(f.calls, op)
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *fakeClient) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

func keyString(key map[string]types.AttributeValue) string {
	names := make([]string, 0, len(key))
	for k := range key {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		b.WriteString(k + "=" + attrString(key[k]) + ";")
	}
	return b.String()
}

func itemKey(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if _, ok := item["pk"]; ok {
		return map[string]types.AttributeValue{"pk": item["pk"], "child_ref": item["child_ref"]}
	}
	return map[string]types.AttributeValue{"oid": item["oid"], "vid": item["vid"]}
}

func attrString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func attrInt(av types.AttributeValue) int64 {
	n, _ := strconv.ParseInt(attrString(av), 10, 64)
	return n
}

// check evaluates the condition expressions the store uses against the current item.
func (f *fakeClient) check(cond *string, current map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	live := current != nil && !dynamo.IsDeleted(current, f.now)
	switch c := *cond; {
	case strings.Contains(c, "attribute_not_exists(#oid)"):
		return !live
	case strings.Contains(c, ":expected"):
		return live && attrInt(current["entity_version"]) == attrInt(values[":expected"])
	case strings.Contains(c, "attribute_exists(#oid)"):
		return live
	case c == "attribute_not_exists(#ttl)":
		_, has := current["ttl"]
		return current != nil && !has
	}
	return true
}

// apply evaluates "SET a = :v, b = b + :one REMOVE c" style update expressions.
func apply(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) {
	name := func(s string) string {
		if n, ok := names[s]; ok {
			return n
		}
		return s
	}
	setPart, removePart, _ := strings.Cut(strings.TrimPrefix(expr, "SET "), " REMOVE ")
	for _, clause := range strings.Split(setPart, ", ") {
		lhs, rhs, _ := strings.Cut(clause, " = ")
		if base, inc, ok := strings.Cut(rhs, " + "); ok {
			sum := attrInt(item[name(base)]) + attrInt(values[inc])
			item[name(lhs)] = &types.AttributeValueMemberN{Value: strconv.FormatInt(sum, 10)}
			continue
		}
		item[name(lhs)] = values[rhs]
	}
	if removePart != "" {
		for _, n := range strings.Split(removePart, ", ") {
			delete(item, name(n))
		}
	}
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	c := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		c[k] = v
	}
	return c
}

func (f *fakeClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetItem"); err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: clone(f.table(*in.TableName)[keyString(in.Key)])}, nil
}

func (f *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PutItem"); err != nil {
		return nil, err
	}
	t := f.table(*in.TableName)
	k := keyString(itemKey(in.Item))
	if !f.check(in.ConditionExpression, t[k], in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	t[k] = clone(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateItem"); err != nil {
		return nil, err
	}
	t := f.table(*in.TableName)
	k := keyString(in.Key)
	current := t[k]
	if !f.check(in.ConditionExpression, current, in.ExpressionAttributeValues) {
		e := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		if in.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld {
			e.Item = clone(current)
		}
		return nil, e
	}
	next := clone(current)
	if next == nil {
		next = clone(in.Key)
	}
	apply(next, *in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	t[k] = next
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions = append(f.transactions, in)
	if err := f.record("TransactWriteItems"); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		var ok bool
		var current map[string]types.AttributeValue
		var ret types.ReturnValuesOnConditionCheckFailure
		switch {
		case it.ConditionCheck != nil:
			current = f.table(*it.ConditionCheck.TableName)[keyString(it.ConditionCheck.Key)]
			ok = f.check(it.ConditionCheck.ConditionExpression, current, it.ConditionCheck.ExpressionAttributeValues)
		case it.Put != nil:
			current = f.table(*it.Put.TableName)[keyString(itemKey(it.Put.Item))]
			ok = f.check(it.Put.ConditionExpression, current, it.Put.ExpressionAttributeValues)
		case it.Update != nil:
			current = f.table(*it.Update.TableName)[keyString(it.Update.Key)]
			ok = f.check(it.Update.ConditionExpression, current, it.Update.ExpressionAttributeValues)
			ret = it.Update.ReturnValuesOnConditionCheckFailure
		case it.Delete != nil:
			ok = true
		}
		if !ok {
			failed = true
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			if ret == types.ReturnValuesOnConditionCheckFailureAllOld {
				reasons[i].Item = clone(current)
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			f.table(*it.Put.TableName)[keyString(itemKey(it.Put.Item))] = clone(it.Put.Item)
		case it.Update != nil:
			t := f.table(*it.Update.TableName)
			k := keyString(it.Update.Key)
			next := clone(t[k])
			apply(next, *it.Update.UpdateExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues)
			t[k] = next
		case it.Delete != nil:
			delete(f.table(*it.Delete.TableName), keyString(it.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// matches evaluates a single "#name = :value" key condition.
func matches(item map[string]types.AttributeValue, cond string, names map[string]string, values map[string]types.AttributeValue) bool {
	lhs, rhs, ok := strings.Cut(cond, " = ")
	if !ok {
		return false
	}
	return attrString(item[names[lhs]]) == attrString(values[rhs])
}

func (f *fakeClient) live(table string, keep func(map[string]types.AttributeValue) bool) []map[string]types.AttributeValue {
	var keys []string
	for k := range f.table(table) {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var out []map[string]types.AttributeValue
	for _, k := range keys {
		item := f.table(table)[k]
		if dynamo.IsDeleted(item, f.now) || !keep(item) {
			continue
		}
		out = append(out, clone(item))
	}
	return out
}

func (f *fakeClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Query"); err != nil {
		return nil, err
	}
	items := f.live(*in.TableName, func(item map[string]types.AttributeValue) bool {
		return matches(item, *in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	})
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *fakeClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Scan"); err != nil {
		return nil, err
	}
	items := f.live(*in.TableName, func(map[string]types.AttributeValue) bool { return true })
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *fakeClient) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateTable"); err != nil {
		return nil, err
	}
	if slices.Contains(f.created, *in.TableName) {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists")}
	}
	f.created = append(f.created, *in.TableName)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DescribeTable"); err != nil {
		return nil, err
	}
	if !slices.Contains(f.created, *in.TableName) {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeClient) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateTimeToLive"); err != nil {
		return nil, err
	}
	f.ttlEnabled = append(f.ttlEnabled, *in.TableName)
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

// count returns how many times op was called.
func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

var errThrottled = errors.New("ProvisionedThroughputExceededException: slow down")
