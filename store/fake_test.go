package store_test

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for the handful of DynamoDB calls the
// store makes. Rows are keyed by (name, row_id) and relationship records by
// (pk, child_ref).
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue

	// pageSize limits Query pages when > 0.
	pageSize int

	// unprocessed leaves the last request of each batch unprocessed for this
	// many BatchWriteItem calls; -1 means forever.
	unprocessed int

	batchCalls []int
	queryCalls int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

func attrS(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func keyOf(item map[string]types.AttributeValue) string {
	if _, ok := item["row_id"]; ok {
		return attrS(item, "name") + "\x00" + attrS(item, "row_id")
	}
	return attrS(item, "pk") + "\x00" + attrS(item, "child_ref")
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

func (f *fakeDynamo) items(table string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, item := range f.tables[table] {
		out = append(out, item)
	}
	return out
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.table(aws.ToString(params.TableName))[keyOf(params.Key)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(aws.ToString(params.TableName))
	key := keyOf(params.Key)
	item, exists := t[key]

	cond := aws.ToString(params.ConditionExpression)
	failed := false
	if strings.Contains(cond, "attribute_exists(") && !exists {
		failed = true
	}
	if strings.Contains(cond, "attribute_not_exists(#ttl)") && exists {
		if _, ok := item["ttl"]; ok {
			failed = true
		}
	}
	if failed {
		err := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		if exists && params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld {
			err.Item = item
		}
		return nil, err
	}

	if !exists {
		item = make(map[string]types.AttributeValue)
		for k, v := range params.Key {
			item[k] = v
		}
		t[key] = item
	}
	item["ttl"] = params.ExpressionAttributeValues[":ttl"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	values := params.ExpressionAttributeValues

	// Row tables are queried by name, relationship tables by pk and the
	// child index by child_row_id (optionally narrowed to one child_ref).
	hashKey, rangeKey, value := "pk", "child_ref", ":pk"
	switch {
	case params.IndexName != nil:
		hashKey, value = "child_row_id", ":id"
	case values[":name"] != nil:
		hashKey, rangeKey, value = "name", "row_id", ":name"
	}
	want := attrS(values, value)
	ref, byRef := values[":ref"].(*types.AttributeValueMemberS)

	// Index entries can share a range key, so the table key breaks ties.
	sortKey := func(item map[string]types.AttributeValue) string {
		if params.IndexName != nil {
			return attrS(item, rangeKey) + "\x00" + attrS(item, "pk")
		}
		return attrS(item, rangeKey)
	}

	var matched []map[string]types.AttributeValue
	for _, item := range f.table(aws.ToString(params.TableName)) {
		if attrS(item, hashKey) != want {
			continue
		}
		if byRef && attrS(item, "child_ref") != ref.Value {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool {
		return sortKey(matched[i]) < sortKey(matched[j])
	})

	if params.ExclusiveStartKey != nil {
		start := sortKey(params.ExclusiveStartKey)
		for len(matched) > 0 && sortKey(matched[0]) <= start {
			matched = matched[1:]
		}
	}

	out := &dynamodb.QueryOutput{}
	if f.pageSize > 0 && len(matched) > f.pageSize {
		matched = matched[:f.pageSize]
		last := matched[len(matched)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			hashKey:  last[hashKey],
			rangeKey: last[rangeKey],
			"pk":     last["pk"],
		}
		if last["pk"] == nil {
			delete(out.LastEvaluatedKey, "pk")
		}
	}

	if params.FilterExpression != nil {
		now, _ := values[":now"].(*types.AttributeValueMemberN)
		doc, filterDoc := values[":doc"].(*types.AttributeValueMemberS)
		parent, filterParent := values[":parent"].(*types.AttributeValueMemberS)
		name, filterName := values[":child_name"].(*types.AttributeValueMemberS)
		var live []map[string]types.AttributeValue
		for _, item := range matched {
			ttl, ok := item["ttl"].(*types.AttributeValueMemberN)
			if ok && (now == nil || !numLess(now.Value, ttl.Value)) {
				continue
			}
			if filterDoc && attrS(item, "doc_id") != doc.Value {
				continue
			}
			if filterParent && attrS(item, "parent_id") == parent.Value {
				continue
			}
			if filterName && attrS(item, "child_name") == name.Value {
				continue
			}
			live = append(live, item)
		}
		matched = live
	}

	out.Items = matched
	out.Count = int32(len(matched))
	return out, nil
}

// numLess compares two non-negative integer strings.
func numLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	f.batchCalls = append(f.batchCalls, total)

	out := &dynamodb.BatchWriteItemOutput{}
	for table, reqs := range params.RequestItems {
		if f.unprocessed != 0 && len(reqs) > 0 {
			if out.UnprocessedItems == nil {
				out.UnprocessedItems = make(map[string][]types.WriteRequest)
			}
			out.UnprocessedItems[table] = reqs[len(reqs)-1:]
			reqs = reqs[:len(reqs)-1]
		}
		t := f.table(table)
		for _, req := range reqs {
			if req.PutRequest != nil {
				t[keyOf(req.PutRequest.Item)] = req.PutRequest.Item
			}
		}
	}
	if f.unprocessed > 0 {
		f.unprocessed--
	}
	return out, nil
}
