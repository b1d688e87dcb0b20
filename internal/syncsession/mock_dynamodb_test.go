package syncsession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is an in-memory table store understanding the handful of
// expressions the session store issues. Items are kept per table, keyed by
// their joined key attributes.
type mockDynamo struct {
	mu     sync.Mutex
	keys   map[string][]string
	tables map[string]map[string]map[string]types.AttributeValue

	pageSize        int
	unprocessedOnce bool
	batchErr        error
	batchCalls      int
	queryCalls      int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		keys: map[string][]string{
			testSessionsTable: {"session_id"},
			testItemsTable:    {"session_id", "external_id"},
		},
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[name]
}

func (m *mockDynamo) pk(table string, item map[string]types.AttributeValue) (string, error) {
	attrs, ok := m.keys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %s", table)
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		v, ok := item[a].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("missing key attribute %s", a)
		}
		parts = append(parts, v.Value)
	}
	return strings.Join(parts, "#"), nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(*params.TableName, params.Item)
	if err != nil {
		return nil, err
	}
	existing := m.table(*params.TableName)[pk]
	if !conditionHolds(params.ConditionExpression, nil, nil, existing) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.table(*params.TableName)[pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item := m.table(*params.TableName)[pk]
	if !conditionHolds(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item) {
		ccf := &types.ConditionalCheckFailedException{}
		if params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld && item != nil {
			ccf.Item = copyItem(item)
		}
		return nil, ccf
	}
	if item == nil {
		item = copyItem(params.Key)
	}

	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, assignment := range strings.Split(expr, ", ") {
		lhs, rhs, ok := strings.Cut(assignment, " = ")
		if !ok {
			return nil, fmt.Errorf("unsupported update expression %q", *params.UpdateExpression)
		}
		item[resolveName(lhs, params.ExpressionAttributeNames)] = params.ExpressionAttributeValues[rhs]
	}
	m.table(*params.TableName)[pk] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	delete(m.table(*params.TableName), pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	attr, placeholder, ok := strings.Cut(*params.KeyConditionExpression, " = ")
	if !ok {
		return nil, errors.New("unsupported key condition")
	}
	want := params.ExpressionAttributeValues[placeholder].(*types.AttributeValueMemberS).Value

	var pks []string
	for pk, item := range m.table(*params.TableName) {
		if v, ok := item[attr].(*types.AttributeValueMemberS); ok && v.Value == want {
			pks = append(pks, pk)
		}
	}
	sort.Strings(pks)

	if params.ExclusiveStartKey != nil {
		startPK, err := m.pk(*params.TableName, params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		i := sort.SearchStrings(pks, startPK)
		if i < len(pks) && pks[i] == startPK {
			i++
		}
		pks = pks[i:]
	}

	out := &dyn.QueryOutput{}
	if m.pageSize > 0 && len(pks) > m.pageSize {
		pks = pks[:m.pageSize]
		last := m.table(*params.TableName)[pks[len(pks)-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{}
		for _, a := range m.keys[*params.TableName] {
			out.LastEvaluatedKey[a] = last[a]
		}
	}
	for _, pk := range pks {
		out.Items = append(out.Items, copyItem(m.table(*params.TableName)[pk]))
	}
	return out, nil
}

func (m *mockDynamo) BatchWriteItem(ctx context.Context, params *dyn.BatchWriteItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := &dyn.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, requests := range params.RequestItems {
		if len(requests) > 25 {
			return nil, fmt.Errorf("too many items in batch: %d", len(requests))
		}
		if m.unprocessedOnce && len(requests) > 1 {
			m.unprocessedOnce = false
			out.UnprocessedItems[table] = requests[len(requests)-1:]
			requests = requests[:len(requests)-1]
		}
		for _, r := range requests {
			pk, err := m.pk(table, r.PutRequest.Item)
			if err != nil {
				return nil, err
			}
			m.table(table)[pk] = copyItem(r.PutRequest.Item)
		}
	}
	return out, nil
}

func (m *mockDynamo) count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table(table))
}

// conditionHolds evaluates "a AND b" conjunctions of attribute_exists,
// attribute_not_exists and equality against item.
func conditionHolds(cond *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	for _, clause := range strings.Split(*cond, " AND ") {
		switch {
		case strings.HasPrefix(clause, "attribute_exists("):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if _, ok := item[attr]; !ok {
				return false
			}
		case strings.HasPrefix(clause, "attribute_not_exists("):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
			if _, ok := item[attr]; ok {
				return false
			}
		default:
			lhs, rhs, ok := strings.Cut(clause, " = ")
			if !ok {
				return false
			}
			got, ok := item[resolveName(lhs, names)].(*types.AttributeValueMemberS)
			want, _ := values[rhs].(*types.AttributeValueMemberS)
			if !ok || want == nil || got.Value != want.Value {
				return false
			}
		}
	}
	return true
}

func resolveName(s string, names map[string]string) string {
	if n, ok := names[s]; ok {
		return n
	}
	return s
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
