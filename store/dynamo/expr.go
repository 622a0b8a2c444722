package dynamo

import (
	"maps"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// insertCondition lets a put succeed on a free key or over a soft-deleted item.
	insertCondition = "attribute_not_exists(#oid) OR #ttl <= :now"

	// liveVersionCondition guards updates and deletes with the expected entity version.
	liveVersionCondition = "#entity_version = :expected AND (attribute_not_exists(#ttl) OR #ttl > :now)"
)

// IsDeleted reports whether an item carries a TTL that has passed at now.
func IsDeleted(item map[string]types.AttributeValue, now time.Time) bool {
	ttlAttr, exists := item[attrTTL]
	if !exists {
		return false
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// TTLFilterExpr returns the filter expression that excludes soft-deleted items.
// Use with TTLFilterNames and TTLFilterValues.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

// TTLFilterNames returns expression attribute names for the TTL filter.
func TTLFilterNames() map[string]string {
	return map[string]string{"#ttl": attrTTL}
}

// TTLFilterValues returns expression attribute values for the TTL filter at now.
func TTLFilterValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{":now": unixValue(now)}
}

// ParentExistsCondition returns the condition expression of a parent check: the parent
// exists and is not soft-deleted.
func ParentExistsCondition() string {
	return "attribute_exists(#oid) AND (attribute_not_exists(#ttl) OR #ttl > :now)"
}

func unixValue(t time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}

func numberValue(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func stringValue(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(ms ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range ms {
		maps.Copy(result, m)
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(ms ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range ms {
		maps.Copy(result, m)
	}
	return result
}
