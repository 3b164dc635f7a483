package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsDeleted checks if an item carries a TTL that has passed.
func IsDeleted(item map[string]types.AttributeValue) bool {
	return expired(ttlOf(item), time.Now())
}

func ttlOf(item map[string]types.AttributeValue) int64 {
	attr, ok := item["ttl"].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	ttl, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0
	}
	return ttl
}

func expired(ttl int64, now time.Time) bool {
	return ttl != 0 && ttl <= now.Unix()
}

// TTLFilterExpr keeps items with no ttl or a ttl still in the future, so
// rows DynamoDB has not swept yet stay hidden once expired.
// Use this when building custom queries against the row tables.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

// TTLFilterNames binds #ttl for TTLFilterExpr.
func TTLFilterNames() map[string]string {
	return map[string]string{"#ttl": "ttl"}
}

// TTLFilterValues returns expression attribute values for TTL filter at now.
func TTLFilterValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": numberAttr(now.Unix()),
	}
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func stringAttr(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}
