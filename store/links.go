package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/unnest/destructure"
)

// Row ids are content hashes that leave the name out, and the same subtree
// may appear under several parents or in several documents. The lookups
// below go through Config.ChildIndex to see who else still refers to a row
// before the cascade expires it.

// QueryParents returns every link pointing at the row (name, rowID),
// including deleted ones.
func (s *Store) QueryParents(ctx context.Context, name, rowID string) ([]ChildLink, error) {
	var links []ChildLink

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.RelationshipTable),
		IndexName:              aws.String(s.config.ChildIndex),
		KeyConditionExpression: aws.String("child_row_id = :id AND child_ref = :ref"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":  stringAttr(rowID),
			":ref": stringAttr(ChildRef(name, rowID)),
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var pageLinks []ChildLink
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageLinks); err != nil {
			return nil, fmt.Errorf("unmarshal relationships: %w", err)
		}
		links = append(links, pageLinks...)
	}
	return links, nil
}

// HasOtherLiveParent reports whether a live link from any parent other than
// parentID points at the row (name, rowID).
func (s *Store) HasOtherLiveParent(ctx context.Context, name, rowID, parentID string) (bool, error) {
	values := TTLFilterValues(time.Now())
	values[":id"] = stringAttr(rowID)
	values[":ref"] = stringAttr(ChildRef(name, rowID))
	values[":parent"] = stringAttr(parentID)

	return s.anyItem(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.RelationshipTable),
		IndexName:                 aws.String(s.config.ChildIndex),
		KeyConditionExpression:    aws.String("child_row_id = :id AND child_ref = :ref"),
		FilterExpression:          aws.String(fmt.Sprintf("parent_id <> :parent AND (%s)", TTLFilterExpr())),
		ExpressionAttributeNames:  TTLFilterNames(),
		ExpressionAttributeValues: values,
	})
}

// HasLiveAlias reports whether a live row under another name carries rowID.
// Such a row owns the same children, so they must outlive name's row.
func (s *Store) HasLiveAlias(ctx context.Context, name, rowID string) (bool, error) {
	// Roots have no links; look them up directly.
	if name != destructure.Root {
		_, err := s.Get(ctx, destructure.Root, rowID)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return false, err
		}
	}

	values := TTLFilterValues(time.Now())
	values[":id"] = stringAttr(rowID)
	values[":child_name"] = stringAttr(name)

	return s.anyItem(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.RelationshipTable),
		IndexName:                 aws.String(s.config.ChildIndex),
		KeyConditionExpression:    aws.String("child_row_id = :id"),
		FilterExpression:          aws.String(fmt.Sprintf("child_name <> :child_name AND (%s)", TTLFilterExpr())),
		ExpressionAttributeNames:  TTLFilterNames(),
		ExpressionAttributeValues: values,
	})
}

// anyItem pages through a filtered query until one item passes the filter.
// Limit applies before the filter, so an empty page is not the end.
func (s *Store) anyItem(ctx context.Context, input *dynamodb.QueryInput) (bool, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, err
		}
		if len(page.Items) > 0 {
			return true, nil
		}
	}
	return false, nil
}
