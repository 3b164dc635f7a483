package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/tree"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// RowKey returns the primary key of the row (name, rowID).
func RowKey(name, rowID string) PK {
	return PK{
		"name":   stringAttr(name),
		"row_id": stringAttr(rowID),
	}
}

// ChildRef joins a row's name and id into the relationship range key.
func ChildRef(name, rowID string) string {
	return name + "#" + rowID
}

// Item is a stored row.
type Item struct {
	Name     string `dynamodbav:"name"`
	RowID    string `dynamodbav:"row_id"`
	ParentID string `dynamodbav:"parent_id,omitempty"`

	// Table is the JSON text of the row's table.
	Table string `dynamodbav:"table"`

	// DocID identifies the load that last wrote this row. Rows are content
	// addressed, so a later document holding the same data overwrites it.
	DocID string `dynamodbav:"doc_id,omitempty"`

	// LoadedAt is the ISO 8601 time of that load.
	LoadedAt string `dynamodbav:"loaded_at,omitempty"`

	// TTL is the unix time the row was deleted at, or 0.
	TTL int64 `dynamodbav:"ttl,omitempty"`
}

// Row converts the item back into a destructured row.
func (i *Item) Row() (destructure.Row, error) {
	table, err := tree.Parse([]byte(i.Table))
	if err != nil {
		return destructure.Row{}, fmt.Errorf("row %s/%s: %w", i.Name, i.RowID, err)
	}
	return destructure.Row{
		Name:     i.Name,
		Table:    table,
		RowID:    i.RowID,
		ParentID: i.ParentID,
	}, nil
}

// ChildLink is a parent-to-child record in the relationship table.
type ChildLink struct {
	// ShardPK is the relationship table partition key.
	ShardPK string `dynamodbav:"pk"`

	// Ref is the child's "<name>#<row_id>".
	Ref string `dynamodbav:"child_ref"`

	ParentID  string `dynamodbav:"parent_id"`
	Name      string `dynamodbav:"child_name"`
	RowID     string `dynamodbav:"child_row_id"`
	TableName string `dynamodbav:"child_table"`

	TTL int64 `dynamodbav:"ttl,omitempty"`
}

// Key returns the primary key of the linked child row.
func (c ChildLink) Key() PK {
	return RowKey(c.Name, c.RowID)
}
