//go:build e2e

// Package e2e drives the store and stream handlers against live DynamoDB.
// The tests need AWS credentials and are built only with the e2e tag.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/hasher"
	"github.com/jacentio/unnest/store"
	"github.com/jacentio/unnest/stream"
)

// Every run gets its own tables, suffixed with testID.
const tablePrefix = "unnest-e2e-test"

var (
	testID            string
	rowTable          string
	orderTable        string
	relationshipTable string

	ddbClient *dynamodb.Client
	testStore *store.Store
	engine    *destructure.Engine
)

// Setup and teardown.

func TestMain(m *testing.M) {
	// Short id keeps table names readable in the console.
	testID = uuid.New().String()[:8]
	rowTable = fmt.Sprintf("%s-%s-rows", tablePrefix, testID)
	orderTable = fmt.Sprintf("%s-%s-orders", tablePrefix, testID)
	relationshipTable = fmt.Sprintf("%s-%s-relationships", tablePrefix, testID)

	fmt.Printf("e2e run %s\n", testID)

	// Region and credentials come from the environment or shared config;
	// AWS_PROFILE selects a profile.
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fmt.Printf("aws config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg)

	if err := createTables(ctx); err != nil {
		fmt.Printf("setup: %v\n", err)
		os.Exit(1)
	}

	registry := store.NewRegistry()
	registry.Register(store.Route{Name: "orders", TableName: orderTable})
	testStore = store.NewWithRegistry(ddbClient, store.Config{
		RowTable:          rowTable,
		RelationshipTable: relationshipTable,
		NumShards:         4,
	}, registry)
	engine = destructure.New(hasher.New())

	code := m.Run()

	if err := deleteTables(ctx); err != nil {
		fmt.Printf("teardown: %v\n", err)
	}

	os.Exit(code)
}

func createTables(ctx context.Context) error {
	fmt.Println("creating tables")

	for _, tableName := range []string{rowTable, orderTable} {
		_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("name"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("row_id"), KeyType: types.KeyTypeRange},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("name"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("row_id"), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("create table %s: %w", tableName, err)
		}
	}

	// Links are keyed by shard pk and child_ref, and indexed by the child.
	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(relationshipTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("child_ref"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("child_ref"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("child_row_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(store.DefaultConfig().ChildIndex),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("child_row_id"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("child_ref"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create relationship table: %w", err)
	}

	for _, tableName := range []string{rowTable, orderTable, relationshipTable} {
		waiter := dynamodb.NewTableExistsWaiter(ddbClient)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", tableName, err)
		}
	}

	fmt.Println("tables active")
	return nil
}

func deleteTables(ctx context.Context) error {
	fmt.Println("deleting tables")

	for _, tableName := range []string{rowTable, orderTable, relationshipTable} {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			fmt.Printf("delete %s: %v\n", tableName, err)
		}
	}

	fmt.Println("tables deleted")
	return nil
}

// loadDoc destructures and stores a document. Rows are seeded with a fresh id
// so no two tests share a row.
func loadDoc(t *testing.T, ctx context.Context) []destructure.Row {
	t.Helper()
	doc := `{
		"customer": "c-1",
		"orders": [
			{"sku": "x", "lines": [{"qty": 1}, {"qty": 2}]},
			{"sku": "y"}
		],
		"tags": ["new", "vip"]
	}`

	seeded := destructure.New(hasher.New(), destructure.WithUniqueID(uuid.New().String()))
	rows, err := seeded.DestructureJSON([]byte(doc))
	if err != nil {
		t.Fatalf("destructure: %v", err)
	}
	if err := testStore.PutRows(ctx, uuid.New().String(), rows); err != nil {
		t.Fatalf("PutRows failed: %v", err)
	}
	return rows
}

func root(rows []destructure.Row) destructure.Row {
	return rows[len(rows)-1]
}

// --- Tests ---

func TestPutRows_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rows := loadDoc(t, ctx)

	for _, want := range rows {
		got, err := testStore.GetRow(ctx, want.Name, want.RowID)
		if err != nil {
			t.Fatalf("GetRow(%s, %s) failed: %v", want.Name, want.RowID, err)
		}
		if got.ParentID != want.ParentID {
			t.Errorf("expected parent %q, got %q", want.ParentID, got.ParentID)
		}
		if !got.Table.Equal(want.Table) {
			t.Errorf("expected table %s, got %s", want.Table, got.Table)
		}
	}
}

func TestPutRows_RoutesOrders(t *testing.T) {
	ctx := context.Background()
	rows := loadDoc(t, ctx)

	for _, r := range rows {
		if r.Name != "orders" {
			continue
		}
		out, err := ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(orderTable),
			Key:       store.RowKey(r.Name, r.RowID),
		})
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if out.Item == nil {
			t.Errorf("expected order row %s in %s", r.RowID, orderTable)
		}
	}
}

func TestPutRows_Idempotent(t *testing.T) {
	ctx := context.Background()
	rows := loadDoc(t, ctx)

	if err := testStore.PutRows(ctx, "again", rows); err != nil {
		t.Fatalf("second PutRows failed: %v", err)
	}
	item, err := testStore.Get(ctx, root(rows).Name, root(rows).RowID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.DocID != "again" {
		t.Errorf("expected doc id 'again', got %q", item.DocID)
	}
}

func TestQueryChildren(t *testing.T) {
	ctx := context.Background()
	rows := loadDoc(t, ctx)

	links, err := testStore.QueryChildren(ctx, root(rows).RowID)
	if err != nil {
		t.Fatalf("QueryChildren failed: %v", err)
	}

	// two orders and the tags list sit directly under the root
	if len(links) != 3 {
		t.Errorf("expected 3 children, got %d", len(links))
	}
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()

	_, err := testStore.Get(ctx, "orders", uuid.New().String())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_OrphanProtect(t *testing.T) {
	ctx := context.Background()
	rows := loadDoc(t, ctx)
	r := root(rows)

	err := testStore.Delete(ctx, r.Name, r.RowID, store.DeleteOptions{OrphanProtect: true})
	if !errors.Is(err, store.ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}

	if _, err := testStore.Get(ctx, r.Name, r.RowID); err != nil {
		t.Errorf("expected row to survive, got %v", err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	rows := loadDoc(t, ctx)
	leaf := rows[0]

	for i := 0; i < 2; i++ {
		if err := testStore.Delete(ctx, leaf.Name, leaf.RowID, store.DeleteOptions{}); err != nil {
			t.Fatalf("Delete #%d failed: %v", i+1, err)
		}
	}
	if _, err := testStore.Get(ctx, leaf.Name, leaf.RowID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestCascade drives the stream handler with the MODIFY records DynamoDB
// would emit and checks the whole tree ends up deleted.
func TestCascade(t *testing.T) {
	ctx := context.Background()
	rows := loadDoc(t, ctx)
	r := root(rows)
	handler := stream.NewHandler(testStore, engine, nil)

	if err := testStore.Delete(ctx, r.Name, r.RowID, store.DeleteOptions{Cascade: true}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ttl := time.Now().Unix()
	// Children before parents in rows, so walk backwards to cascade top-down.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		newImage := map[string]events.DynamoDBAttributeValue{
			"name":   events.NewStringAttribute(row.Name),
			"row_id": events.NewStringAttribute(row.RowID),
			"ttl":    events.NewNumberAttribute(strconv.FormatInt(ttl, 10)),
		}
		if row.ParentID != "" {
			newImage["parent_id"] = events.NewStringAttribute(row.ParentID)
		}
		err := handler.HandleCascadeDelete(ctx, events.DynamoDBEvent{
			Records: []events.DynamoDBEventRecord{{
				EventName: "MODIFY",
				Change: events.DynamoDBStreamRecord{
					Keys: map[string]events.DynamoDBAttributeValue{
						"name":   events.NewStringAttribute(row.Name),
						"row_id": events.NewStringAttribute(row.RowID),
					},
					NewImage: newImage,
				},
			}},
		})
		if err != nil {
			t.Fatalf("HandleCascadeDelete failed: %v", err)
		}
	}

	for _, row := range rows {
		if _, err := testStore.Get(ctx, row.Name, row.RowID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected %s/%s to be deleted, got %v", row.Name, row.RowID, err)
		}
	}

	has, err := testStore.HasActiveChildren(ctx, r.RowID)
	if err != nil {
		t.Fatalf("HasActiveChildren failed: %v", err)
	}
	if has {
		t.Error("expected no active children after cascade")
	}
}

func TestHandleDocuments(t *testing.T) {
	ctx := context.Background()
	handler := stream.NewHandler(testStore, engine, nil)
	doc := fmt.Sprintf(`{"id": %q, "items": [{"n": 1}]}`, uuid.New().String())

	resp, err := handler.HandleDocuments(ctx, events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "m1", Body: doc}},
	})
	if err != nil {
		t.Fatalf("HandleDocuments failed: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %v", resp.BatchItemFailures)
	}

	rows, err := engine.DestructureJSON([]byte(doc))
	if err != nil {
		t.Fatalf("destructure: %v", err)
	}
	for _, row := range rows {
		if _, err := testStore.Get(ctx, row.Name, row.RowID); err != nil {
			t.Errorf("expected %s/%s to be stored, got %v", row.Name, row.RowID, err)
		}
	}
}
