package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/internal/shard"
)

// batchSize is the BatchWriteItem request limit.
const batchSize = 25

// API is the subset of the DynamoDB client used by Store. *dynamodb.Client
// satisfies it.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Store writes and reads destructured rows.
type Store struct {
	client   API
	config   Config
	registry *Registry
}

// New returns a Store that writes every row to config.RowTable.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// NewWithRegistry creates a new Store that routes rows by name.
func NewWithRegistry(client API, config Config, registry *Registry) *Store {
	s := New(client, config)
	s.registry = registry
	return s
}

// SetRegistry sets the routing registry.
func (s *Store) SetRegistry(registry *Registry) {
	s.registry = registry
}

// Registry returns the routing registry, or nil if not set.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// TableFor returns the table holding rows named name.
func (s *Store) TableFor(name string) string {
	return s.registry.TableFor(name, s.config.RowTable)
}

func (s *Store) relationshipPK(parentID, childRef string) string {
	return shard.RelationshipPK(parentID, childRef, s.config.NumShards)
}

type pendingWrite struct {
	table string
	req   types.WriteRequest
}

// PutRows stores rows under docID along with a relationship record for every
// row that has a parent. Rows already present are overwritten; repeated rows
// within the call are written once.
func (s *Store) PutRows(ctx context.Context, docID string, rows []destructure.Row) error {
	loadedAt := time.Now().UTC().Format(time.RFC3339)

	var writes []pendingWrite
	seen := make(map[string]int)
	add := func(table, key string, item map[string]types.AttributeValue) {
		w := pendingWrite{
			table: table,
			req:   types.WriteRequest{PutRequest: &types.PutRequest{Item: item}},
		}
		id := table + "\x00" + key
		if i, ok := seen[id]; ok {
			writes[i] = w
			return
		}
		seen[id] = len(writes)
		writes = append(writes, w)
	}

	for _, row := range rows {
		if row.Name == "" || row.RowID == "" {
			return fmt.Errorf("%w: missing name or row id", ErrInvalidRow)
		}
		table, err := row.Table.MarshalJSON()
		if err != nil {
			return fmt.Errorf("%w: %s/%s: %v", ErrInvalidRow, row.Name, row.RowID, err)
		}

		rowTable := s.TableFor(row.Name)
		ref := ChildRef(row.Name, row.RowID)
		item, err := attributevalue.MarshalMap(Item{
			Name:     row.Name,
			RowID:    row.RowID,
			ParentID: row.ParentID,
			Table:    string(table),
			DocID:    docID,
			LoadedAt: loadedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		add(rowTable, ref, item)

		if row.ParentID == "" {
			continue
		}
		link := ChildLink{
			ShardPK:   s.relationshipPK(row.ParentID, ref),
			Ref:       ref,
			ParentID:  row.ParentID,
			Name:      row.Name,
			RowID:     row.RowID,
			TableName: rowTable,
		}
		linkItem, err := attributevalue.MarshalMap(link)
		if err != nil {
			return fmt.Errorf("marshal relationship: %w", err)
		}
		add(s.config.RelationshipTable, link.ShardPK+"\x00"+ref, linkItem)
	}

	for start := 0; start < len(writes); start += batchSize {
		end := min(start+batchSize, len(writes))
		if err := s.batchWrite(ctx, writes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// batchWrite submits one batch, resubmitting unprocessed items with
// exponential backoff.
func (s *Store) batchWrite(ctx context.Context, writes []pendingWrite) error {
	request := make(map[string][]types.WriteRequest)
	for _, w := range writes {
		request[w.table] = append(request[w.table], w.req)
	}

	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: request,
		})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
		if out == nil || len(out.UnprocessedItems) == 0 {
			return nil
		}
		if attempt >= s.config.MaxRetries {
			return fmt.Errorf("%w: %d items after %d attempts",
				ErrUnprocessed, countRequests(out.UnprocessedItems), attempt+1)
		}

		request = out.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func countRequests(m map[string][]types.WriteRequest) int {
	n := 0
	for _, reqs := range m {
		n += len(reqs)
	}
	return n
}

// Get retrieves a row, returning ErrNotFound if deleted or missing.
func (s *Store) Get(ctx context.Context, name, rowID string) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.TableFor(name)),
		Key:       RowKey(name, rowID),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	// Check if row is deleted (has expired TTL)
	if IsDeleted(result.Item) {
		return nil, ErrNotFound
	}

	var item Item
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	return &item, nil
}

// GetRow is Get followed by Item.Row.
func (s *Store) GetRow(ctx context.Context, name, rowID string) (destructure.Row, error) {
	item, err := s.Get(ctx, name, rowID)
	if err != nil {
		return destructure.Row{}, err
	}
	return item.Row()
}

// QueryRows returns the live rows named name, optionally narrowed to one
// document. Deleted rows are filtered out.
func (s *Store) QueryRows(ctx context.Context, name, docID string) ([]Item, error) {
	filterExpr := TTLFilterExpr()
	exprNames := TTLFilterNames()
	exprNames["#name"] = "name"
	exprValues := TTLFilterValues(time.Now())
	exprValues[":name"] = stringAttr(name)
	if docID != "" {
		filterExpr = fmt.Sprintf("(doc_id = :doc) AND (%s)", filterExpr)
		exprValues[":doc"] = stringAttr(docID)
	}

	// TTL-expired rows are filtered server side; page until exhausted.
	var items []Item
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.TableFor(name)),
		KeyConditionExpression:    aws.String("#name = :name"),
		FilterExpression:          aws.String(filterExpr),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var pageItems []Item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("unmarshal rows: %w", err)
		}
		items = append(items, pageItems...)
	}

	return items, nil
}

// DeleteOptions controls what Delete checks before soft-deleting a row.
type DeleteOptions struct {
	// Cascade marks the row for deletion regardless of children; the stream
	// handler then propagates the TTL down the hierarchy.
	Cascade bool

	// OrphanProtect refuses to delete a row that still has live children.
	OrphanProtect bool
}

// Delete deletes a row by setting its TTL.
func (s *Store) Delete(ctx context.Context, name, rowID string, opts DeleteOptions) error {
	if opts.OrphanProtect && !opts.Cascade {
		hasChildren, err := s.HasActiveChildren(ctx, rowID)
		if err != nil {
			return err
		}
		if hasChildren {
			return ErrHasChildren
		}
	}

	return s.SetTTL(ctx, name, rowID)
}

// SetTTL marks a row for deletion by setting its TTL to now. Deleting an
// already-deleted row is a no-op; a missing row yields ErrNotFound.
func (s *Store) SetTTL(ctx context.Context, name, rowID string) error {
	err := s.setTTL(ctx, s.TableFor(name), RowKey(name, rowID), time.Now().Unix())

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		if condErr.Item == nil {
			return ErrNotFound
		}
		return nil
	}
	return err
}

// SetTTLByKey sets TTL on a row by table and key.
// The stream cascade calls it for every child of a soft-deleted row.
func (s *Store) SetTTLByKey(ctx context.Context, table string, key PK, ttl int64) error {
	err := s.setTTL(ctx, table, key, ttl)

	// Ignore condition failure - already has TTL or is gone
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

func (s *Store) setTTL(ctx context.Context, table string, key PK, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(table),
		Key:                                 key,
		UpdateExpression:                    aws.String("SET #ttl = :ttl"),
		ConditionExpression:                 aws.String("attribute_exists(row_id) AND attribute_not_exists(#ttl)"),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		ExpressionAttributeNames:            TTLFilterNames(),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": numberAttr(ttl),
		},
	})
	return err
}

// SetRelationshipTTL sets TTL on the record linking childRef to parentID.
func (s *Store) SetRelationshipTTL(ctx context.Context, childRef, parentID string, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.RelationshipTable),
		Key: map[string]types.AttributeValue{
			"pk":        stringAttr(s.relationshipPK(parentID, childRef)),
			"child_ref": stringAttr(childRef),
		},
		UpdateExpression:         aws.String("SET #ttl = :ttl"),
		ConditionExpression:      aws.String("attribute_exists(pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: TTLFilterNames(),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": numberAttr(ttl),
		},
	})

	// A link that already carries a ttl is left alone.
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// HasActiveChildren checks if a row has any active (non-deleted) children.
func (s *Store) HasActiveChildren(ctx context.Context, parentID string) (bool, error) {
	now := time.Now()
	pks := shard.All(parentID, s.config.NumShards)

	// One shard needs no goroutines.
	if len(pks) == 1 {
		return s.hasActiveChildrenInShard(ctx, pks[0], now)
	}

	// Query every shard concurrently; the first hit cancels the rest.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan bool, 1)
	errs := make(chan error, len(pks))
	var wg sync.WaitGroup

	for _, pk := range pks {
		wg.Add(1)
		go func(pk string) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
			}

			ok, err := s.hasActiveChildrenInShard(ctx, pk, now)
			if err != nil {
				errs <- err
				return
			}
			if ok {
				select {
				case found <- true:
					cancel()
				default:
				}
			}
		}(pk)
	}

	go func() {
		wg.Wait()
		close(found)
		close(errs)
	}()

	if <-found {
		return true, nil
	}

	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return false, err
		}
	}

	return false, nil
}

func (s *Store) hasActiveChildrenInShard(ctx context.Context, pk string, now time.Time) (bool, error) {
	values := TTLFilterValues(now)
	values[":pk"] = stringAttr(pk)

	return s.anyItem(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.RelationshipTable),
		KeyConditionExpression:    aws.String("pk = :pk"),
		FilterExpression:          aws.String(TTLFilterExpr()),
		ExpressionAttributeNames:  TTLFilterNames(),
		ExpressionAttributeValues: values,
	})
}

// QueryChildren returns the links to all children of a row, including
// deleted ones, in shard order. Cascade delete uses it to reach every child.
func (s *Store) QueryChildren(ctx context.Context, parentID string) ([]ChildLink, error) {
	pks := shard.All(parentID, s.config.NumShards)

	// One shard needs no goroutines.
	if len(pks) == 1 {
		return s.queryShard(ctx, pks[0])
	}

	// One goroutine per shard, results kept in shard order.
	results := make([][]ChildLink, len(pks))
	errs := make(chan error, len(pks))
	var wg sync.WaitGroup

	for i, pk := range pks {
		wg.Add(1)
		go func(i int, pk string) {
			defer wg.Done()

			links, err := s.queryShard(ctx, pk)
			if err != nil {
				errs <- fmt.Errorf("shard %s: %w", pk, err)
				return
			}
			results[i] = links
		}(i, pk)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		return nil, err
	}

	var all []ChildLink
	for _, links := range results {
		all = append(all, links...)
	}
	return all, nil
}

func (s *Store) queryShard(ctx context.Context, pk string) ([]ChildLink, error) {
	var links []ChildLink

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.RelationshipTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": stringAttr(pk),
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
