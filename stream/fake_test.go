package stream_test

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/store"
)

type ttlCall struct {
	table string
	key   store.PK
	ttl   int64
}

type relCall struct {
	childRef string
	parentID string
	ttl      int64
}

// fakeStore records handler calls against an in-memory relationship table.
// A link is live while its TTL is 0.
type fakeStore struct {
	mu       sync.Mutex
	puts     map[string][]destructure.Row
	links    []store.ChildLink
	putErr   error
	queryErr error

	ttls    []ttlCall
	relTTLs []relCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		puts: make(map[string][]destructure.Row),
	}
}

// link records that parentID holds the row (name, rowID) stored in table.
func (f *fakeStore) link(parentID, name, rowID, table string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, store.ChildLink{
		Ref:       store.ChildRef(name, rowID),
		ParentID:  parentID,
		Name:      name,
		RowID:     rowID,
		TableName: table,
	})
}

func (f *fakeStore) PutRows(ctx context.Context, docID string, rows []destructure.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts[docID] = append(f.puts[docID], rows...)
	return nil
}

func (f *fakeStore) QueryChildren(ctx context.Context, parentID string) ([]store.ChildLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []store.ChildLink
	for _, l := range f.links {
		if l.ParentID == parentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) QueryParents(ctx context.Context, name, rowID string) ([]store.ChildLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []store.ChildLink
	for _, l := range f.links {
		if l.Ref == store.ChildRef(name, rowID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) HasLiveAlias(ctx context.Context, name, rowID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.RowID == rowID && l.Name != name && l.TTL == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) HasOtherLiveParent(ctx context.Context, name, rowID, parentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Ref == store.ChildRef(name, rowID) && l.ParentID != parentID && l.TTL == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetTTLByKey(ctx context.Context, table string, key store.PK, ttl int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls = append(f.ttls, ttlCall{table: table, key: key, ttl: ttl})
	return nil
}

func (f *fakeStore) SetRelationshipTTL(ctx context.Context, childRef, parentID string, ttl int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relTTLs = append(f.relTTLs, relCall{childRef: childRef, parentID: parentID, ttl: ttl})
	for i := range f.links {
		if f.links[i].Ref == childRef && f.links[i].ParentID == parentID && f.links[i].TTL == 0 {
			f.links[i].TTL = ttl
		}
	}
	return nil
}

func (f *fakeStore) docCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

// expiredRows returns the row_id of every row given a TTL, in call order.
func (f *fakeStore) expiredRows() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.ttls {
		if v, ok := c.key["row_id"].(*types.AttributeValueMemberS); ok {
			out = append(out, v.Value)
		}
	}
	return out
}
