// Package stream provides AWS Lambda handlers that load documents into the
// row store and cascade deletes through it.
package stream

import (
	"context"
	"log/slog"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/store"
)

// RowStore is the part of *store.Store the handlers use.
type RowStore interface {
	PutRows(ctx context.Context, docID string, rows []destructure.Row) error
	QueryChildren(ctx context.Context, parentID string) ([]store.ChildLink, error)
	QueryParents(ctx context.Context, name, rowID string) ([]store.ChildLink, error)
	HasLiveAlias(ctx context.Context, name, rowID string) (bool, error)
	HasOtherLiveParent(ctx context.Context, name, rowID, parentID string) (bool, error)
	SetTTLByKey(ctx context.Context, table string, key store.PK, ttl int64) error
	SetRelationshipTTL(ctx context.Context, childRef, parentID string, ttl int64) error
}

var _ RowStore = (*store.Store)(nil)

// Handler processes SQS document batches and DynamoDB stream events.
type Handler struct {
	store  RowStore
	engine *destructure.Engine
	logger *slog.Logger
}

// NewHandler creates a new stream handler. A nil engine destructures with
// the default md5 hasher.
func NewHandler(s RowStore, engine *destructure.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = destructure.New(nil, destructure.WithLogger(logger))
	}
	return &Handler{
		store:  s,
		engine: engine,
		logger: logger,
	}
}
