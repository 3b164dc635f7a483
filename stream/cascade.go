package stream

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/unnest/store"
)

// rowImage is the part of a row table stream image the cascade needs.
type rowImage struct {
	name     string
	rowID    string
	parentID string
	ttl      int64
}

func (r rowImage) ref() string { return store.ChildRef(r.name, r.rowID) }

// HandleCascadeDelete is the Lambda entry point for the row table stream.
// A row that has just received a TTL passes it on to its relationship
// records and to the children nothing else holds; the children's stream
// events carry the cascade further down.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, rec := range event.Records {
		row, ok := softDeleted(rec)
		if !ok {
			continue
		}
		if err := h.cascade(ctx, row); err != nil {
			h.logger.Error("cascade aborted",
				"eventID", rec.EventID,
				"row", row.ref(),
				"error", err,
			)
			// Returning the error makes Lambda redeliver the batch.
			return err
		}
	}
	return nil
}

// softDeleted reports whether rec is a row whose ttl went from unset to set.
func softDeleted(rec events.DynamoDBEventRecord) (rowImage, bool) {
	if rec.EventName != "MODIFY" {
		return rowImage{}, false
	}
	before := getNumberAttr(rec.Change.OldImage, "ttl")
	after := getNumberAttr(rec.Change.NewImage, "ttl")
	if before != 0 || after == 0 {
		return rowImage{}, false
	}
	// Relationship items have no row_id in their key.
	if _, isRow := ConvertStreamKey(rec.Change.Keys)["row_id"]; !isRow {
		return rowImage{}, false
	}
	img := rec.Change.NewImage
	return rowImage{
		name:     getStringAttr(img, "name"),
		rowID:    getStringAttr(img, "row_id"),
		parentID: getStringAttr(img, "parent_id"),
		ttl:      after,
	}, true
}

// cascade retires row. Its own links go first so the checks below never
// count them. Children are shared between parents and between rows whose
// data hashes to the same id, so a child only expires once no live parent
// is left pointing at it.
func (h *Handler) cascade(ctx context.Context, row rowImage) error {
	parents, err := h.store.QueryParents(ctx, row.name, row.rowID)
	if err != nil {
		return fmt.Errorf("parents of %s: %w", row.ref(), err)
	}
	for _, p := range parents {
		if err := h.store.SetRelationshipTTL(ctx, row.ref(), p.ParentID, row.ttl); err != nil {
			h.logger.Warn("relationship ttl not set",
				"row", row.ref(),
				"parent", p.ParentID,
				"error", err,
			)
		}
	}

	shared, err := h.store.HasLiveAlias(ctx, row.name, row.rowID)
	if err != nil {
		return fmt.Errorf("aliases of %s: %w", row.ref(), err)
	}
	if shared {
		h.logger.Info("row id still in use, children kept", "row", row.ref())
		return nil
	}

	children, err := h.store.QueryChildren(ctx, row.rowID)
	if err != nil {
		return fmt.Errorf("children of %s: %w", row.ref(), err)
	}

	// Write failures are logged and the child skipped; all writes are
	// conditional, so replaying the event is safe.
	expired := 0
	for _, c := range children {
		if err := h.store.SetRelationshipTTL(ctx, c.Ref, row.rowID, row.ttl); err != nil {
			h.logger.Warn("relationship ttl not set", "row", c.Ref, "parent", row.rowID, "error", err)
			continue
		}
		kept, err := h.store.HasOtherLiveParent(ctx, c.Name, c.RowID, row.rowID)
		if err != nil {
			return fmt.Errorf("parents of %s: %w", c.Ref, err)
		}
		if kept {
			continue
		}
		if err := h.store.SetTTLByKey(ctx, c.TableName, c.Key(), row.ttl); err != nil {
			h.logger.Warn("child ttl not set", "child", c.Ref, "error", err)
			continue
		}
		expired++
	}

	h.logger.Info("row cascaded",
		"row", row.ref(),
		"parent", row.parentID,
		"ttl", row.ttl,
		"children", len(children),
		"expired", expired,
	)
	return nil
}

func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}

// getNumberAttr returns 0 for absent, non-numeric or unparsable attributes.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeNumber {
		return 0
	}
	n, err := strconv.ParseInt(v.Number(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ConvertStreamKey turns a stream record's Keys into a store.PK usable with
// the DynamoDB client. Attribute types other than S, N and B are dropped.
func ConvertStreamKey(keys map[string]events.DynamoDBAttributeValue) store.PK {
	pk := make(store.PK, len(keys))
	for name, v := range keys {
		switch v.DataType() {
		case events.DataTypeString:
			pk[name] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			pk[name] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			pk[name] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return pk
}
