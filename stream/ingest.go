package stream

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

// DocIDAttribute is the SQS message attribute that names a document. Messages
// without it get a random id.
const DocIDAttribute = "doc_id"

// HandleDocuments destructures every message body and stores the rows.
// Documents that cannot be destructured are logged and dropped since a retry
// cannot fix them; store failures are reported back so SQS redelivers only
// those messages.
func (h *Handler) HandleDocuments(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, msg := range event.Records {
		if err := h.ingest(ctx, msg); err != nil {
			h.logger.Error("failed to store document",
				"messageID", msg.MessageId,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: msg.MessageId,
			})
		}
	}
	return resp, nil
}

func (h *Handler) ingest(ctx context.Context, msg events.SQSMessage) error {
	docID := messageDocID(msg)

	rows, err := h.engine.DestructureJSON([]byte(msg.Body))
	if err != nil {
		h.logger.Warn("dropping document",
			"messageID", msg.MessageId,
			"docID", docID,
			"error", err,
		)
		return nil
	}

	if err := h.store.PutRows(ctx, docID, rows); err != nil {
		return fmt.Errorf("put rows: %w", err)
	}

	h.logger.Info("stored document",
		"docID", docID,
		"rows", len(rows),
		"rowID", rows[len(rows)-1].RowID,
	)
	return nil
}

func messageDocID(msg events.SQSMessage) string {
	if attr, ok := msg.MessageAttributes[DocIDAttribute]; ok && attr.StringValue != nil && *attr.StringValue != "" {
		return *attr.StringValue
	}
	return uuid.NewString()
}
