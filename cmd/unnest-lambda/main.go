// unnest-lambda runs the stream handlers on AWS Lambda.
//
// UNNEST_HANDLER selects the entry point: "ingest" (the default) consumes SQS
// batches of JSON documents, "cascade" consumes the row table's DynamoDB
// stream. UNNEST_CONFIG optionally names a YAML settings file; UNNEST_*
// variables override it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/unnest/internal/settings"
	"github.com/jacentio/unnest/store"
	"github.com/jacentio/unnest/stream"
)

func main() {
	handler, err := setup(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(handler)
}

func setup(ctx context.Context) (any, error) {
	s, err := settings.Load(os.Getenv("UNNEST_CONFIG"))
	if err != nil {
		return nil, err
	}
	logger, err := s.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}
	engine, err := s.Engine(logger)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	rows := store.NewWithRegistry(dynamodb.NewFromConfig(cfg), s.StoreConfig(), s.Registry())

	h := stream.NewHandler(rows, engine, logger)
	return selectHandler(os.Getenv("UNNEST_HANDLER"), h)
}

func selectHandler(name string, h *stream.Handler) (any, error) {
	switch name {
	case "", "ingest":
		return h.HandleDocuments, nil
	case "cascade":
		return h.HandleCascadeDelete, nil
	}
	return nil, fmt.Errorf("unknown handler %q", name)
}
