// Package store loads destructured rows into DynamoDB.
//
// Rows are written to a row table keyed by name (hash key) and row_id
// (range key). Every non-root row is also linked from its parent in a
// relationship table so that a row's children can be listed and deleted
// together.
//
// # Tables
//
// Row table (default "unnest_rows"):
//
//	name      S  hash key
//	row_id    S  range key
//	parent_id S  absent for root rows
//	table     S  JSON text of the row's fields or value
//	doc_id    S  load that last wrote the row
//	loaded_at S  RFC 3339
//	ttl       N  set when the row is deleted
//
// Relationship table (default "unnest_relationships"):
//
//	pk           S  hash key, "<parent_id>#<shard>"
//	child_ref    S  range key, "<name>#<row_id>"
//	parent_id    S
//	child_name   S
//	child_row_id S  hash key of the ChildIndex GSI (range key child_ref)
//
// Row ids are content hashes, so one stored row can be held by several
// parents. Cascade delete consults ChildIndex and only expires a row once
// nothing live links to it.
//
// Rows with particular names can be routed to their own tables with a
// [Registry].
//
// # Configuration
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards when a single parent has very many children:
//
//	cfg := store.DefaultConfig()
//	cfg.NumShards = 16
//
// # Errors
//
//   - [ErrNotFound] - row doesn't exist or is deleted
//   - [ErrHasChildren] - cannot delete a row with active children
//   - [ErrUnprocessed] - DynamoDB kept rejecting part of a batch write
package store
