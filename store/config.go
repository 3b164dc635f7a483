package store

import (
	"time"

	"github.com/jacentio/unnest/internal/shard"
)

// Config names the tables and tuning knobs of a Store.
type Config struct {
	// RowTable is the table rows are written to unless a Registry routes
	// them elsewhere.
	// Default: "unnest_rows"
	RowTable string

	// RelationshipTable is the name of the parent/child index table.
	// Default: "unnest_relationships"
	RelationshipTable string

	// ChildIndex is the global secondary index on RelationshipTable keyed by
	// child_row_id (hash) and child_ref (range), projecting all attributes.
	// Cascade delete uses it to find every link pointing at a row.
	// Default: "child_row_id-index"
	ChildIndex string

	// NumShards is the number of shards per parent in the relationship table.
	// Higher values spread very wide parents over more partitions but require
	// more parallel queries when listing children.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// MaxRetries bounds how often unprocessed batch items are resubmitted.
	// Default: 5
	MaxRetries int

	// RetryBackoff is the first delay between resubmissions; it doubles on
	// every attempt.
	// Default: 50ms
	RetryBackoff time.Duration
}

// DefaultConfig uses the unnest_ table names, one shard and five retries.
func DefaultConfig() Config {
	return Config{
		RowTable:          "unnest_rows",
		RelationshipTable: "unnest_relationships",
		ChildIndex:        "child_row_id-index",
		NumShards:         1,
		MaxRetries:        5,
		RetryBackoff:      50 * time.Millisecond,
	}
}

// validate fills unset fields with defaults and clamps NumShards.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.RowTable == "" {
		c.RowTable = def.RowTable
	}
	if c.RelationshipTable == "" {
		c.RelationshipTable = def.RelationshipTable
	}
	if c.ChildIndex == "" {
		c.ChildIndex = def.ChildIndex
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > shard.Max {
		c.NumShards = shard.Max
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
}
