// Package shard provides partition keys for the sharded relationship index.
package shard

import (
	"fmt"
	"hash/fnv"
)

// Max is the largest supported shard count.
const Max = 256

// Of returns the shard a child lands in. With numShards <= 1 everything is
// shard 0; otherwise children spread by an FNV-1a hash of childRef.
func Of(childRef string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return int(h.Sum32() % uint32(numShards))
}

// PK formats the relationship partition key for parentID's shard n.
func PK(parentID string, n int) string {
	return fmt.Sprintf("%s#%02x", parentID, n)
}

// RelationshipPK is the partition key holding the link from parentID to
// childRef.
func RelationshipPK(parentID, childRef string, numShards int) string {
	return PK(parentID, Of(childRef, numShards))
}

// All returns the partition keys of every shard of parentID, in shard order.
func All(parentID string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	pks := make([]string, numShards)
	for i := range pks {
		pks[i] = PK(parentID, i)
	}
	return pks
}
