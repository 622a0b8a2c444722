// Package shard computes partition keys of the DynamoDB parent/child relationship index.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxShards is the largest supported shard count.
const MaxShards = 256

// Ref returns the reference of an entity in the relationship index, "<type>#<oid>".
func Ref(entityType, oid string) string {
	return entityType + "#" + oid
}

// RelationshipPK computes the partition key of the relationship record linking childRef
// to parentRef. With numShards <= 1 every child of a parent lands in shard "00"; otherwise
// children are spread by an FNV-1a hash of childRef.
func RelationshipPK(parentRef, childRef string, numShards int) string {
	if numShards <= 1 {
		return key(parentRef, 0)
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return key(parentRef, h.Sum32()%uint32(min(numShards, MaxShards)))
}

// All returns the partition keys of every shard of parentRef, in shard order.
func All(parentRef string, numShards int) []string {
	numShards = max(1, min(numShards, MaxShards))
	pks := make([]string, numShards)
	for i := range pks {
		pks[i] = key(parentRef, uint32(i))
	}
	return pks
}

func key(parentRef string, shard uint32) string {
	return fmt.Sprintf("%s#%02x", parentRef, shard)
}
