package cache

import (
	"github.com/tinycache/tinycache/internal/util"
)

// EntryType is the entry family a key belongs to. Only key-value entries
// exist today; the tag is part of the key so other families can share the
// keyspace later without collisions.
type EntryType uint8

// EntryKeyValue tags plain key-value entries.
const EntryKeyValue EntryType = 1

// Key uniquely identifies a cached item: the owning database, the logical
// key, and the entry family. All three participate in hashing and equality.
type Key struct {
	Database string
	Name     string
	Type     EntryType
}

func (k Key) hash() uint64 {
	return util.Fnv64aByte(util.Fnv64a(k.Database, k.Name), byte(k.Type))
}

// Item is the stored record for one key. Times are Unix seconds; Expiry 0
// means the entry never expires. Frequency starts at 1 on insert and is
// bumped on every hit and update.
type Item struct {
	Value      DataValue
	CreatedAt  int64
	Expiry     int64
	LastAccess int64
	Frequency  uint32
}

// Entry pairs a key with a snapshot of its item, as returned by iteration.
type Entry struct {
	Key  Key
	Item Item
}

// node is an intrusive doubly linked list element owned by a shard.
// List order is recency: head is the least recently used entry, tail the
// most recently used.
type node struct {
	key  Key
	item Item

	prev *node
	next *node
}
