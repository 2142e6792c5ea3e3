package cache

import (
	"time"

	"github.com/tinycache/tinycache/internal/util"
)

// Cache is the sharded store backing one logical database. Keys route to a
// shard by hashing all three key fields and masking with the (power-of-two)
// shard count. There is no cache-wide lock: operations on distinct shards
// proceed independently, and no cross-shard atomicity is provided.
type Cache struct {
	shards []*shard
	mask   uint64
	opt    Options

	// per-shard resident counts, refreshed on reads, for load introspection
	loads []util.PaddedAtomicUint64
}

// New constructs a cache with the provided Options (see Options for defaults).
func New(opt Options) *Cache {
	opt.applyDefaults()

	shards := make([]*shard, opt.Shards)
	c := &Cache{
		shards: shards,
		mask:   uint64(opt.Shards - 1),
		opt:    opt,
		loads:  make([]util.PaddedAtomicUint64, opt.Shards),
	}
	perShardCap := opt.MaxSize / opt.Shards
	if perShardCap < 1 {
		perShardCap = 1
	}
	for i := range shards {
		shards[i] = newShard(perShardCap, &c.opt)
	}
	return c
}

// Policy returns the configured eviction policy name.
func (c *Cache) Policy() string { return c.opt.Policy }

// ShardCount returns the number of shards (a power of two).
func (c *Cache) ShardCount() int { return len(c.shards) }

// Len returns the total number of resident entries across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.length()
	}
	return total
}

// ShardLoad returns the last observed entry count of one shard.
func (c *Cache) ShardLoad(idx int) uint64 { return c.loads[idx].Load() }

// Clear drops every entry from every shard.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.clear()
	}
	for i := range c.loads {
		c.loads[i].Store(0)
	}
}

// Entries snapshots every item that belongs to database, across all shards.
func (c *Cache) Entries(database string) []Entry {
	var out []Entry
	for _, s := range c.shards {
		out = append(out, s.entries(database)...)
	}
	return out
}

// ---- key-value binding ----
// These bind EntryKeyValue into the key and route to the owning shard.

// InsertKeyValue stores value under (database, key). A non-positive ttl
// disables expiry.
func (c *Cache) InsertKeyValue(database, key string, value DataValue, ttl time.Duration) {
	k := Key{Database: database, Name: key, Type: EntryKeyValue}
	c.shardFor(k).insert(k, value, int64(ttl.Seconds()))
}

// GetKeyValue returns the value for (database, key), bumping frequency and
// recency on a hit.
func (c *Cache) GetKeyValue(database, key string) (DataValue, bool) {
	k := Key{Database: database, Name: key, Type: EntryKeyValue}
	idx := c.shardIndex(k)
	s := c.shards[idx]
	v, ok := s.get(k)
	c.loads[idx].Store(uint64(s.length()))
	return v, ok
}

// UpdateKeyValue replaces the value for an existing key and returns the
// previous value. A non-positive ttl clears the expiry.
func (c *Cache) UpdateKeyValue(database, key string, value DataValue, ttl time.Duration) (DataValue, bool) {
	k := Key{Database: database, Name: key, Type: EntryKeyValue}
	return c.shardFor(k).update(k, value, int64(ttl.Seconds()))
}

// DeleteKeyValue removes (database, key) and returns the removed value.
func (c *Cache) DeleteKeyValue(database, key string) (DataValue, bool) {
	k := Key{Database: database, Name: key, Type: EntryKeyValue}
	return c.shardFor(k).remove(k)
}

// IncrKeyValue adds amount to a numeric value and returns the new number.
// Decrement is an increment with a negated amount.
func (c *Cache) IncrKeyValue(database, key string, amount float64) (float64, bool) {
	k := Key{Database: database, Name: key, Type: EntryKeyValue}
	return c.shardFor(k).incr(k, amount)
}

// ---- helpers ----

func (c *Cache) shardIndex(k Key) int { return int(k.hash() & c.mask) }

func (c *Cache) shardFor(k Key) *shard { return c.shards[c.shardIndex(k)] }
