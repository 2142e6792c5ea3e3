// Package cache implements the sharded in-memory store behind every logical
// database: a fixed power-of-two array of shards, each guarding a key map and
// its recency list with a single writer lock.
//
// Entries carry an absolute expiry, an access frequency, and a last-access
// stamp; capacity pressure is resolved per shard by one of three eviction
// policies (LFRU, LRU, LFU). All exported methods are safe for concurrent use.
package cache
