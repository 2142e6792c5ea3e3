package cache

import (
	"fmt"
	"testing"
	"time"
)

// Deterministic LRU eviction: single shard, small capacity.
// Accessing "a" promotes it; inserting "c" evicts the list head ("b").
func TestEviction_LRU(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(1_000_000)
	c := New(Options{MaxSize: 2, Shards: 1, Policy: PolicyLRU, Clock: clk})

	c.InsertKeyValue("db", "a", StringValue("1"), 0) // LRU = a
	c.InsertKeyValue("db", "b", StringValue("2"), 0) // MRU = b

	if _, ok := c.GetKeyValue("db", "a"); !ok { // promote a -> MRU
		t.Fatal("expect hit for a")
	}
	c.InsertKeyValue("db", "c", StringValue("3"), 0) // full -> evict LRU (b)

	if _, ok := c.GetKeyValue("db", "b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := c.GetKeyValue("db", "a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
	if _, ok := c.GetKeyValue("db", "c"); !ok {
		t.Fatal("c must be present")
	}
}

// LFU evicts the least frequently used entry regardless of recency.
func TestEviction_LFU(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(1_000_000)
	c := New(Options{MaxSize: 2, Shards: 1, Policy: PolicyLFU, Clock: clk})

	c.InsertKeyValue("db", "hot", StringValue("1"), 0)
	c.InsertKeyValue("db", "cold", StringValue("2"), 0)
	for i := 0; i < 3; i++ {
		c.GetKeyValue("db", "hot")
	}
	// "cold" was touched last, but its frequency is lower.
	c.GetKeyValue("db", "cold")
	c.GetKeyValue("db", "hot")

	c.InsertKeyValue("db", "new", StringValue("3"), 0)

	if _, ok := c.GetKeyValue("db", "cold"); ok {
		t.Fatal("cold must be evicted")
	}
	if _, ok := c.GetKeyValue("db", "hot"); !ok {
		t.Fatal("hot must survive")
	}
}

// Expired entries are reaped before any policy victim is chosen.
func TestEviction_ReapsExpiredFirst(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(1_000_000)
	c := New(Options{MaxSize: 2, Shards: 1, Policy: PolicyLRU, Clock: clk})

	c.InsertKeyValue("db", "stale", StringValue("1"), time.Second)
	c.InsertKeyValue("db", "live", StringValue("2"), 0)
	clk.add(5 * time.Second)

	c.InsertKeyValue("db", "new", StringValue("3"), 0)

	if _, ok := c.GetKeyValue("db", "live"); !ok {
		t.Fatal("live must survive: the expired entry satisfies the cap")
	}
	if _, ok := c.GetKeyValue("db", "new"); !ok {
		t.Fatal("new must be present")
	}
}

// LFRU pass 1: an entry that is both infrequent and idle past the time
// threshold is evicted ahead of fresher candidates.
func TestEviction_LFRU_ColdAndStale(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(1_000_000)
	c := New(Options{
		MaxSize: 2, Shards: 1, Policy: PolicyLFRU,
		FrequencyThreshold: 5, TimeThreshold: time.Hour,
		Clock: clk,
	})

	c.InsertKeyValue("db", "stale", StringValue("1"), 0)
	clk.add(2 * time.Hour)
	c.InsertKeyValue("db", "fresh", StringValue("2"), 0)

	c.InsertKeyValue("db", "new", StringValue("3"), 0)

	if _, ok := c.GetKeyValue("db", "stale"); ok {
		t.Fatal("stale must be evicted: below frequency threshold and idle past the time threshold")
	}
	if _, ok := c.GetKeyValue("db", "fresh"); !ok {
		t.Fatal("fresh must survive")
	}
}

// LFRU pass 2 tie-break: among equally infrequent, non-idle entries the
// NEWER last-access sorts first and is evicted first.
func TestEviction_LFRU_TieBreakEvictsNewer(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(1_000_000)
	c := New(Options{
		MaxSize: 2, Shards: 1, Policy: PolicyLFRU,
		FrequencyThreshold: 5, TimeThreshold: time.Hour,
		Clock: clk,
	})

	c.InsertKeyValue("db", "older", StringValue("1"), 0)
	clk.add(10 * time.Second)
	c.InsertKeyValue("db", "newer", StringValue("2"), 0)
	clk.add(10 * time.Second)

	c.InsertKeyValue("db", "incoming", StringValue("3"), 0)

	if _, ok := c.GetKeyValue("db", "newer"); ok {
		t.Fatal("newer must be evicted: equal frequencies order the newer last-access first")
	}
	if _, ok := c.GetKeyValue("db", "older"); !ok {
		t.Fatal("older must survive the tie-break")
	}
}

// LFRU pass 3: when nothing is below the frequency threshold, the least
// frequent entry is evicted anyway.
func TestEviction_LFRU_FallbackLeastFrequent(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(1_000_000)
	c := New(Options{
		MaxSize: 2, Shards: 1, Policy: PolicyLFRU,
		FrequencyThreshold: 2, TimeThreshold: time.Hour,
		Clock: clk,
	})

	c.InsertKeyValue("db", "warm", StringValue("1"), 0)
	c.InsertKeyValue("db", "hot", StringValue("2"), 0)
	// Push both to or above the threshold; "hot" ends up strictly higher.
	c.GetKeyValue("db", "warm")
	c.GetKeyValue("db", "hot")
	c.GetKeyValue("db", "hot")

	c.InsertKeyValue("db", "new", StringValue("3"), 0)

	if _, ok := c.GetKeyValue("db", "warm"); ok {
		t.Fatal("warm must be evicted as the least frequent entry")
	}
	if _, ok := c.GetKeyValue("db", "hot"); !ok {
		t.Fatal("hot must survive")
	}
}

// Every over-cap insert evicts and the shard invariant holds throughout.
func TestEviction_CapMaintainedUnderChurn(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(1_000_000)
	c := New(Options{MaxSize: 8, Shards: 1, Policy: PolicyLFRU, Clock: clk})

	for i := 0; i < 100; i++ {
		c.InsertKeyValue("db", fmt.Sprintf("k%d", i), StringValue("v"), 0)
		clk.add(time.Second)
	}
	if got := c.Len(); got > 8 {
		t.Fatalf("len: got %d, want <= 8", got)
	}
	assertShardInvariant(t, c)
}
