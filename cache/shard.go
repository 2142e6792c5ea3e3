package cache

import (
	"strconv"
	"sync"

	"github.com/tinycache/tinycache/internal/util"
)

// shard is an independent partition of the cache with its own lock, map,
// and an intrusive recency list (head=LRU, tail=MRU).
//
// The map and the list share one invariant — every resident key appears in
// both exactly once — so a single writer lock guards them together. Reads
// also take the writer lock: a hit mutates frequency, last-access, and
// recency order.
type shard struct {
	mu    sync.RWMutex
	m     map[Key]*node
	head  *node // LRU
	tail  *node // MRU
	count int
	cap   int

	opt *Options

	// hot counters on their own cache lines
	_      util.CacheLinePad
	hits   util.PaddedAtomicUint64
	misses util.PaddedAtomicUint64
}

func newShard(capacity int, opt *Options) *shard {
	return &shard{
		m:   make(map[Key]*node, capacity),
		cap: capacity,
		opt: opt,
	}
}

// insert stores k with a fresh item. A non-positive ttl means no expiry.
// When the shard is at its cap, eviction runs first.
func (s *shard) insert(k Key, v DataValue, ttlSecs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count >= s.cap {
		s.evictLocked()
	}

	now := s.opt.Clock.NowUnix()
	item := Item{
		Value:      v,
		CreatedAt:  now,
		LastAccess: now,
		Frequency:  1,
	}
	if ttlSecs > 0 {
		item.Expiry = now + ttlSecs
	}

	if n, ok := s.m[k]; ok {
		// Re-inserting an existing key replaces the item in place; the key
		// must stay unique in the recency list.
		n.item = item
		s.moveToTail(n)
		return
	}

	n := &node{key: k, item: item}
	s.m[k] = n
	s.pushTail(n)
}

// get returns a snapshot of the value. A hit bumps frequency and recency;
// an entry past its expiry is removed and reported as a miss.
func (s *shard) get(k Key) (DataValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return DataValue{}, false
	}
	now := s.opt.Clock.NowUnix()
	if s.expired(n, now) {
		s.evictNode(n, EvictTTL)
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return DataValue{}, false
	}

	n.item.Frequency++
	n.item.LastAccess = now
	s.moveToTail(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.item.Value, true
}

// update replaces the value and expiry of an existing key and returns the
// previous value. Absent keys are a no-op.
func (s *shard) update(k Key, v DataValue, ttlSecs int64) (DataValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return DataValue{}, false
	}
	now := s.opt.Clock.NowUnix()
	old := n.item.Value
	n.item.Value = v
	if ttlSecs > 0 {
		n.item.Expiry = now + ttlSecs
	} else {
		n.item.Expiry = 0
	}
	n.item.Frequency++
	n.item.LastAccess = now
	s.moveToTail(n)
	return old, true
}

// remove deletes k and returns the removed value.
func (s *shard) remove(k Key) (DataValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return DataValue{}, false
	}
	s.removeNode(n)
	delete(s.m, k)
	return n.item.Value, true
}

// incr adds amount to a numeric value (a String parsing as a number, a
// bare-number Json, or a Json string parsing as a number) and stores the
// result as a Json number. Non-numeric or absent keys report false.
func (s *shard) incr(k Key, amount float64) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return 0, false
	}
	cur, ok := n.item.Value.Numeric()
	if !ok {
		return 0, false
	}
	next := cur + amount
	n.item.Value = JSONValue([]byte(strconv.FormatFloat(next, 'f', -1, 64)))
	n.item.Frequency++
	n.item.LastAccess = s.opt.Clock.NowUnix()
	s.moveToTail(n)
	return next, true
}

// length returns the number of resident entries.
func (s *shard) length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// clear drops every entry and resets the recency list.
func (s *shard) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[Key]*node)
	s.head, s.tail = nil, nil
	s.count = 0
	s.opt.Metrics.Size(0)
}

// entries snapshots all items belonging to database. Items are copied so
// callers never observe later mutation.
func (s *shard) entries(database string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, s.count)
	for k, n := range s.m {
		if k.Database != database {
			continue
		}
		out = append(out, Entry{Key: k, Item: n.item})
	}
	return out
}

// -------------------- internals (mu held) --------------------

func (s *shard) expired(n *node, now int64) bool {
	return n.item.Expiry != 0 && now > n.item.Expiry
}

// pushTail appends n as MRU in O(1).
func (s *shard) pushTail(n *node) {
	n.next = nil
	n.prev = s.tail
	if s.tail != nil {
		s.tail.next = n
	}
	s.tail = n
	if s.head == nil {
		s.head = n
	}
	s.count++
}

// moveToTail promotes n to MRU in O(1).
func (s *shard) moveToTail(n *node) {
	if n == s.tail {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	// append
	n.next = nil
	n.prev = s.tail
	if s.tail != nil {
		s.tail.next = n
	}
	s.tail = n
	if s.head == nil {
		s.head = n
	}
}

// removeNode unlinks n and updates the count in O(1).
func (s *shard) removeNode(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.count--
}

// evictNode removes the node from map and list and reports metrics.
func (s *shard) evictNode(n *node, reason EvictReason) {
	s.removeNode(n)
	delete(s.m, n.key)
	s.opt.Metrics.Evict(reason)
	s.opt.Metrics.Size(s.count)
}
