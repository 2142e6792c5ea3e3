package cache

import "sort"

// evictLocked frees room in a shard that has reached its per-shard cap.
// Expired entries are reaped first; while the shard is still at or over cap,
// the configured policy removes exactly one victim per iteration.
//
// Caller holds s.mu.
func (s *shard) evictLocked() {
	now := s.opt.Clock.NowUnix()

	// Reap everything already past its expiry.
	for k, n := range s.m {
		if s.expired(n, now) {
			s.removeNode(n)
			delete(s.m, k)
			s.opt.Metrics.Evict(EvictTTL)
		}
	}

	for s.count >= s.cap {
		var victim *node
		switch s.opt.Policy {
		case PolicyLRU:
			victim = s.head
		case PolicyLFU:
			victim = s.leastFrequentLocked()
		case PolicyLFRU:
			victim = s.lfruVictimLocked(now)
		default:
			// Policies are validated at configuration time; an unknown one
			// here is a programming error.
			panic("cache: unknown eviction policy " + s.opt.Policy)
		}
		if victim == nil {
			break
		}
		s.evictNode(victim, EvictPolicy)
	}
	s.opt.Metrics.Size(s.count)
}

// leastFrequentLocked returns the entry with the smallest frequency,
// ties broken by map iteration order.
func (s *shard) leastFrequentLocked() *node {
	var min *node
	for _, n := range s.m {
		if min == nil || n.item.Frequency < min.item.Frequency {
			min = n
		}
	}
	return min
}

// lfruVictimLocked implements the hybrid policy. Candidates sort ascending
// by frequency; equal frequencies order the newer last-access first. Three
// passes over the sorted list:
//
//  1. first entry below the frequency threshold AND idle past the time
//     threshold,
//  2. first entry below the frequency threshold regardless of age,
//  3. the sort head (least frequent overall).
func (s *shard) lfruVictimLocked(now int64) *node {
	if s.count == 0 {
		return nil
	}
	candidates := make([]*node, 0, s.count)
	for _, n := range s.m {
		candidates = append(candidates, n)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].item, candidates[j].item
		if a.Frequency != b.Frequency {
			return a.Frequency < b.Frequency
		}
		return a.LastAccess > b.LastAccess
	})

	timeThreshold := int64(s.opt.TimeThreshold.Seconds())
	for _, n := range candidates {
		age := now - n.item.LastAccess
		if n.item.Frequency < s.opt.FrequencyThreshold && age > timeThreshold {
			return n
		}
	}
	for _, n := range candidates {
		if n.item.Frequency < s.opt.FrequencyThreshold {
			return n
		}
	}
	return candidates[0]
}
