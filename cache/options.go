package cache

import (
	"runtime"
	"time"

	"github.com/tinycache/tinycache/internal/util"
)

// Eviction policy names. Stored as strings because they travel through the
// configuration file and DBSTATS output unchanged.
const (
	PolicyLFRU = "LFRU"
	PolicyLRU  = "LRU"
	PolicyLFU  = "LFU"
)

// Clock provides time in Unix seconds; useful for deterministic tests.
type Clock interface{ NowUnix() int64 }

type realClock struct{}

func (realClock) NowUnix() int64 { return time.Now().Unix() }

// Options configures a per-database cache. Zero values are safe; defaults
// are applied in New():
//   - MaxSize <= 0            => 1200 entries
//   - Shards <= 0             => ~2*GOMAXPROCS, rounded up to a power of two
//   - empty Policy            => LFRU
//   - FrequencyThreshold == 0 => 5
//   - TimeThreshold == 0      => 1 hour
//   - nil Metrics             => NoopMetrics
//   - nil Clock               => wall clock
type Options struct {
	// MaxSize is the total entry budget across all shards; each shard caps
	// at MaxSize / Shards.
	MaxSize int

	// Shards is the shard count, rounded up to the next power of two so
	// shard selection can mask the key hash.
	Shards int

	// Policy selects the eviction strategy: PolicyLFRU, PolicyLRU, or PolicyLFU.
	Policy string

	// FrequencyThreshold and TimeThreshold parameterize LFRU: an entry is a
	// preferred victim when its frequency is below the former and it has been
	// idle longer than the latter.
	FrequencyThreshold uint32
	TimeThreshold      time.Duration

	Metrics Metrics
	Clock   Clock
}

func (o *Options) applyDefaults() {
	if o.MaxSize <= 0 {
		o.MaxSize = 1200
	}
	if o.Shards <= 0 {
		o.Shards = 2 * runtime.GOMAXPROCS(0)
	}
	o.Shards = int(util.NextPow2(uint64(o.Shards)))
	if o.Policy == "" {
		o.Policy = PolicyLFRU
	}
	if o.FrequencyThreshold == 0 {
		o.FrequencyThreshold = 5
	}
	if o.TimeThreshold == 0 {
		o.TimeThreshold = time.Hour
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
}
