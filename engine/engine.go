// Package engine orchestrates every mutation as WAL-append-then-cache-write
// over a registry of named databases. Durability always precedes visibility:
// a failed WAL append prevents the in-memory change.
package engine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tinycache/tinycache/cache"
	"github.com/tinycache/tinycache/config"
	"github.com/tinycache/tinycache/logger"
	"github.com/tinycache/tinycache/wal"
)

// DefaultDatabase exists from startup; clients that never create another
// database land here.
const DefaultDatabase = "default"

// fallbackTTL applies when no explicit TTL is given and the configured
// default is zero.
const fallbackTTL = 7 * 24 * time.Hour

// DatabaseStats is the DBSTATS payload for one database.
type DatabaseStats struct {
	EntryCount     int    `json:"entry_count"`
	EvictionPolicy string `json:"eviction_policy"`
}

// Engine binds the database registry, the persistence manager, and the
// logger. All methods are safe for concurrent use.
type Engine struct {
	cfg         *config.Config
	persistence *wal.Manager
	log         *logger.Logger

	mu        sync.RWMutex
	databases map[string]*cache.Cache

	curMu     sync.RWMutex
	currentDB string

	cacheMetrics cache.Metrics
	clock        cache.Clock
}

// Option adjusts an Engine at construction time.
type Option func(*Engine)

// WithCacheMetrics plugs a metrics sink into every database cache.
func WithCacheMetrics(m cache.Metrics) Option { return func(e *Engine) { e.cacheMetrics = m } }

// WithClock pins the cache clock; used by tests.
func WithClock(c cache.Clock) Option { return func(e *Engine) { e.clock = c } }

// New builds an engine over the given persistence manager and creates the
// default database.
func New(cfg *config.Config, persistence *wal.Manager, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		persistence: persistence,
		log:         log,
		databases:   make(map[string]*cache.Cache),
	}
	for _, o := range opts {
		o(e)
	}
	e.cacheFor(DefaultDatabase)
	return e
}

// RecoverAll replays every database's WAL through the cache-only apply path.
func (e *Engine) RecoverAll() error {
	if e.log != nil {
		e.log.Info(logger.LevelSystem, "", "initiating database recovery through persistence manager")
	}
	return e.persistence.RecoverAll(replayer{e})
}

// SetCurrentDatabase records the database context of the request being
// served; the logger uses it to scope entries.
func (e *Engine) SetCurrentDatabase(database string) {
	e.curMu.Lock()
	e.currentDB = database
	e.curMu.Unlock()
}

// CurrentDatabase returns the last database context set.
func (e *Engine) CurrentDatabase() string {
	e.curMu.RLock()
	defer e.curMu.RUnlock()
	return e.currentDB
}

// cacheFor returns the database's cache, creating it on first reference.
func (e *Engine) cacheFor(database string) *cache.Cache {
	e.mu.RLock()
	c, ok := e.databases[database]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.databases[database]; ok {
		return c
	}
	c = cache.New(cache.Options{
		MaxSize: e.cfg.MaxEntries,
		Shards:  e.cfg.WorkerThreads,
		Policy:  e.cfg.EvictionPolicy,
		Metrics: e.cacheMetrics,
		Clock:   e.clock,
	})
	e.databases[database] = c
	return c
}

// defaultTTL is the expiry applied by CreateKeyValue.
func (e *Engine) defaultTTL() time.Duration {
	if e.cfg.DefaultTTLSecs > 0 {
		return time.Duration(e.cfg.DefaultTTLSecs) * time.Second
	}
	return fallbackTTL
}

// ---- mutating operations: WAL first, then cache ----

// CreateKeyValue stores value under the configured default TTL.
func (e *Engine) CreateKeyValue(database, key string, value cache.DataValue) error {
	ttl := e.defaultTTL()
	if err := e.persistence.LogOperation(database, wal.CreateOp(key, value, wal.TTLFromDuration(ttl))); err != nil {
		return err
	}
	e.cacheFor(database).InsertKeyValue(database, key, value, ttl)
	return nil
}

// CreateKeyValueWithTTL stores value with an explicit TTL.
func (e *Engine) CreateKeyValueWithTTL(database, key string, value cache.DataValue, ttl time.Duration) error {
	if err := e.persistence.LogOperation(database, wal.CreateOp(key, value, wal.TTLFromDuration(ttl))); err != nil {
		return err
	}
	e.cacheFor(database).InsertKeyValue(database, key, value, ttl)
	return nil
}

// UpdateKeyValue replaces an existing value, returning the previous one.
func (e *Engine) UpdateKeyValue(database, key string, value cache.DataValue, ttl time.Duration) (cache.DataValue, bool, error) {
	if err := e.persistence.LogOperation(database, wal.UpdateOp(key, value, wal.TTLFromDuration(ttl))); err != nil {
		return cache.DataValue{}, false, err
	}
	prev, ok := e.cacheFor(database).UpdateKeyValue(database, key, value, ttl)
	return prev, ok, nil
}

// DeleteKeyValue removes a key and reports whether it existed.
func (e *Engine) DeleteKeyValue(database, key string) (bool, error) {
	if err := e.persistence.LogOperation(database, wal.DeleteOp(key)); err != nil {
		return false, err
	}
	_, ok := e.cacheFor(database).DeleteKeyValue(database, key)
	return ok, nil
}

// IncrementKeyValue adds amount to a numeric value, returning the new number.
// The bool is false when the key is missing or not numeric.
func (e *Engine) IncrementKeyValue(database, key string, amount float64) (float64, bool, error) {
	if err := e.persistence.LogOperation(database, wal.IncrementOp(key, amount)); err != nil {
		return 0, false, err
	}
	v, ok := e.cacheFor(database).IncrKeyValue(database, key, amount)
	return v, ok, nil
}

// DecrementKeyValue subtracts amount from a numeric value.
func (e *Engine) DecrementKeyValue(database, key string, amount float64) (float64, bool, error) {
	if err := e.persistence.LogOperation(database, wal.DecrementOp(key, amount)); err != nil {
		return 0, false, err
	}
	v, ok := e.cacheFor(database).IncrKeyValue(database, key, -amount)
	return v, ok, nil
}

// DropDatabase logs the drop, clears every shard, and removes the database
// from the registry.
func (e *Engine) DropDatabase(database string) error {
	if err := e.persistence.LogOperation(database, wal.DropDbOp()); err != nil {
		return err
	}
	e.dropInMemory(database)
	return nil
}

func (e *Engine) dropInMemory(database string) {
	e.mu.Lock()
	c, ok := e.databases[database]
	delete(e.databases, database)
	e.mu.Unlock()
	if ok {
		c.Clear()
	}
}

// ---- read-only operations: no WAL ----

// GetKeyValue returns the live value for (database, key).
func (e *Engine) GetKeyValue(database, key string) (cache.DataValue, bool) {
	return e.cacheFor(database).GetKeyValue(database, key)
}

// Stats returns entry count and policy for one database, or false when the
// database does not exist.
func (e *Engine) Stats(database string) (DatabaseStats, bool) {
	e.mu.RLock()
	c, ok := e.databases[database]
	e.mu.RUnlock()
	if !ok {
		return DatabaseStats{}, false
	}
	return DatabaseStats{EntryCount: c.Len(), EvictionPolicy: c.Policy()}, true
}

// AllStats maps every known database to its stats.
func (e *Engine) AllStats() map[string]DatabaseStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]DatabaseStats, len(e.databases))
	for name, c := range e.databases {
		out[name] = DatabaseStats{EntryCount: c.Len(), EvictionPolicy: c.Policy()}
	}
	return out
}

// ViewData renders every key-value entry of a database as a JSON object
// keyed by logical key, each value tagged with its variant and augmented
// with expiry and creation time.
func (e *Engine) ViewData(database string) map[string]any {
	out := make(map[string]any)
	for _, entry := range e.cacheFor(database).Entries(database) {
		if entry.Key.Type != cache.EntryKeyValue {
			continue
		}
		var expiry any
		if entry.Item.Expiry != 0 {
			expiry = entry.Item.Expiry
		}
		record := map[string]any{
			"expiry":     expiry,
			"created_at": entry.Item.CreatedAt,
		}
		switch entry.Item.Value.Kind() {
		case cache.KindString:
			s, _ := entry.Item.Value.Str()
			record["type"] = "String"
			record["value"] = s
		case cache.KindList:
			l, _ := entry.Item.Value.List()
			record["type"] = "List"
			record["value"] = l
		case cache.KindSet:
			members, _ := entry.Item.Value.SetMembers()
			record["type"] = "Set"
			record["value"] = members
		case cache.KindJSON:
			raw, _ := entry.Item.Value.JSON()
			record["type"] = "Json"
			record["value"] = raw
		}
		out[entry.Key.Name] = record
	}
	return out
}

// JSONDocuments returns every Json-valued document in a database; the
// query engine's working set starts from this.
func (e *Engine) JSONDocuments(database string) []json.RawMessage {
	var docs []json.RawMessage
	for _, entry := range e.cacheFor(database).Entries(database) {
		if raw, ok := entry.Item.Value.JSON(); ok {
			docs = append(docs, raw)
		}
	}
	return docs
}

// JSONDocumentsByKey returns the Json documents stored under one logical key.
func (e *Engine) JSONDocumentsByKey(database, key string) []json.RawMessage {
	var docs []json.RawMessage
	for _, entry := range e.cacheFor(database).Entries(database) {
		if entry.Key.Name != key {
			continue
		}
		if raw, ok := entry.Item.Value.JSON(); ok {
			docs = append(docs, raw)
		}
	}
	return docs
}
