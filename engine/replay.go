package engine

import (
	"fmt"
	"time"

	"github.com/tinycache/tinycache/wal"
)

// replayer adapts the engine to wal.Replayer. Recovery goes through the
// cache-only apply path: replayed operations must never be logged again.
type replayer struct{ e *Engine }

// Apply mutates the in-memory cache for one recovered operation.
func (r replayer) Apply(database string, op wal.Operation) error {
	e := r.e
	switch op.Kind() {
	case wal.OpCreate:
		// A nil TTL was logged for a non-positive duration: no expiry.
		e.cacheFor(database).InsertKeyValue(database, op.Key, op.Value, op.TTL.Duration())
	case wal.OpUpdate:
		var ttl time.Duration
		if op.TTL != nil {
			ttl = op.TTL.Duration()
		}
		e.cacheFor(database).UpdateKeyValue(database, op.Key, op.Value, ttl)
	case wal.OpDelete:
		e.cacheFor(database).DeleteKeyValue(database, op.Key)
	case wal.OpIncrement:
		e.cacheFor(database).IncrKeyValue(database, op.Key, op.Amount)
	case wal.OpDecrement:
		e.cacheFor(database).IncrKeyValue(database, op.Key, -op.Amount)
	case wal.OpDropDb:
		e.dropInMemory(database)
	default:
		return fmt.Errorf("engine: unknown WAL operation kind %d", op.Kind())
	}
	return nil
}
