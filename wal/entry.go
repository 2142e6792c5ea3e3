// Package wal implements per-database write-ahead logging: append-only JSON
// segments with rotation, sync policies, retention, and chronological replay.
package wal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tinycache/tinycache/cache"
)

// OpKind discriminates the logged operation.
type OpKind uint8

const (
	OpCreate OpKind = iota + 1
	OpUpdate
	OpDelete
	OpIncrement
	OpDecrement
	OpDropDb
)

// TTL is the wire form of a relative time-to-live: {"secs":n,"nanos":m}.
type TTL struct {
	Secs  uint64 `json:"secs"`
	Nanos uint32 `json:"nanos"`
}

// TTLFromDuration converts a positive duration into its wire form.
// Non-positive durations map to nil (no expiry).
func TTLFromDuration(d time.Duration) *TTL {
	if d <= 0 {
		return nil
	}
	return &TTL{Secs: uint64(d / time.Second), Nanos: uint32(d % time.Second)}
}

// Duration converts the wire form back into a duration.
func (t *TTL) Duration() time.Duration {
	if t == nil {
		return 0
	}
	return time.Duration(t.Secs)*time.Second + time.Duration(t.Nanos)
}

// Operation is one logged mutation. The zero Operation is invalid; use the
// constructors below.
type Operation struct {
	kind   OpKind
	Key    string
	Value  cache.DataValue
	TTL    *TTL
	Amount float64
}

// CreateOp logs a key creation. ttl nil means no expiry was recorded.
func CreateOp(key string, value cache.DataValue, ttl *TTL) Operation {
	return Operation{kind: OpCreate, Key: key, Value: value, TTL: ttl}
}

// UpdateOp logs a value replacement.
func UpdateOp(key string, value cache.DataValue, ttl *TTL) Operation {
	return Operation{kind: OpUpdate, Key: key, Value: value, TTL: ttl}
}

// DeleteOp logs a key removal.
func DeleteOp(key string) Operation { return Operation{kind: OpDelete, Key: key} }

// IncrementOp logs a numeric increment.
func IncrementOp(key string, amount float64) Operation {
	return Operation{kind: OpIncrement, Key: key, Amount: amount}
}

// DecrementOp logs a numeric decrement.
func DecrementOp(key string, amount float64) Operation {
	return Operation{kind: OpDecrement, Key: key, Amount: amount}
}

// DropDbOp logs a whole-database drop.
func DropDbOp() Operation { return Operation{kind: OpDropDb} }

// Kind returns the operation discriminator.
func (o Operation) Kind() OpKind { return o.kind }

type kvPayload struct {
	Key   string          `json:"key"`
	Value cache.DataValue `json:"value"`
	TTL   *TTL            `json:"ttl"`
}

type amountPayload struct {
	Key    string  `json:"key"`
	Amount float64 `json:"amount"`
}

// MarshalJSON encodes the externally tagged operation form:
// {"Create":{...}} | {"Update":{...}} | {"Delete":{"key":k}} |
// {"Increment":{"key":k,"amount":a}} | {"Decrement":{...}} | "DropDb".
func (o Operation) MarshalJSON() ([]byte, error) {
	switch o.kind {
	case OpCreate:
		return json.Marshal(map[string]kvPayload{"Create": {o.Key, o.Value, o.TTL}})
	case OpUpdate:
		return json.Marshal(map[string]kvPayload{"Update": {o.Key, o.Value, o.TTL}})
	case OpDelete:
		return json.Marshal(map[string]map[string]string{"Delete": {"key": o.Key}})
	case OpIncrement:
		return json.Marshal(map[string]amountPayload{"Increment": {o.Key, o.Amount}})
	case OpDecrement:
		return json.Marshal(map[string]amountPayload{"Decrement": {o.Key, o.Amount}})
	case OpDropDb:
		return json.Marshal("DropDb")
	default:
		return nil, fmt.Errorf("wal: cannot marshal zero Operation")
	}
}

// UnmarshalJSON decodes both the object-tagged and the bare-string ("DropDb")
// operation forms.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		if unit != "DropDb" {
			return fmt.Errorf("wal: unknown unit operation %q", unit)
		}
		*o = DropDbOp()
		return nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("wal: expected exactly one operation tag, got %d", len(tagged))
	}
	for tag, payload := range tagged {
		switch tag {
		case "Create", "Update":
			var p kvPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			if tag == "Create" {
				*o = CreateOp(p.Key, p.Value, p.TTL)
			} else {
				*o = UpdateOp(p.Key, p.Value, p.TTL)
			}
		case "Delete":
			var p struct {
				Key string `json:"key"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			*o = DeleteOp(p.Key)
		case "Increment", "Decrement":
			var p amountPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			if tag == "Increment" {
				*o = IncrementOp(p.Key, p.Amount)
			} else {
				*o = DecrementOp(p.Key, p.Amount)
			}
		default:
			return fmt.Errorf("wal: unknown operation tag %q", tag)
		}
	}
	return nil
}

// Entry is one WAL record: the owning database, the operation, and the
// append time in Unix milliseconds.
type Entry struct {
	Database  string    `json:"database"`
	Operation Operation `json:"operation"`
	Timestamp int64     `json:"timestamp"`
}
