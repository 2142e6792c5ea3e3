package wal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinycache/tinycache/cache"
)

// The entry format is the recovery contract: one JSON object per line with
// an externally tagged operation.
func TestEntry_WireForm(t *testing.T) {
	t.Parallel()

	entry := Entry{
		Database:  "default",
		Operation: CreateOp("k", cache.JSONValue(json.RawMessage(`{"v":1}`)), TTLFromDuration(60*time.Second)),
		Timestamp: 1700000000000,
	}
	b, err := json.Marshal(&entry)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"database":"default","operation":{"Create":{"key":"k","value":{"Json":{"v":1}},"ttl":{"secs":60,"nanos":0}}},"timestamp":1700000000000}`,
		string(b))
}

func TestOperation_DropDbIsBareString(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(DropDbOp())
	require.NoError(t, err)
	assert.Equal(t, `"DropDb"`, string(b))

	var op Operation
	require.NoError(t, json.Unmarshal([]byte(`"DropDb"`), &op))
	assert.Equal(t, OpDropDb, op.Kind())

	assert.Error(t, json.Unmarshal([]byte(`"TruncateDb"`), &op))
}

func TestOperation_RoundTrip(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		CreateOp("a", cache.StringValue("v"), nil),
		CreateOp("b", cache.ListValue([]string{"x"}), TTLFromDuration(time.Minute)),
		UpdateOp("c", cache.JSONValue(json.RawMessage(`3`)), nil),
		DeleteOp("d"),
		IncrementOp("e", 2.5),
		DecrementOp("f", 1),
		DropDbOp(),
	}
	for _, op := range ops {
		b, err := json.Marshal(op)
		require.NoError(t, err)
		var back Operation
		require.NoError(t, json.Unmarshal(b, &back), "payload: %s", b)
		assert.Equal(t, op.Kind(), back.Kind())
		assert.Equal(t, op.Key, back.Key)
		assert.Equal(t, op.Amount, back.Amount)
	}
}

func TestTTL_Conversion(t *testing.T) {
	t.Parallel()

	assert.Nil(t, TTLFromDuration(0))
	assert.Nil(t, TTLFromDuration(-time.Second))

	ttl := TTLFromDuration(90 * time.Second)
	require.NotNil(t, ttl)
	assert.Equal(t, uint64(90), ttl.Secs)
	assert.Equal(t, 90*time.Second, ttl.Duration())

	var none *TTL
	assert.Equal(t, time.Duration(0), none.Duration())
}

// Absent TTLs must encode as an explicit null so older segments stay readable.
func TestOperation_NilTTLEncodesNull(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(CreateOp("k", cache.StringValue("v"), nil))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ttl":null`)
}
