package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinycache/tinycache/cache"
	"github.com/tinycache/tinycache/config"
	"github.com/tinycache/tinycache/wal"
)

func testEngine(t *testing.T, dataDir string, mutate func(*config.Config)) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.WALSyncPolicy = wal.SyncAlways
	cfg.WorkerThreads = 2
	if mutate != nil {
		mutate(&cfg)
	}
	pm, err := wal.NewManager(cfg.WALConfig(dataDir), nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return New(&cfg, pm, nil)
}

func TestEngine_CreateAndGet(t *testing.T) {
	t.Parallel()

	e := testEngine(t, t.TempDir(), nil)
	require.NoError(t, e.CreateKeyValue("default", "foo", cache.JSONValue(json.RawMessage(`{"v":1}`))))

	v, ok := e.GetKeyValue("default", "foo")
	require.True(t, ok)
	raw, ok := v.JSON()
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(raw))
}

func TestEngine_UpdateDeleteIncrement(t *testing.T) {
	t.Parallel()

	e := testEngine(t, t.TempDir(), nil)
	require.NoError(t, e.CreateKeyValue("default", "n", cache.JSONValue(json.RawMessage(`"10"`))))

	prev, found, err := e.UpdateKeyValue("default", "n", cache.JSONValue(json.RawMessage(`"20"`)), 0)
	require.NoError(t, err)
	require.True(t, found)
	raw, _ := prev.JSON()
	assert.Equal(t, `"10"`, string(raw))

	_, found, err = e.UpdateKeyValue("default", "missing", cache.StringValue("x"), 0)
	require.NoError(t, err)
	assert.False(t, found)

	got, found, err := e.IncrementKeyValue("default", "n", 2.5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 22.5, got)

	got, found, err = e.DecrementKeyValue("default", "n", 2.5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 20.0, got)

	_, found, err = e.IncrementKeyValue("default", "missing", 1)
	require.NoError(t, err)
	assert.False(t, found)

	deleted, err := e.DeleteKeyValue("default", "n")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = e.DeleteKeyValue("default", "n")
	require.NoError(t, err)
	assert.False(t, deleted)
}

// Writing a sequence, restarting, and replaying reconstructs the same
// observable state: a deleted key stays gone, a live key comes back.
func TestEngine_RecoveryRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := testEngine(t, dir, nil)
	require.NoError(t, e.CreateKeyValue("default", "a", cache.JSONValue(json.RawMessage(`{"v":1}`))))
	require.NoError(t, e.CreateKeyValue("default", "b", cache.JSONValue(json.RawMessage(`{"v":2}`))))
	deleted, err := e.DeleteKeyValue("default", "a")
	require.NoError(t, err)
	require.True(t, deleted)

	// "Restart": a fresh engine over the same data directory.
	e2 := testEngine(t, dir, nil)
	require.NoError(t, e2.RecoverAll())

	_, ok := e2.GetKeyValue("default", "a")
	assert.False(t, ok, "deleted key must stay deleted after recovery")

	v, ok := e2.GetKeyValue("default", "b")
	require.True(t, ok, "live key must be recovered")
	raw, _ := v.JSON()
	assert.JSONEq(t, `{"v":2}`, string(raw))
}

// Replay must not append to the WAL: recovering twice from the same segments
// yields the same state, not a doubled log.
func TestEngine_ReplayDoesNotRelog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := testEngine(t, dir, nil)
	require.NoError(t, e.CreateKeyValue("default", "a", cache.StringValue("1")))

	cfg := config.Default()
	cfg.WALSyncPolicy = wal.SyncAlways
	cfg.WorkerThreads = 2
	pm, err := wal.NewManager(cfg.WALConfig(dir), nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	counter := &countingReplayer{}
	require.NoError(t, pm.RecoverAll(counter))
	first := counter.n

	// The engine's own replay over the same WAL must leave it unchanged.
	require.NoError(t, New(&cfg, pm, nil).RecoverAll())

	counter2 := &countingReplayer{}
	require.NoError(t, pm.RecoverAll(counter2))
	assert.Equal(t, first, counter2.n, "a WAL replayed twice must contain the same entries")
}

type countingReplayer struct{ n int }

func (c *countingReplayer) Apply(string, wal.Operation) error {
	c.n++
	return nil
}

func TestEngine_DropDatabase(t *testing.T) {
	t.Parallel()

	e := testEngine(t, t.TempDir(), nil)
	require.NoError(t, e.CreateKeyValue("scratch", "a", cache.StringValue("1")))
	_, ok := e.Stats("scratch")
	require.True(t, ok)

	require.NoError(t, e.DropDatabase("scratch"))
	_, ok = e.Stats("scratch")
	assert.False(t, ok, "dropped database must leave the registry")
	_, ok = e.GetKeyValue("scratch", "a")
	assert.False(t, ok)
}

func TestEngine_StatsAndDefaultDatabase(t *testing.T) {
	t.Parallel()

	e := testEngine(t, t.TempDir(), nil)

	stats, ok := e.Stats(DefaultDatabase)
	require.True(t, ok, "the default database exists from startup")
	assert.Equal(t, 0, stats.EntryCount)
	assert.Equal(t, cache.PolicyLFRU, stats.EvictionPolicy)

	require.NoError(t, e.CreateKeyValue(DefaultDatabase, "a", cache.StringValue("1")))
	all := e.AllStats()
	assert.Equal(t, 1, all[DefaultDatabase].EntryCount)
}

func TestEngine_ViewDataShape(t *testing.T) {
	t.Parallel()

	e := testEngine(t, t.TempDir(), nil)
	require.NoError(t, e.CreateKeyValue("default", "doc", cache.JSONValue(json.RawMessage(`{"v":1}`))))

	data := e.ViewData("default")
	require.Contains(t, data, "doc")
	record := data["doc"].(map[string]any)
	assert.Equal(t, "Json", record["type"])
	assert.Contains(t, record, "expiry")
	assert.Contains(t, record, "created_at")
	assert.NotNil(t, record["expiry"], "default TTL must set an expiry")
}

// A zero configured default TTL falls back to seven days.
func TestEngine_ZeroDefaultTTLFallsBack(t *testing.T) {
	t.Parallel()

	e := testEngine(t, t.TempDir(), func(cfg *config.Config) { cfg.DefaultTTLSecs = 0 })
	require.NoError(t, e.CreateKeyValue("default", "a", cache.StringValue("1")))

	record := e.ViewData("default")["a"].(map[string]any)
	expiry, ok := record["expiry"].(int64)
	require.True(t, ok)
	want := time.Now().Add(7 * 24 * time.Hour).Unix()
	assert.InDelta(t, want, expiry, 5, "fallback expiry is about seven days out")
}

func TestEngine_JSONDocuments(t *testing.T) {
	t.Parallel()

	e := testEngine(t, t.TempDir(), nil)
	require.NoError(t, e.CreateKeyValue("default", "d1", cache.JSONValue(json.RawMessage(`{"age":"20"}`))))
	require.NoError(t, e.CreateKeyValue("default", "d2", cache.JSONValue(json.RawMessage(`{"age":"30"}`))))
	require.NoError(t, e.CreateKeyValue("default", "s", cache.StringValue("not a doc")))

	docs := e.JSONDocuments("default")
	assert.Len(t, docs, 2, "only Json values join the working set")

	byKey := e.JSONDocumentsByKey("default", "d1")
	require.Len(t, byKey, 1)
	assert.JSONEq(t, `{"age":"20"}`, string(byKey[0]))
}
