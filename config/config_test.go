package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinycache/tinycache/cache"
	"github.com/tinycache/tinycache/wal"
)

func TestLoadOrCreate_WritesDefaultsOnFirstBoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Admin)
	assert.Equal(t, cache.PolicyLFRU, cfg.EvictionPolicy)
	assert.Equal(t, wal.SyncEverySec, cfg.WALSyncPolicy)

	_, err = os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err, "first boot persists the defaults")
}

func TestLoadOrCreate_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := Default()
	cfg.Port = "7000"
	cfg.MaxEntries = 99
	cfg.WALCompressSegments = true
	require.NoError(t, cfg.Save(dir))

	loaded, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, "7000", loaded.Port)
	assert.Equal(t, 99, loaded.MaxEntries)
	assert.True(t, loaded.WALCompressSegments)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.WorkerThreads = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.WorkerThreads = runtime.NumCPU()*2 + 1
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.EvictionPolicy = "RANDOM"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.WALSyncPolicy = "sometimes"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.MaxEntries = 0
	assert.Error(t, bad.Validate())
}

func TestWALConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	wcfg := cfg.WALConfig("/srv/tinycache")
	assert.Equal(t, filepath.Join("/srv/tinycache", "data"), wcfg.Dir)
	assert.Equal(t, cfg.WALSegmentSize, wcfg.SegmentSize)
	assert.Equal(t, cfg.WALMaxSegments, wcfg.MaxSegments)
}
