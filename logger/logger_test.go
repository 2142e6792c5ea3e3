package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WriteAndQuery(t *testing.T) {
	t.Parallel()

	l, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	l.Info(LevelSystem, "", "server started")
	l.Warn(LevelApplication, "shop", "slow query")
	l.Error(LevelApplication, "shop", "write failed")
	l.Info(LevelApplication, "other", "unrelated")

	system, err := l.SystemLogs()
	require.NoError(t, err)
	require.Len(t, system, 1)
	assert.Equal(t, "server started", system[0].Message)
	assert.Equal(t, "system", system[0].Database, "empty database defaults to system scope")

	app, err := l.ApplicationLogs("shop")
	require.NoError(t, err)
	require.Len(t, app, 2)
	assert.Equal(t, TypeWarn, app[0].Type)
	assert.Equal(t, TypeError, app[1].Type)
	assert.False(t, app[1].Timestamp.Before(app[0].Timestamp), "entries sort by timestamp")
}

func TestLogger_EntryShape(t *testing.T) {
	t.Parallel()

	l, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	l.Info(LevelApplication, "db", "hello")
	entries, err := l.Logs("db", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, LevelApplication, e.Level)
	assert.Equal(t, TypeInfo, e.Type)
	assert.Equal(t, "db", e.Database)
	assert.Equal(t, "hello", e.Message)
	assert.False(t, e.Timestamp.IsZero())
}

func TestLogger_CleanupIgnoresCurrent(t *testing.T) {
	t.Parallel()

	l, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	l.Info(LevelSystem, "", "keep me")
	require.NoError(t, l.CleanupOldLogs())

	entries, err := l.SystemLogs()
	require.NoError(t, err)
	assert.Len(t, entries, 1, "cleanup never touches current.log")
}
