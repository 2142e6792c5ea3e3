// Package logger records system and application events as queryable JSON
// lines under <data_dir>/.logs, mirroring them to a zerolog console writer.
// The file format is what VIEW_LOGS and VIEW_SYSTEM_LOGS read back.
package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level scopes an entry to the system or to application (per-database) activity.
type Level string

const (
	LevelSystem      Level = "System"
	LevelApplication Level = "Application"
)

// Type is the severity of an entry.
type Type string

const (
	TypeInfo  Type = "Info"
	TypeWarn  Type = "Warn"
	TypeError Type = "Error"
)

// Entry is one persisted log record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Type      Type      `json:"log_type"`
	Database  string    `json:"database"`
	Message   string    `json:"message"`
}

const (
	currentLogName = "current.log"
	maxFileSize    = 10 << 20 // rotate current.log at 10MB
	retention      = 30 * 24 * time.Hour
	maxTotalSize   = 100 << 20 // total on-disk budget for rotated logs
)

// Logger appends entries to .logs/current.log, rotating by size and
// cleaning up rotated files by age and total size.
type Logger struct {
	mu      sync.Mutex
	dir     string
	f       *os.File
	size    int64
	console zerolog.Logger
}

// New opens (or creates) the log directory under dataDir.
func New(dataDir string) (*Logger, error) {
	dir := filepath.Join(dataDir, ".logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	path := filepath.Join(dir, currentLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	console := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	return &Logger{dir: dir, f: f, size: info.Size(), console: console}, nil
}

// Info records an informational entry.
func (l *Logger) Info(level Level, database, message string) {
	l.append(level, TypeInfo, database, message)
}

// Warn records a warning entry.
func (l *Logger) Warn(level Level, database, message string) {
	l.append(level, TypeWarn, database, message)
}

// Error records an error entry.
func (l *Logger) Error(level Level, database, message string) {
	l.append(level, TypeError, database, message)
}

func (l *Logger) append(level Level, typ Type, database, message string) {
	if database == "" {
		database = "system"
	}
	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Type:      typ,
		Database:  database,
		Message:   message,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	if l.size >= maxFileSize {
		if err := l.rotateLocked(); err != nil {
			l.console.Error().Err(err).Msg("log rotation failed")
		}
	}
	if l.f != nil {
		if n, err := l.f.Write(line); err == nil {
			l.size += int64(n)
		}
	}
	l.mu.Unlock()

	ev := l.console.Info()
	switch typ {
	case TypeWarn:
		ev = l.console.Warn()
	case TypeError:
		ev = l.console.Error()
	}
	ev.Str("scope", string(level)).Str("database", database).Msg(message)
}

// rotateLocked renames current.log with a timestamp and opens a fresh file.
func (l *Logger) rotateLocked() error {
	if err := l.f.Close(); err != nil {
		return err
	}
	stamp := time.Now().Format("20060102_150405")
	oldPath := filepath.Join(l.dir, currentLogName)
	if err := os.Rename(oldPath, filepath.Join(l.dir, fmt.Sprintf("log_%s.log", stamp))); err != nil {
		return err
	}
	f, err := os.OpenFile(oldPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.f = f
	l.size = 0
	return nil
}

// StartCleanup runs a daily sweep of rotated log files until ctx is done.
func (l *Logger) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.CleanupOldLogs(); err != nil {
					l.console.Error().Err(err).Msg("log cleanup failed")
				}
			}
		}
	}()
}

// CleanupOldLogs deletes rotated files past the retention period, and the
// oldest files while the rotated set exceeds the total size budget.
func (l *Logger) CleanupOldLogs() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	type rotated struct {
		path     string
		modified time.Time
		size     int64
	}
	var files []rotated
	var total int64
	for _, e := range entries {
		if e.Name() == currentLogName || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, rotated{filepath.Join(l.dir, e.Name()), info.ModTime(), info.Size()})
		total += info.Size()
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modified.Before(files[j].modified) })

	threshold := time.Now().Add(-retention)
	for _, f := range files {
		if f.modified.Before(threshold) || total > maxTotalSize {
			if err := os.Remove(f.path); err == nil {
				total -= f.size
			}
		}
	}
	return nil
}

// Logs scans every log file and returns entries filtered by database and/or
// level, sorted by timestamp. Empty filters match everything.
func (l *Logger) Logs(database string, level Level) ([]Entry, error) {
	l.mu.Lock()
	if l.f != nil {
		// Make everything appended so far visible to the read below.
		_ = l.f.Sync()
	}
	l.mu.Unlock()

	dirEntries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, de := range dirEntries {
		if !strings.HasSuffix(de.Name(), ".log") {
			continue
		}
		f, err := os.Open(filepath.Join(l.dir, de.Name()))
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var entry Entry
			if json.Unmarshal(sc.Bytes(), &entry) != nil {
				continue
			}
			if database != "" && entry.Database != database {
				continue
			}
			if level != "" && entry.Level != level {
				continue
			}
			out = append(out, entry)
		}
		f.Close()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ApplicationLogs returns the application-scoped entries of one database.
func (l *Logger) ApplicationLogs(database string) ([]Entry, error) {
	return l.Logs(database, LevelApplication)
}

// SystemLogs returns all system-scoped entries.
func (l *Logger) SystemLogs() ([]Entry, error) {
	return l.Logs("", LevelSystem)
}

// Console returns the zerolog mirror for callers that log operational events
// directly.
func (l *Logger) Console() zerolog.Logger { return l.console }

// Close flushes and closes the current log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
