package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sync policies for segment writers.
const (
	SyncAlways   = "always"   // sync after every append (slow, safe)
	SyncEverySec = "everysec" // sync at most once per second (lose <= 1s)
	SyncNo       = "no"       // leave flushing to the OS
)

// Metrics exposes WAL activity hooks; NoopMetrics is the default.
type Metrics interface {
	Append()
	Rotate()
}

// NoopMetrics ignores all WAL metric calls.
type NoopMetrics struct{}

func (NoopMetrics) Append() {}
func (NoopMetrics) Rotate() {}

// SegmentWriter appends entries for a single database to a rolling file set.
// Filenames encode the database and a millisecond creation stamp
// (wal-<db>-<ms>.log) so lexicographic order equals chronological order.
//
// One lock serializes append+sync+rotate: only one appender is ever in
// flight per database.
type SegmentWriter struct {
	mu sync.Mutex

	f        *os.File
	path     string
	dir      string
	database string

	size     int64
	opCount  int64
	limit    int64
	policy   string
	lastSync int64 // Unix seconds of the last explicit sync
	compress bool

	metrics Metrics
	now     func() time.Time
}

func newSegmentWriter(dir, database string, limit int64, policy string, compress bool, m Metrics) (*SegmentWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create segment dir: %w", err)
	}
	if m == nil {
		m = NoopMetrics{}
	}
	w := &SegmentWriter{
		dir:      dir,
		database: database,
		limit:    limit,
		policy:   policy,
		compress: compress,
		metrics:  m,
		now:      time.Now,
	}
	if err := w.openSegmentLocked(); err != nil {
		return nil, err
	}
	w.lastSync = w.now().Unix()
	return w, nil
}

// Append serializes entry as a single JSON line, writes it, syncs according
// to the policy, and rotates when the segment reached its size limit.
func (w *SegmentWriter) Append(entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("wal: serialize entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("wal: append to %s: %w", w.path, err)
	}
	w.size += int64(len(line))
	w.opCount++
	w.metrics.Append()

	switch w.policy {
	case SyncAlways:
		if err := w.f.Sync(); err != nil {
			return fmt.Errorf("wal: sync %s: %w", w.path, err)
		}
		w.lastSync = w.now().Unix()
	case SyncEverySec:
		if now := w.now().Unix(); now > w.lastSync {
			// Sync failures here only surface on the next attempt.
			if err := w.f.Sync(); err == nil {
				w.lastSync = now
			}
		}
	case SyncNo:
		// OS decides.
	default:
		// Unknown policy: sync defensively.
		_ = w.f.Sync()
	}

	if w.size >= w.limit {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Sync forces a full sync of the current segment.
func (w *SegmentWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Close syncs and closes the current segment.
func (w *SegmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

// rotateLocked seals the current segment and swaps in a fresh one. The old
// file is fully synced before the swap; with compression enabled it is then
// rewritten as <name>.zst and the plain file removed.
func (w *SegmentWriter) rotateLocked() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("wal: sync before rotate: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("wal: close before rotate: %w", err)
	}
	sealed := w.path

	if err := w.openSegmentLocked(); err != nil {
		return err
	}
	w.metrics.Rotate()

	if w.compress {
		if err := compressSegment(sealed); err != nil {
			return fmt.Errorf("wal: compress rotated segment: %w", err)
		}
	}
	return nil
}

func (w *SegmentWriter) openSegmentLocked() error {
	// Bump the stamp past any existing segment so two rotations within one
	// millisecond never share a file.
	ms := w.now().UnixMilli()
	path := filepath.Join(w.dir, segmentName(w.database, ms))
	for segmentExists(path) {
		ms++
		path = filepath.Join(w.dir, segmentName(w.database, ms))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open segment %s: %w", path, err)
	}
	w.f = f
	w.path = path
	w.size = 0
	w.opCount = 0
	return nil
}

func segmentName(database string, unixMilli int64) string {
	return fmt.Sprintf("wal-%s-%d.log", database, unixMilli)
}

// segmentExists reports whether the plain or archived form of a segment is
// already on disk.
func segmentExists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	_, err := os.Stat(path + compressedSuffix)
	return err == nil
}
