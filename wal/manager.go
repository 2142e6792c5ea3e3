package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds the persistence settings for all databases.
type Config struct {
	// Dir stores the WAL segments of every database.
	Dir string
	// SegmentSize is the byte limit of one segment before rotation.
	SegmentSize int64
	// SyncPolicy is one of SyncAlways, SyncEverySec, SyncNo.
	SyncPolicy string
	// MaxSegments caps retained segments per database (0 = unlimited).
	MaxSegments int
	// Compress rewrites rotated segments as zstd archives.
	Compress bool
}

// DefaultConfig returns the stock persistence settings rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		Dir:         filepath.Join(dataDir, "data"),
		SegmentSize: 16 << 20,
		SyncPolicy:  SyncEverySec,
		MaxSegments: 10,
	}
}

// Replayer applies a recovered operation to the in-memory state. The replay
// path must not write back to the WAL.
type Replayer interface {
	Apply(database string, op Operation) error
}

// Manager owns one segment writer per database, created on first use, and
// drives recovery and retention.
type Manager struct {
	cfg     Config
	metrics Metrics
	log     zerolog.Logger

	mu      sync.Mutex
	writers map[string]*SegmentWriter
}

// NewManager creates the persist directory and an empty writer registry.
func NewManager(cfg Config, metrics Metrics, log zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create persist dir: %w", err)
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Manager{
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		writers: make(map[string]*SegmentWriter),
	}, nil
}

// LogOperation appends op to the database's WAL, creating the writer on
// first use, then applies segment retention.
func (m *Manager) LogOperation(database string, op Operation) error {
	w, err := m.writer(database)
	if err != nil {
		return err
	}
	entry := &Entry{
		Database:  database,
		Operation: op,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := w.Append(entry); err != nil {
		return err
	}
	return m.cleanupOldSegments(database)
}

// Close syncs and closes every open writer.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for db, w := range m.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("wal: close writer for %q: %w", db, err)
		}
		delete(m.writers, db)
	}
	return firstErr
}

// RecoverAll discovers every database with segments on disk and replays
// them. Databases recover concurrently; entries within one database replay
// in order.
func (m *Manager) RecoverAll(r Replayer) error {
	names, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return fmt.Errorf("wal: scan persist dir: %w", err)
	}
	databases := make(map[string]struct{})
	for _, e := range names {
		if db, ok := databaseFromSegment(e.Name()); ok {
			databases[db] = struct{}{}
		}
	}
	m.log.Info().Int("databases", len(databases)).Msg("starting WAL recovery")

	var g errgroup.Group
	for db := range databases {
		db := db
		g.Go(func() error { return m.Recover(db, r) })
	}
	return g.Wait()
}

// Recover replays all segments of one database in chronological order.
// Blank lines are skipped; entries for other databases are skipped; parse
// errors are counted and skipped so a corrupt line never aborts replay.
func (m *Manager) Recover(database string, r Replayer) error {
	segments, err := m.segmentsFor(database)
	if err != nil {
		return err
	}
	var replayed, skipped int
	for _, path := range segments {
		rep, skip, err := m.replaySegment(path, database, r)
		if err != nil {
			return err
		}
		replayed += rep
		skipped += skip
	}
	m.log.Info().
		Str("database", database).
		Int("segments", len(segments)).
		Int("replayed", replayed).
		Int("skipped", skipped).
		Msg("WAL recovery complete")
	return nil
}

func (m *Manager) replaySegment(path, database string, r Replayer) (replayed, skipped int, err error) {
	f, err := openSegment(path)
	if err != nil {
		return 0, 0, fmt.Errorf("wal: open segment for replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if uerr := json.Unmarshal([]byte(line), &entry); uerr != nil {
			m.log.Error().Str("segment", path).Int("line", lineNum).Err(uerr).Msg("WAL parse error")
			skipped++
			continue
		}
		if entry.Database != database {
			continue
		}
		if aerr := r.Apply(database, entry.Operation); aerr != nil {
			m.log.Warn().Str("segment", path).Int("line", lineNum).Err(aerr).Msg("failed to replay operation")
			skipped++
			continue
		}
		replayed++
	}
	if serr := sc.Err(); serr != nil {
		return replayed, skipped, fmt.Errorf("wal: read segment %s: %w", path, serr)
	}
	return replayed, skipped, nil
}

// cleanupOldSegments deletes the oldest segments beyond MaxSegments.
func (m *Manager) cleanupOldSegments(database string) error {
	if m.cfg.MaxSegments == 0 {
		return nil
	}
	segments, err := m.segmentsFor(database)
	if err != nil {
		return err
	}
	excess := len(segments) - m.cfg.MaxSegments
	for i := 0; i < excess; i++ {
		if err := os.Remove(segments[i]); err != nil {
			m.log.Warn().Str("segment", segments[i]).Err(err).Msg("failed to remove old WAL segment")
		}
	}
	return nil
}

// segmentsFor lists the database's segment paths sorted lexicographically,
// which matches creation order because names embed a millisecond stamp.
func (m *Manager) segmentsFor(database string) ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}
	var out []string
	for _, e := range entries {
		if db, ok := databaseFromSegment(e.Name()); ok && db == database {
			out = append(out, filepath.Join(m.cfg.Dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Manager) writer(database string) (*SegmentWriter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.writers[database]; ok {
		return w, nil
	}
	w, err := newSegmentWriter(m.cfg.Dir, database, m.cfg.SegmentSize, m.cfg.SyncPolicy, m.cfg.Compress, m.metrics)
	if err != nil {
		return nil, err
	}
	m.writers[database] = w
	m.log.Info().Str("database", database).Msg("WAL writer created")
	return w, nil
}

// databaseFromSegment extracts the database name from a segment filename:
// the slice of "wal-<db>-<ms>.log[.zst]" between the prefix and the final
// dash. Database names may themselves contain dashes.
func databaseFromSegment(name string) (string, bool) {
	base := strings.TrimSuffix(name, compressedSuffix)
	if !strings.HasPrefix(base, "wal-") || !strings.HasSuffix(base, ".log") {
		return "", false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(base, "wal-"), ".log")
	idx := strings.LastIndexByte(middle, '-')
	if idx <= 0 {
		return "", false
	}
	return middle[:idx], true
}
