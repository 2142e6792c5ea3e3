// Package config loads and persists the server configuration as YAML under
// the data directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinycache/tinycache/cache"
	"github.com/tinycache/tinycache/wal"
)

// FileName is the configuration file inside the data directory.
const FileName = "config.yaml"

// Config is the whole server configuration. The password field stores an
// opaque verifier hash, never the plain text.
type Config struct {
	// authentication settings
	Admin          string `yaml:"admin"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	DatabaseType   string `yaml:"database_type"`
	SessionTTLSecs uint64 `yaml:"session_ttl"`

	// server settings
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
	MetricsAddr    string `yaml:"metrics_addr"`

	// memory database settings
	MaxEntries     int    `yaml:"max_entries"`
	DefaultTTLSecs uint64 `yaml:"default_ttl_secs"`

	// performance tuning
	WorkerThreads  int    `yaml:"worker_threads"`
	EvictionPolicy string `yaml:"eviction_policy"`

	// WAL persistence
	WALSegmentSize      int64  `yaml:"wal_segment_size"`
	WALSyncPolicy       string `yaml:"wal_sync_policy"`
	WALMaxSegments      int    `yaml:"wal_max_segments"`
	WALCompressSegments bool   `yaml:"wal_compress_segments"`
}

// Default returns the stock configuration written on first boot.
func Default() Config {
	return Config{
		Admin:          "admin",
		Database:       "default",
		DatabaseType:   "kv",
		SessionTTLSecs: 86400,

		Host:           "0.0.0.0",
		Port:           "6380",
		MaxConnections: 20,

		MaxEntries:     1200,
		DefaultTTLSecs: 604800,

		WorkerThreads:  runtime.NumCPU(),
		EvictionPolicy: cache.PolicyLFRU,

		WALSegmentSize: 16 << 20,
		WALSyncPolicy:  wal.SyncEverySec,
		WALMaxSegments: 10,
	}
}

// LoadOrCreate reads the config from dataDir, writing defaults first when no
// file exists yet.
func LoadOrCreate(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, FileName)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the configuration to dataDir, fsynced.
func (c *Config) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("config: create data dir: %w", err)
	}
	content, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	path := filepath.Join(dataDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	max := runtime.NumCPU() * 2
	if c.WorkerThreads < 1 || c.WorkerThreads > max {
		return fmt.Errorf("invalid worker thread count. Must be between 1 and %d", max)
	}
	switch c.EvictionPolicy {
	case cache.PolicyLFRU, cache.PolicyLRU, cache.PolicyLFU:
	default:
		return fmt.Errorf("invalid eviction policy %q", c.EvictionPolicy)
	}
	switch c.WALSyncPolicy {
	case wal.SyncAlways, wal.SyncEverySec, wal.SyncNo:
	default:
		return fmt.Errorf("invalid wal sync policy %q", c.WALSyncPolicy)
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be positive")
	}
	return nil
}

// SessionTTL returns the session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSecs) * time.Second
}

// WALConfig maps the flat settings into the wal package's config, rooted at
// dataDir.
func (c *Config) WALConfig(dataDir string) wal.Config {
	return wal.Config{
		Dir:         filepath.Join(dataDir, "data"),
		SegmentSize: c.WALSegmentSize,
		SyncPolicy:  c.WALSyncPolicy,
		MaxSegments: c.WALMaxSegments,
		Compress:    c.WALCompressSegments,
	}
}
