// Command tinycached runs the cache server: it loads (or creates) the
// configuration under the data directory, replays every database's WAL, and
// serves the TCP protocol until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tinycache/tinycache/auth"
	"github.com/tinycache/tinycache/config"
	"github.com/tinycache/tinycache/engine"
	"github.com/tinycache/tinycache/logger"
	"github.com/tinycache/tinycache/metrics/prom"
	"github.com/tinycache/tinycache/server"
	"github.com/tinycache/tinycache/wal"
)

func main() {
	dataDir := flag.String("data-dir", "", "data directory (default ~/.tinycache)")
	flag.Parse()

	if err := run(*dataDir); err != nil {
		fmt.Fprintln(os.Stderr, "tinycached:", err)
		os.Exit(1)
	}
}

func run(dataDir string) error {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".tinycache")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cfg, err := config.LoadOrCreate(dataDir)
	if err != nil {
		return err
	}
	if err := bootstrapPassword(cfg, dataDir); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	runtime.GOMAXPROCS(cfg.WorkerThreads)

	log, err := logger.New(dataDir)
	if err != nil {
		return err
	}
	defer log.Close()
	zlog := log.Console()

	registry := prometheus.NewRegistry()
	cacheMetrics := prom.New(registry, "tinycache", "cache", nil)
	walMetrics := prom.NewWAL(registry, "tinycache")

	persistence, err := wal.NewManager(cfg.WALConfig(dataDir), walMetrics, zlog)
	if err != nil {
		return err
	}
	defer persistence.Close()

	eng := engine.New(cfg, persistence, log, engine.WithCacheMetrics(cacheMetrics))
	if err := eng.RecoverAll(); err != nil {
		return fmt.Errorf("recover databases: %w", err)
	}
	logStartupInfo(zlog, cfg, eng)

	authMgr := auth.NewManager(cfg, log)
	srv := server.New(cfg, eng, authMgr, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.StartCleanup(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		ms := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			err := ms.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	zlog.Info().Msg("server stopped")
	return err
}

// bootstrapPassword fills in a verifier hash on first boot. The interactive
// setup flow lives outside this binary; TINYCACHE_PASSWORD seeds the admin
// credential, falling back to the admin username with a loud warning.
func bootstrapPassword(cfg *config.Config, dataDir string) error {
	if cfg.Password != "" {
		return nil
	}
	plain := os.Getenv("TINYCACHE_PASSWORD")
	if plain == "" {
		plain = cfg.Admin
		fmt.Fprintln(os.Stderr, "WARNING: no password configured; defaulting to the admin username. Set TINYCACHE_PASSWORD and restart.")
	}
	hash, err := auth.HashPassword(plain)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	cfg.Password = hash
	return cfg.Save(dataDir)
}

func logStartupInfo(zlog zerolog.Logger, cfg *config.Config, eng *engine.Engine) {
	zlog.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("eviction_policy", cfg.EvictionPolicy).
		Uint64("default_ttl_secs", cfg.DefaultTTLSecs).
		Int("max_connections", cfg.MaxConnections).
		Int("worker_threads", cfg.WorkerThreads).
		Msg("server configuration")
	for name, stats := range eng.AllStats() {
		zlog.Info().
			Str("database", name).
			Int("entries", stats.EntryCount).
			Str("policy", stats.EvictionPolicy).
			Msg("database ready")
	}
}
