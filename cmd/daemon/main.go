// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command monstimd is the EMG analysis daemon. It imports session data,
// serves analysis results over HTTP and writes per-dataset reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/monstim/internal/api"
	"github.com/ManuGH/monstim/internal/cache"
	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/daemon"
	"github.com/ManuGH/monstim/internal/jobs"
	mlog "github.com/ManuGH/monstim/internal/log"
	"github.com/ManuGH/monstim/internal/store"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "config" {
		os.Exit(runConfigCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	dbPath := flag.String("db", "", "path to the SQLite database (default <data_dir>/monstim.db)")
	rescanEvery := flag.Duration("rescan", 0, "periodic data directory rescan interval (0 disables)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	mlog.Configure(mlog.Config{
		Level:   "info",
		Service: "monstimd",
		Version: version,
	})
	logger := mlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Auto-load <data_dir>/config.yml when --config is not given.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := config.ParseString("MONSTIM_DATA_DIR", "data")
		autoPath := filepath.Join(dataDir, "config.yml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	// Reapply the level now that file and ENV overrides are known.
	mlog.Configure(mlog.Config{Level: cfg.LogLevel})

	logger.Info().
		Str("event", "config.loaded").
		Str("path", effectiveConfigPath).
		Str(mlog.FieldDataDir, cfg.DataDir).
		Msg("configuration loaded")

	holder := config.NewHolder(cfg, loader, effectiveConfigPath)

	database := *dbPath
	if database == "" {
		database = filepath.Join(cfg.DataDir, "monstim.db")
	}
	st, err := store.New(database)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Str("path", database).
			Msg("failed to open database")
	}

	resultCache, closeCache, err := buildCache(cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "cache.init_failed").
			Msg("failed to initialize result cache")
	}

	importer := jobs.NewImporter(st, resultCache, holder)
	apiSrv := api.NewServer(holder, st, resultCache, importer, version)

	mgr := daemon.NewManager(holder, apiSrv, importer, resultCache)
	mgr.RescanInterval = *rescanEvery
	mgr.RegisterShutdownHook("cache", func(context.Context) error { return closeCache() })
	mgr.RegisterShutdownHook("store", func(context.Context) error { return st.Close() })

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
	}
}

// buildCache selects the Redis-backed cache when configured, falling back to
// the in-memory cache.
func buildCache(cfg config.Config) (cache.Cache, func() error, error) {
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, mlog.WithComponent("cache"))
		if err != nil {
			return nil, nil, err
		}
		return rc, rc.Close, nil
	}
	mc := cache.NewMemoryCache(5 * time.Minute)
	return mc, func() error { mc.Close(); return nil }, nil
}
