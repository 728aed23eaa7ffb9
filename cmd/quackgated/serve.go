// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quackgate/quackgate/internal/api"
	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/config"
	"github.com/quackgate/quackgate/internal/dispatch"
	"github.com/quackgate/quackgate/internal/engine"
	"github.com/quackgate/quackgate/internal/lifecycle"
	"github.com/quackgate/quackgate/internal/logger"
	"github.com/quackgate/quackgate/internal/metrics"
	"github.com/quackgate/quackgate/internal/pool"
	"github.com/quackgate/quackgate/internal/registry"
	"github.com/quackgate/quackgate/internal/tiles"
)

func serveCommand() *cobra.Command {
	var (
		configPath string
		dbPath     string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, dbPath, port)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to the TOML configuration file")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "Path to the engine database file (required)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config, default 3000)")

	return cmd
}

// runServe loads configuration, opens the engine session, and blocks
// serving HTTP until a shutdown is requested. Per SPEC_FULL.md §6, it exits
// with status 1 on a missing database path, an unrecoverable I/O error, or
// failure to ensure the database directory exists.
func runServe(ctx context.Context, configPath, dbPathFlag string, portFlag int) error {
	cfg, err := config.New(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if dbPathFlag != "" {
		cfg.Config.DatabasePath = dbPathFlag
	}
	if portFlag != 0 {
		cfg.Config.Port = portFlag
	}

	logger.Configure(logger.Params{
		Level:      cfg.Config.LogLevel,
		Path:       cfg.Config.LogPath,
		MaxSizeMB:  cfg.Config.LogMaxSize,
		MaxBackups: cfg.Config.LogMaxBackups,
	})

	dbPath := cfg.Config.DatabasePath
	if dbPath == "" {
		log.Error().Msg("no database path provided; set --db-path or databasePath in config")
		os.Exit(1)
	}

	if dbDir := filepath.Dir(dbPath); dbDir != "" && dbDir != "." {
		if _, statErr := os.Stat(dbDir); os.IsNotExist(statErr) {
			if mkErr := os.MkdirAll(dbDir, 0o755); mkErr != nil {
				log.Error().Err(mkErr).Str("dir", dbDir).Msg("failed to create database directory")
				os.Exit(1)
			}
		}
	}

	session, err := lifecycle.Open(ctx, dbPath)
	if err != nil {
		log.Error().Err(err).Str("db_path", dbPath).Msg("failed to open engine session")
		os.Exit(1)
	}

	shutdownRequested := &atomic.Bool{}
	reg := registry.New()
	metricsManager := metrics.NewMetricsManager(nil, nil)

	cacheBackend, cacheCloser, err := buildCache(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to open cache backend")
		os.Exit(1)
	}
	if cacheCloser != nil {
		defer cacheCloser()
	}

	var mgr *lifecycle.Manager
	workerPool := pool.New(runtime.NumCPU(), func() *engine.Session { return mgr.Session() }, reg)
	workerPool.SetActiveGauge(func(delta int) {
		if delta > 0 {
			metricsManager.ActiveWorkers.Add(float64(delta))
		} else {
			metricsManager.ActiveWorkers.Sub(float64(-delta))
		}
	})

	mgr = lifecycle.New(session, workerPool, cacheBackend, shutdownRequested)
	dispatcher := dispatch.New(workerPool, cacheBackend, metricsManager, shutdownRequested)
	tileComposer := tiles.New(workerPool, cacheBackend, metricsManager)

	if cfg.Config.MetricsPort != 0 {
		metricsServer := metrics.NewMetricsServer(metricsManager, cfg.Config.MetricsHost, cfg.Config.MetricsPort, cfg.Config.MetricsBasicAuthUser)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("metrics server stopped unexpectedly")
			}
		}()
		defer metricsServer.Stop()
	}

	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
	}

	shutdownComplete := make(chan struct{})
	onShutdown := func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown failed")
		}
		close(shutdownComplete)
	}

	router := api.NewRouter(&api.Dependencies{
		Dispatcher:        dispatcher,
		Pool:              workerPool,
		Lifecycle:         mgr,
		Tiles:             tileComposer,
		MetricsManager:    metricsManager,
		ShutdownRequested: shutdownRequested,
		OnShutdown:        onShutdown,
	})
	httpServer.Handler = router

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("received shutdown signal")
		onShutdown()
	case <-shutdownComplete:
	}

	if err := mgr.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("engine shutdown failed")
	}

	return nil
}

// buildCache selects the cache backend per configuration: a persistent
// SQLite-backed store when cachePersist is set, otherwise the in-memory
// backend. The returned closer releases backend resources on exit.
func buildCache(cfg *config.AppConfig) (cache.Cache, func(), error) {
	if !cfg.Config.CachePersist {
		mem := cache.NewMemoryCache(0)
		return mem, mem.Close, nil
	}

	cacheDir := filepath.Dir(cfg.Config.DatabasePath)
	cachePath := filepath.Join(cacheDir, "quackgate-cache.db")
	persistent, err := cache.OpenPersistentCache(cachePath)
	if err != nil {
		return nil, nil, err
	}
	return persistent, func() { _ = persistent.Close() }, nil
}
