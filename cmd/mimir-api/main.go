// Package main runs the preset resolution API server.
//
// It is the composition root: it loads the configuration, installs the
// catalog for the default locale, wires the optional PostgreSQL and Redis
// backends, and starts the background syncer next to the HTTP and
// observability servers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rafaeljc/mimir/internal/api"
	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/database"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/resolver"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/syncer"
	"github.com/rafaeljc/mimir/internal/taginfo"
)

const (
	poolMonitorInterval  = 15 * time.Second
	cacheMetricsInterval = 15 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 1. Catalog
	// -------------------------------------------------------------------------
	loader := catalog.NewLoader(os.DirFS(cfg.Catalog.DataDir), log)
	engine := resolver.New(log)

	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.Catalog.LoadTimeout)
	err := engine.SetLanguage(loadCtx, loader, cfg.Catalog.DefaultLocale)
	cancelLoad()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	checkers := []observability.Checker{
		observability.NewCheckFunc("catalog", func(context.Context) error {
			if engine.Snapshot() == nil {
				return resolver.ErrNoSnapshot
			}
			return nil
		}),
	}

	// -------------------------------------------------------------------------
	// 2. Custom preset storage
	// -------------------------------------------------------------------------
	var repo store.CustomPresetRepository
	switch {
	case cfg.Database.IsConfigured():
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		go database.RunPoolMonitor(ctx, pool, poolMonitorInterval)
		repo = store.NewPostgresStore(pool)
		checkers = append(checkers, database.NewHealthChecker(pool))
	case cfg.Catalog.CustomPresetsFile != "":
		repo = store.NewFileStore(cfg.Catalog.CustomPresetsFile)
	default:
		log.Info("custom presets disabled, no storage configured")
	}

	// -------------------------------------------------------------------------
	// 3. Tag statistics
	// -------------------------------------------------------------------------
	var tagInfo *taginfo.Service
	if cfg.TagInfo.Enabled {
		l1, err := cache.NewMemoryCache(cfg.TagInfo.CacheCapacity)
		if err != nil {
			return fmt.Errorf("failed to create taginfo cache: %w", err)
		}
		defer l1.Close()
		go l1.RunMetricsCollector(ctx, cacheMetricsInterval)

		var opts []taginfo.Option
		if cfg.Redis.IsConfigured() {
			client, err := cache.NewRedisClient(ctx, &cfg.Redis)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			shared := cache.NewRedisStore(client, 2*cfg.TagInfo.StaleAfter)
			defer shared.Close()

			opts = append(opts, taginfo.WithSharedStore(shared))
			checkers = append(checkers, cache.NewHealthChecker(client))
		}

		client := taginfo.NewClient(cfg.TagInfo.BaseURL, cfg.TagInfo.Timeout)
		tagInfo = taginfo.NewService(l1, client, log, cfg.TagInfo.StaleAfter, cfg.TagInfo.Timeout, opts...)
		defer tagInfo.Wait()
	}

	// -------------------------------------------------------------------------
	// 4. Background syncer
	// -------------------------------------------------------------------------
	deps := api.Dependencies{
		Engine:        engine,
		Loader:        loader,
		CustomPresets: repo,
		Logger:        log,
	}
	if tagInfo != nil {
		deps.TagInfo = tagInfo
	}

	// Without the loop the startup loads still run once, so stored custom
	// presets and boundaries are installed.
	svc := syncer.New(log, cfg.Syncer, engine, syncer.Sources{
		Loader:         loader,
		BoundariesFile: cfg.Catalog.BoundariesFile,
		ShapesFile:     cfg.Catalog.ShapesFile,
		Supplementary:  cfg.Catalog.Supplementary,
	}, repo)

	syncDone := make(chan struct{})
	if cfg.Syncer.Enabled {
		deps.Notifier = svc

		go func() {
			defer close(syncDone)
			if err := svc.Run(ctx); err != nil {
				log.Error("syncer stopped", slog.String("error", err.Error()))
			}
		}()
	} else {
		log.Info("syncer disabled, running startup loads once")
		go func() {
			defer close(syncDone)
			svc.Bootstrap(ctx)
		}()
	}

	// -------------------------------------------------------------------------
	// 5. Servers
	// -------------------------------------------------------------------------
	obs := observability.NewServer(log, &cfg.Observability, checkers...)
	if err := obs.Start(); err != nil {
		return err
	}

	apiHandler := api.NewAPI(deps, api.Config{
		APIKeyHash:   cfg.Server.APIKeyHash,
		SkipAuth:     cfg.Server.SkipAuth,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		LoadTimeout:  cfg.Catalog.LoadTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           apiHandler.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting API server",
			slog.String("addr", srv.Addr),
			slog.Bool("tls", cfg.Server.TLSEnabled),
		)
		var err error
		if cfg.Server.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 6. Graceful shutdown
	// -------------------------------------------------------------------------
	var runErr error
	select {
	case runErr = <-errChan:
		stop()
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", slog.String("error", err.Error()))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	select {
	case <-syncDone:
	case <-shutdownCtx.Done():
		log.Warn("syncer did not stop before the shutdown timeout")
	}

	log.Info("service exited")
	return runErr
}
