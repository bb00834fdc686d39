package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/rkowalik/staffimport/internal/config"
	"github.com/rkowalik/staffimport/internal/ingest"
	"github.com/rkowalik/staffimport/internal/logging"
	"github.com/rkowalik/staffimport/internal/store"
	"github.com/rkowalik/staffimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"rules_path", cfg.Pipeline.RulesPath,
		"batch_size", cfg.Pipeline.BatchSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Fail fast on a broken rules file instead of failing every job later.
	if _, err := ingest.LoadRulesFile(cfg.Pipeline.RulesPath); err != nil {
		slog.Error("transformation rules invalid", "path", cfg.Pipeline.RulesPath, "error", err)
		os.Exit(1)
	}

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	db := store.New(pool)
	if err := db.Init(ctx); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	orchestrator := ingest.NewOrchestrator(db, db, ingest.Options{
		RulesPath:  cfg.Pipeline.RulesPath,
		BatchSize:  cfg.Pipeline.BatchSize,
		JobTimeout: cfg.Pipeline.JobTimeout,
		KeepFiles:  cfg.Upload.KeepFiles,
	}, slog.Default())

	server := web.NewServer(cfg, orchestrator, db, db, slog.Default())

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}

	// Let in-flight jobs write their final state before exiting.
	slog.Info("waiting for running jobs")
	orchestrator.Wait()
	slog.Info("server stopped")
}
