package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/skuflow/skuflow/internal/config"
	"github.com/skuflow/skuflow/internal/importer"
	"github.com/skuflow/skuflow/internal/logging"
	"github.com/skuflow/skuflow/internal/store"
	"github.com/skuflow/skuflow/internal/upload"
	"github.com/skuflow/skuflow/internal/web"
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
		"storage_dir", cfg.Storage.Dir,
		"max_rows_per_chunk", cfg.Import.MaxRowsPerChunk,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

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
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		slog.Error("failed to create storage directory", "error", err, "dir", cfg.Storage.Dir)
		os.Exit(1)
	}

	engine := importer.NewEngine(db, cfg.Storage.Dir, importer.Options{
		MaxConcurrentRuns: cfg.Import.MaxConcurrentRuns,
		RunWaitTime:       cfg.Import.RunWaitTime,
		LockWaitTime:      cfg.Import.LockWaitTime,
	})
	uploads := upload.NewStore(cfg.Storage.Dir, db)
	server := web.NewServer(engine, uploads, db, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight chunk transactions commit before closing the pool.
		if active := engine.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for running imports to commit", "active", active)
			if err := engine.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not finish in time", "error", err)
			} else {
				slog.Info("all running imports committed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
