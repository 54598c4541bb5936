// Package config provides centralized configuration management for the
// application. Settings come from environment variables with sensible
// defaults and are validated on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request body.
	// Chunk uploads stream up to the chunk size, so this is generous.
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout.
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is how long to wait for graceful shutdown.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout applied to each request.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required).
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of pooled connections.
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open.
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the idle time before a connection is closed.
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// Dir is the base storage directory. Temporary upload sessions live
	// under <dir>/tmp, finalized source files under <dir>/uploads.
	Dir string `env:"STORAGE_DIR" default:"./storage"`

	// MaxChunkSize is the largest accepted single chunk body in bytes
	// (default: 32MB).
	MaxChunkSize int64 `env:"STORAGE_MAX_CHUNK_SIZE" default:"33554432"`
}

// ImportConfig holds import engine settings.
type ImportConfig struct {
	// MaxRowsPerChunk is the row budget per run call (default: 1000).
	MaxRowsPerChunk int `env:"IMPORT_MAX_ROWS_PER_CHUNK" default:"1000"`

	// MaxConcurrentRuns bounds parallel run calls across all imports.
	MaxConcurrentRuns int `env:"IMPORT_MAX_CONCURRENT_RUNS" default:"4"`

	// RunWaitTime is how long a run waits for a slot before rejecting.
	RunWaitTime time.Duration `env:"IMPORT_RUN_WAIT_TIME" default:"30s"`

	// LockWaitTime is how long a run waits for the per-import lock.
	LockWaitTime time.Duration `env:"IMPORT_LOCK_WAIT_TIME" default:"10s"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the per-IP request budget.
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the loaded configuration for values that would only fail
// later at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.Database.MaxConns)
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", c.Database.MinConns)
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage directory is required")
	}
	if c.Storage.MaxChunkSize < 1 {
		return fmt.Errorf("STORAGE_MAX_CHUNK_SIZE must be positive, got %d", c.Storage.MaxChunkSize)
	}
	if c.Import.MaxRowsPerChunk < 1 {
		return fmt.Errorf("IMPORT_MAX_ROWS_PER_CHUNK must be at least 1, got %d", c.Import.MaxRowsPerChunk)
	}
	if c.Import.MaxConcurrentRuns < 1 {
		return fmt.Errorf("IMPORT_MAX_CONCURRENT_RUNS must be at least 1, got %d", c.Import.MaxConcurrentRuns)
	}
	if c.Rate.Enabled && c.Rate.RequestsPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_MINUTE must be at least 1, got %d", c.Rate.RequestsPerMinute)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	return nil
}
