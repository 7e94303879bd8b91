// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
//
// Command-line flags are applied on top of the loaded values by cmd/intervalmerge.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Input    InputConfig
	Output   OutputConfig
	Process  ProcessConfig
	Server   ServerConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	History  HistoryConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// InputConfig selects the exports to read. Anything left empty is asked for
// interactively.
type InputConfig struct {
	// Folder is the directory holding the monthly exports
	Folder string `env:"INPUT_FOLDER"`

	// Extension filters the folder listing (default: .txt)
	Extension string `env:"INPUT_EXTENSION" default:".txt"`

	// Files is a comma-separated subset of the folder to export
	Files []string `env:"INPUT_FILES"`

	// Column1 and Column2 are the measurement columns to extract
	Column1 string `env:"COLUMN_1"`
	Column2 string `env:"COLUMN_2"`
}

// OutputConfig controls where the workbook is written.
type OutputConfig struct {
	// Folder is the directory the workbook is saved to
	Folder string `env:"OUTPUT_FOLDER"`

	// FileName is the workbook name (default: Wernau_Output.xlsx)
	FileName string `env:"OUTPUT_FILE" default:"Wernau_Output.xlsx"`
}

// ProcessConfig holds per-file processing settings.
type ProcessConfig struct {
	// Workers is the number of files validated in parallel (default: 4)
	Workers int `env:"WORKERS" default:"4"`
}

// ServerConfig holds HTTP server settings for the serve command.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 15s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxUploadSize caps POST /api/validate bodies in bytes (default: 32MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"33554432"`
}

// ExportConfig bounds concurrent exports started over HTTP.
type ExportConfig struct {
	// MaxConcurrent is the maximum number of parallel exports (default: 2)
	MaxConcurrent int `env:"EXPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an export slot (default: 30s)
	MaxWaitTime time.Duration `env:"EXPORT_MAX_WAIT_TIME" default:"30s"`
}

// RateLimitConfig holds per-IP rate limiting for the HTTP surface.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the limit per client IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects the mutating API routes with X-API-Key (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"SECURITY_API_KEYS"`
}

// HistoryConfig selects where run history is stored.
type HistoryConfig struct {
	// Driver is one of none, sqlite, postgres (default: none)
	Driver string `env:"HISTORY_DRIVER" default:"none"`

	// URL is the sqlite file path or postgres connection string
	// Supports both HISTORY_URL and DATABASE_URL env vars
	URL string `env:"HISTORY_URL" envAlt:"DATABASE_URL"`
}

// ScheduleConfig holds background jobs run by the serve command.
// Specs use the standard five-field cron syntax or descriptors like @daily.
type ScheduleConfig struct {
	// Validate revalidates INPUT_FOLDER on this schedule; empty disables it
	Validate string `env:"SCHEDULE_VALIDATE"`

	// Prune removes old run history on this schedule (default: @daily)
	Prune string `env:"SCHEDULE_PRUNE" default:"@daily"`

	// Retention is how long run history is kept; 0 keeps it forever (default: 90 days)
	Retention time.Duration `env:"HISTORY_RETENTION" default:"2160h"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Path returns the full workbook path.
func (c *OutputConfig) Path() string {
	return filepath.Join(c.Folder, c.FileName)
}
