// Package config loads server configuration from the environment and flags.
// Flags override environment variables, which override defaults.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Storage drivers accepted by Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr            string
	Driver          string
	DSN             string
	LogLevel        string
	LogFormat       string
	Location        *time.Location
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

const (
	defaultAddr            = ":8080"
	defaultDriver          = DriverSQLite
	defaultSQLiteDSN       = "leave.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultTimezone        = "UTC"
	defaultAllowedOrigins  = "http://localhost:*,http://127.0.0.1:*"
	defaultShutdownTimeout = 30 * time.Second
)

// Load parses configuration from os.Args and the process environment.
func Load() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		Addr:            getString(lookup, "LEAVE_ADDR", defaultAddr),
		Driver:          getString(lookup, "LEAVE_DB_DRIVER", defaultDriver),
		DSN:             getString(lookup, "LEAVE_DB_DSN", ""),
		LogLevel:        getString(lookup, "LEAVE_LOG_LEVEL", defaultLogLevel),
		LogFormat:       getString(lookup, "LEAVE_LOG_FORMAT", defaultLogFormat),
		ShutdownTimeout: getDuration(lookup, "LEAVE_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}

	var (
		tz                 = getString(lookup, "LEAVE_TIMEZONE", defaultTimezone)
		origins            = getString(lookup, "LEAVE_ALLOWED_ORIGINS", defaultAllowedOrigins)
		shutdownTimeoutStr = cfg.ShutdownTimeout.String()
	)

	fs := flag.NewFlagSet("leave-engine", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server listen address")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "Storage driver: sqlite, postgres or memory")
	fs.StringVar(&cfg.DSN, "db", cfg.DSN, "SQLite path or PostgreSQL DSN")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or text")
	fs.StringVar(&tz, "tz", tz, "IANA time zone used to decide today's date")
	fs.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error
	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", tz, err)
	}

	cfg.AllowedOrigins = splitList(origins)

	cfg.Driver = strings.ToLower(cfg.Driver)
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.DSN == "" {
			cfg.DSN = defaultSQLiteDSN
		}
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database DSN must be provided for the postgres driver")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	return cfg, nil
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
