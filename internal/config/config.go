// Package config reads service settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	defaultPort         = "8080"
	defaultMaxBodyBytes = 64 * 1024
)

// Config holds env-derived settings. DatabaseURL is optional; when empty the
// service does not touch Postgres.
type Config struct {
	Addr         string
	DatabaseURL  string
	LogLevel     slog.Level
	MaxBodyBytes int64
}

// FromEnv reads PORT, DATABASE_URL, LOG_LEVEL and MAX_BODY_BYTES.
// Unparseable values fall back to defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:         ":" + defaultPort,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		LogLevel:     ParseLevel(os.Getenv("LOG_LEVEL")),
		MaxBodyBytes: defaultMaxBodyBytes,
	}
	if p := os.Getenv("PORT"); p != "" {
		cfg.Addr = AddrFromPort(p)
	}
	if s := os.Getenv("MAX_BODY_BYTES"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	return cfg
}

// AddrFromPort accepts "8080" or ":8080".
func AddrFromPort(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), ":")
	if p == "" {
		p = defaultPort
	}
	return ":" + p
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
