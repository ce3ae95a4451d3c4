/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	DBBackend DatabaseBackend
	DBDSN     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Arbiter timing. DJTimeout is the DJ inactivity lease; NoDJTimeout is
	// the short grace TTL set after an explicit logout so automation resumes
	// sooner; LockWait bounds the open-session row lock acquisition.
	DJTimeout         time.Duration
	NoDJTimeout       time.Duration
	LockWait          time.Duration
	HeartbeatInterval time.Duration

	// Live event relay endpoints (HTTP push). Empty disables the push.
	RelayAllURL string
	RelayDJURL  string

	// NATS bridge for peer instances. Empty disables the bridge.
	NATSURL string

	// Icecast status endpoint used for listener count snapshots.
	IcecastURL    string
	IcecastMounts []string

	StationName string
	StationURL  string

	// SMTP settings for logout reminders and playlist emails.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("MUNINN_ENV", "development"),
		HTTPBind:    getEnv("MUNINN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("MUNINN_HTTP_PORT", 8080),

		DBBackend: DatabaseBackend(getEnv("MUNINN_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:     getEnv("MUNINN_DB_DSN", ""),

		RedisAddr:     getEnv("MUNINN_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("MUNINN_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("MUNINN_REDIS_DB", 0),

		DJTimeout:         time.Duration(getEnvInt("MUNINN_DJ_TIMEOUT_SECONDS", 30*60)) * time.Second,
		NoDJTimeout:       time.Duration(getEnvInt("MUNINN_NO_DJ_TIMEOUT_SECONDS", 5*60)) * time.Second,
		LockWait:          time.Duration(getEnvInt("MUNINN_LOCK_WAIT_SECONDS", 5)) * time.Second,
		HeartbeatInterval: time.Duration(getEnvInt("MUNINN_HEARTBEAT_INTERVAL_SECONDS", 60)) * time.Second,

		RelayAllURL: getEnv("MUNINN_RELAY_ALL_URL", ""),
		RelayDJURL:  getEnv("MUNINN_RELAY_DJ_URL", ""),

		NATSURL: getEnv("MUNINN_NATS_URL", ""),

		IcecastURL:    getEnv("MUNINN_ICECAST_URL", ""),
		IcecastMounts: splitList(getEnv("MUNINN_ICECAST_MOUNTS", "")),

		StationName: getEnv("MUNINN_STATION_NAME", "Muninn Airlog"),
		StationURL:  getEnv("MUNINN_STATION_URL", ""),

		SMTPHost:     getEnv("MUNINN_SMTP_HOST", ""),
		SMTPPort:     getEnvInt("MUNINN_SMTP_PORT", 587),
		SMTPUsername: getEnv("MUNINN_SMTP_USERNAME", ""),
		SMTPPassword: getEnv("MUNINN_SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("MUNINN_SMTP_FROM", "noreply@example.com"),
		SMTPFromName: getEnv("MUNINN_SMTP_FROM_NAME", "Muninn Airlog"),

		TracingEnabled:    getEnvBool("MUNINN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("MUNINN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("MUNINN_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("MUNINN_DB_DSN must be provided")
	}

	if cfg.DJTimeout <= 0 || cfg.NoDJTimeout <= 0 {
		return nil, fmt.Errorf("DJ timeouts must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.RelayAllURL == "" {
		return nil, fmt.Errorf("MUNINN_RELAY_ALL_URL must be set in production")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// splitList parses a comma separated environment value into a slice.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
