/*
Package config loads runtime settings and builds the logger.

SOURCES (later wins):
  1. Built-in defaults
  2. .env file in the working directory (joho/godotenv, optional)
  3. Process environment
  4. cobra flags (applied by internal/cli after Load)

KEYS:
  PORT             HTTP port                               8080
  DB_DRIVER        sqlite | postgres | memory              sqlite
  DB_PATH          SQLite file                             stock.db
  DATABASE_URL     PostgreSQL connection string            (required for postgres)
  REDIS_ADDR       Redis for cross-instance key locks      (empty: in-process locks)
  LOCK_TTL         Redis lock lifetime                     10s
  LOG_LEVEL        logrus level                            info
  LOG_FORMAT       json | text                             json
  ALLOWED_ORIGINS  CORS origins, comma separated           http://localhost:5173,http://localhost:8080
  REQUEST_TIMEOUT  Per-request deadline                    15s
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds every runtime setting.
type Config struct {
	Port           int
	DBDriver       string
	DBPath         string
	DatabaseURL    string
	RedisAddr      string
	LockTTL        time.Duration
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:           8080,
		DBDriver:       DriverSQLite,
		DBPath:         "stock.db",
		LockTTL:        10 * time.Second,
		LogLevel:       "info",
		LogFormat:      "json",
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		RequestTimeout: 15 * time.Second,
	}
}

// Load reads .env (if present) and the environment on top of Default.
// Malformed numbers and durations are errors, not silently ignored.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. Load passes os.LookupEnv; tests pass a map.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DB_DRIVER", &cfg.DBDriver)
	str("DB_PATH", &cfg.DBPath)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	for key, dst := range map[string]*time.Duration{
		"LOCK_TTL":        &cfg.LockTTL,
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return cfg, fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = SplitList(v)
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want sqlite, postgres or memory)", c.DBDriver)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q (want json or text)", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address for Port.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
