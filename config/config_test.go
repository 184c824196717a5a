package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":            "9090",
		"DB_DRIVER":       "postgres",
		"DATABASE_URL":    "postgres://localhost/stock",
		"REDIS_ADDR":      "localhost:6379",
		"LOCK_TTL":        "3s",
		"LOG_LEVEL":       "debug",
		"LOG_FORMAT":      "text",
		"ALLOWED_ORIGINS": " https://a.example , ,https://b.example",
		"REQUEST_TIMEOUT": "1m",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/stock", cfg.DatabaseURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.RequestTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_MalformedValues(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"PORT": "eighty"}))
	assert.ErrorContains(t, err, "PORT")

	_, err = FromEnv(env(map[string]string{"LOCK_TTL": "10"}))
	assert.ErrorContains(t, err, "LOCK_TTL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = DriverPostgres }, "DATABASE_URL"},
		{"sqlite without path", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"memory needs nothing", func(c *Config) { c.DBDriver = DriverMemory; c.DBPath = "" }, ""},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "PORT"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"zero ttl", func(c *Config) { c.LockTTL = 0 }, "LOCK_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLogError_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	LogError(logger, "receipts", "RemoveDocument", "stock check", map[string]int{"document_id": 7}, errors.New("insufficient stock"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "insufficient stock", entry["msg"])
	assert.Equal(t, "receipts", entry["module"])
	assert.Equal(t, "RemoveDocument", entry["funcName"])
	assert.NotNil(t, entry["data"])
}

func TestNewLogger_LevelFallback(t *testing.T) {
	logger := newLogger(&bytes.Buffer{}, "nonsense", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	_, isText := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}
