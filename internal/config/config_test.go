package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/leadstitch")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.BridgeSweepInterval)
	assert.Equal(t, 60, cfg.BridgeRateLimit)
	assert.Empty(t, cfg.AMQPURL)
	assert.Equal(t, "leadstitch", cfg.ServiceName)
	assert.False(t, cfg.TrustProxyHeaders)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:dev.db")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.com,https://b.com")
	t.Setenv("BRIDGE_SWEEP_INTERVAL", "0")
	t.Setenv("BRIDGE_RATE_LIMIT", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, cfg.AllowedOrigins)
	assert.Zero(t, cfg.BridgeSweepInterval)
	assert.Equal(t, 5, cfg.BridgeRateLimit)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestParseRejectsMalformedDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/leadstitch")
	t.Setenv("BRIDGE_SWEEP_INTERVAL", "soon")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")

	logger.Info("dropped")
	logger.Warn("kept", "lead_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "abc", line["lead_id"])
}
