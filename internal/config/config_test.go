package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 10.0, cfg.Upstream.RateLimit)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("QBITS_RATE_LIMIT", "2.5")
	t.Setenv("AUTH_SESSION_TTL", "30m")
	t.Setenv("CONSOLE_SCREENS_FILE", "/etc/console/screens.yaml")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 2.5, cfg.Upstream.RateLimit)
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionTTL)
	assert.Equal(t, "/etc/console/screens.yaml", cfg.ScreensFile)
}

func TestNewConfig_Rejects(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := NewConfig()
	assert.Error(t, err)

	t.Setenv("AUTH_JWT_SECRET", "short")
	_, err = NewConfig()
	assert.Error(t, err)

	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef")
	t.Setenv("LOG_FORMAT", "xml")
	_, err = NewConfig()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(Log{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(Log{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
