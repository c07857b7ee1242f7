package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "json", cfg.App.LogFormat)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, SessionStoreMemory, cfg.Session.Store)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.MQTT.Enabled())
	assert.Equal(t, int64(12<<20), cfg.Upload.MaxBytes)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("BACKEND_BASE_URL", "https://api.pickandgo.lk/api")
	t.Setenv("BACKEND_TIMEOUT", "5s")
	t.Setenv("BACKEND_RPS", "2.5")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "text", cfg.App.LogFormat)
	assert.Equal(t, "https://api.pickandgo.lk/api", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2.5, cfg.Backend.RPS)
	assert.Equal(t, SessionStoreRedis, cfg.Session.Store)
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown log format", "LOG_FORMAT", "xml"},
		{"unknown session store", "SESSION_STORE", "disk"},
		{"redis without url", "SESSION_STORE", "redis"},
		{"bad duration", "SESSION_TTL", "soon"},
		{"zero rate limit", "RATE_LIMIT_REQUESTS", "0"},
		{"zero upload size", "MAX_UPLOAD_BYTES", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
