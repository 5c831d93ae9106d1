package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:8080", cfg.ChannelBaseURL)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.FallbackThreshold)
	assert.Equal(t, 5*time.Second, cfg.ChannelRetryBase)
	assert.Equal(t, 3, cfg.MaxChannelRetries)
	assert.Equal(t, 30*time.Second, cfg.TerminalGrace)
	assert.Equal(t, 6*time.Second, cfg.NotificationTTL)
	assert.Equal(t, "8080", cfg.DevServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KESTREL_API_URL", "http://backend:9000")
	t.Setenv("KESTREL_POLL_INTERVAL_MS", "500")
	t.Setenv("KESTREL_MAX_RECONNECT_ATTEMPTS", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "http://backend:9000", cfg.APIBaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 8, cfg.MaxReconnectAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("KESTREL_POLL_INTERVAL_MS", "not-a-number")
	t.Setenv("KESTREL_FALLBACK_THRESHOLD", "three")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.FallbackThreshold)
}
