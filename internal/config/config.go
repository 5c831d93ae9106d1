package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Backend endpoints
	APIBaseURL     string
	ChannelBaseURL string

	// Channel client
	ConnectTimeout       time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	// Poller
	PollInterval      time.Duration
	FallbackThreshold int
	FetchTimeout      time.Duration

	// Connection manager
	HealthCheckInterval time.Duration
	ChannelRetryBase    time.Duration
	ChannelRetryMax     time.Duration
	MaxChannelRetries   int
	TerminalGrace       time.Duration

	// Notifications
	NotificationTTL time.Duration

	// Dev server
	DevServerPort string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		// Backend
		APIBaseURL:     getEnv("KESTREL_API_URL", "http://localhost:8080"),
		ChannelBaseURL: getEnv("KESTREL_CHANNEL_URL", "ws://localhost:8080"),

		// Channel client
		ConnectTimeout:       getDurationEnv("KESTREL_CONNECT_TIMEOUT_MS", 10000) * time.Millisecond,
		ReconnectBaseDelay:   getDurationEnv("KESTREL_RECONNECT_BASE_MS", 1000) * time.Millisecond,
		ReconnectMaxDelay:    getDurationEnv("KESTREL_RECONNECT_MAX_MS", 30000) * time.Millisecond,
		MaxReconnectAttempts: getIntEnv("KESTREL_MAX_RECONNECT_ATTEMPTS", 5),

		// Poller
		PollInterval:      getDurationEnv("KESTREL_POLL_INTERVAL_MS", 2000) * time.Millisecond,
		FallbackThreshold: getIntEnv("KESTREL_FALLBACK_THRESHOLD", 3),
		FetchTimeout:      getDurationEnv("KESTREL_FETCH_TIMEOUT_MS", 10000) * time.Millisecond,

		// Connection manager
		HealthCheckInterval: getDurationEnv("KESTREL_HEALTH_CHECK_INTERVAL_MS", 30000) * time.Millisecond,
		ChannelRetryBase:    getDurationEnv("KESTREL_CHANNEL_RETRY_BASE_MS", 5000) * time.Millisecond,
		ChannelRetryMax:     getDurationEnv("KESTREL_CHANNEL_RETRY_MAX_MS", 30000) * time.Millisecond,
		MaxChannelRetries:   getIntEnv("KESTREL_MAX_CHANNEL_RETRIES", 3),
		TerminalGrace:       getDurationEnv("KESTREL_TERMINAL_GRACE_MS", 30000) * time.Millisecond,

		// Notifications
		NotificationTTL: getDurationEnv("KESTREL_NOTIFICATION_TTL_MS", 6000) * time.Millisecond,

		// Dev server
		DevServerPort: getEnv("KESTREL_DEV_PORT", "8080"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}
