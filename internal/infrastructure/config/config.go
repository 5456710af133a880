package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Webhook   WebhookConfig
	Auth      AuthConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string        `envconfig:"PORT" default:"3000"`
	Host          string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" default:"5s"`
}

// SessionConfig holds protocol session configuration.
type SessionConfig struct {
	// StoreDir holds the device store and credential blob.
	StoreDir string `envconfig:"SESSION_DIR" default:"./session"`
	// UploadDir stages media uploads; empty falls back to the OS temp dir.
	UploadDir string `envconfig:"UPLOAD_DIR" default:""`
	AutoReply bool   `envconfig:"AUTO_REPLY" default:"true"`
	// ReconnectPolicy is "immediate" or "backoff".
	ReconnectPolicy   string        `envconfig:"RECONNECT_POLICY" default:"immediate"`
	ReconnectMinDelay time.Duration `envconfig:"RECONNECT_MIN_DELAY" default:"2s"`
	ReconnectMaxDelay time.Duration `envconfig:"RECONNECT_MAX_DELAY" default:"1m"`
}

// WebhookConfig holds event relay configuration.
type WebhookConfig struct {
	// URL receives relayed events; empty disables forwarding.
	URL     string        `envconfig:"WEBHOOK_URL" default:""`
	Timeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	// APIKey guards mutating routes via the x-api-key header; empty
	// disables the guard.
	APIKey string `envconfig:"API_KEY" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "3000",
			Host:          "0.0.0.0",
			ShutdownGrace: 5 * time.Second,
		},
		Session: SessionConfig{
			StoreDir:          "./session",
			AutoReply:         true,
			ReconnectPolicy:   "immediate",
			ReconnectMinDelay: 2 * time.Second,
			ReconnectMaxDelay: time.Minute,
		},
		Webhook: WebhookConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
	}
}
