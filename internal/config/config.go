// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Session store kinds.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Config struct {
	App       AppConfig
	Mongo     MongoConfig
	JWT       JWTConfig
	Backend   BackendConfig
	Session   SessionConfig
	MQTT      MQTTConfig
	Agreement AgreementConfig
	RateLimit RateLimitConfig
	Upload    UploadConfig
}

type AppConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

type MongoConfig struct {
	URI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database string `envconfig:"MONGO_DB" default:"pickandgo"`
}

type JWTConfig struct {
	Secret string        `envconfig:"JWT_SECRET"`
	Expiry time.Duration `envconfig:"JWT_EXPIRY" default:"24h"`
}

type BackendConfig struct {
	BaseURL string        `envconfig:"BACKEND_BASE_URL" default:"http://localhost:5000/api"`
	APIKey  string        `envconfig:"BACKEND_API_KEY"`
	Timeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`
	RPS     float64       `envconfig:"BACKEND_RPS" default:"10"`
	Burst   int           `envconfig:"BACKEND_BURST" default:"5"`
}

type SessionConfig struct {
	Store    string        `envconfig:"SESSION_STORE" default:"memory"`
	RedisURL string        `envconfig:"REDIS_URL"`
	TTL      time.Duration `envconfig:"SESSION_TTL" default:"2h"`
}

// MQTTConfig configures vehicle event publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string `envconfig:"MQTT_BROKER"`
	ClientID    string `envconfig:"MQTT_CLIENT_ID" default:"pickandgo-onboarding"`
	TopicPrefix string `envconfig:"MQTT_TOPIC_PREFIX" default:"pickandgo"`
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

type AgreementConfig struct {
	FallbackFile string `envconfig:"AGREEMENT_FALLBACK_FILE"`
}

type RateLimitConfig struct {
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"100"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

type UploadConfig struct {
	MaxBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"12582912"`
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.App.LogFormat = strings.ToLower(c.App.LogFormat)
	if c.App.LogFormat != "json" && c.App.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.App.LogFormat)
	}
	c.Session.Store = strings.ToLower(c.Session.Store)
	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be memory or redis, got %q", c.Session.Store)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}
