// Package config handles application configuration loading and validation
// from environment variables, providing a type-safe configuration structure.
package config

import (
	"fmt"
	"time"
)

// DefaultInterceptAddresses is the fallback target set. An empty or absent
// intercept address list is always replaced by these; a request record is
// never built for a call that matches none of them.
var DefaultInterceptAddresses = []string{
	"api.openai.com",
	"api.anthropic.com",
	"api.mistral.ai",
	"generativelanguage.googleapis.com",
}

// Config holds all observer configuration. It is read-only once loading
// completes; interception reads it without locks by design.
type Config struct {
	// Collector
	APIKey  string // API key for the analytics collector (required)
	BaseURL string // Collector base URL

	// Interception
	InterceptAddresses []string // URL substrings that select observed calls

	// Behavior toggles
	Silent      bool   // Suppress console diagnostics
	DebugMode   bool   // Dry-run delivery: print payloads, skip network
	Environment string // 'production', 'development' or 'test'
	Source      string // Source tag selecting the binary field strip set

	// Webhook listener
	WebhookSecret     string // Shared secret for inbound webhook signatures
	WebhookListenAddr string // Address for the webhook listener

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or console
	LogFile   string // empty for stdout

	// Buffered delivery pipeline
	EventBusBackend string        // "in-memory" or "redis"
	EventBusBuffer  int           // In-memory bus buffer size
	RedisAddr       string        // Redis server address
	RedisDB         int           // Redis database number
	BatchSize       int           // Dispatcher batch size
	FlushInterval   time.Duration // Dispatcher flush interval
	RetryAttempts   int           // Delivery retry attempts in the dispatcher
	RetryBackoff    time.Duration // Base backoff between retries
}

// New creates a new configuration from environment variables, applying
// defaults and validating required settings.
func New() (*Config, error) {
	cfg := &Config{
		APIKey:  EnvOrDefault("LLM_OBSERVER_API_KEY", ""),
		BaseURL: EnvOrDefault("LLM_OBSERVER_BASE_URL", "https://app.llmobserver.dev"),

		InterceptAddresses: EnvSliceOrDefault("LLM_OBSERVER_INTERCEPT_ADDRESSES", nil),

		Silent:      EnvBoolOrDefault("LLM_OBSERVER_SILENT", false),
		DebugMode:   EnvBoolOrDefault("LLM_OBSERVER_DEBUG", false),
		Environment: EnvOrDefault("LLM_OBSERVER_ENV", "development"),
		Source:      EnvOrDefault("LLM_OBSERVER_SOURCE", ""),

		WebhookSecret:     EnvOrDefault("LLM_OBSERVER_WEBHOOK_SECRET", ""),
		WebhookListenAddr: EnvOrDefault("LLM_OBSERVER_WEBHOOK_LISTEN_ADDR", ":8787"),

		LogLevel:  EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:   EnvOrDefault("LOG_FILE", ""),

		EventBusBackend: EnvOrDefault("LLM_OBSERVER_EVENT_BUS", "in-memory"),
		EventBusBuffer:  EnvIntOrDefault("LLM_OBSERVER_EVENT_BUS_BUFFER", 1000),
		RedisAddr:       EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:         EnvIntOrDefault("REDIS_DB", 0),
		BatchSize:       EnvIntOrDefault("LLM_OBSERVER_BATCH_SIZE", 100),
		FlushInterval:   EnvDurationOrDefault("LLM_OBSERVER_FLUSH_INTERVAL", 5*time.Second),
		RetryAttempts:   EnvIntOrDefault("LLM_OBSERVER_RETRY_ATTEMPTS", 3),
		RetryBackoff:    EnvDurationOrDefault("LLM_OBSERVER_RETRY_BACKOFF", time.Second),
	}

	if path := EnvOrDefault("LLM_OBSERVER_CONFIG_FILE", ""); path != "" {
		if _, err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.InterceptAddresses) == 0 {
		cfg.InterceptAddresses = append([]string(nil), DefaultInterceptAddresses...)
	}

	if cfg.APIKey == "" {
		return nil, &ConfigurationError{Msg: "LLM_OBSERVER_API_KEY environment variable is required"}
	}

	return cfg, nil
}

// SetInterceptAddresses replaces the target list wholesale. An empty list
// falls back to the defaults; the list is never stored empty.
func (c *Config) SetInterceptAddresses(addrs []string) {
	if len(addrs) == 0 {
		c.InterceptAddresses = append([]string(nil), DefaultInterceptAddresses...)
		return
	}
	c.InterceptAddresses = append([]string(nil), addrs...)
}

// IsProduction reports whether the environment tag names a production-like
// deployment. Webhook validation fails closed in production and open (with a
// warning) elsewhere, so unsigned webhooks still work in local testing.
func (c *Config) IsProduction() bool {
	switch c.Environment {
	case "production", "prod", "staging":
		return true
	default:
		return false
	}
}

// ConfigurationError indicates the observer was not set up correctly.
// It is the one error class allowed to be loud and fatal: continuing would
// silently instrument nothing.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Msg)
}
