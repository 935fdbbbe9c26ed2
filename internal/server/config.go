// Package server provides configuration helpers that define runtime
// defaults, file and environment loading, and rate-limiting parameters for
// the bridge service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the server configuration settings including security controls.
// Sources are applied in order: defaults, then an optional YAML file, then
// environment variables.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// AllowedOrigins lists origins permitted to open WebSocket connections.
	// "*" allows any origin. Requests without an Origin header (non-browser
	// clients) are always allowed.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize caps inbound WebSocket frames, in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// RateLimit throttles inbound messages per connection.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// CatalogPath optionally points at a YAML vehicle catalog; empty means
	// the built-in default catalog.
	CatalogPath string `yaml:"catalog"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Addr: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
	}
}

// LoadConfig builds the effective configuration. A non-empty path names a
// YAML file layered over the defaults; environment variables are applied on
// top of either. The result is sanitized so the server always starts with
// workable values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	cfg = applyEnv(cfg)
	return sanitizeConfig(cfg), nil
}

// applyEnv overlays BRIDGE_* environment variables onto cfg.
func applyEnv(cfg Config) Config {
	if addr := os.Getenv("BRIDGE_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if origins := os.Getenv("BRIDGE_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("BRIDGE_MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64Value(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("BRIDGE_RATE_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("BRIDGE_RATE_REFILL_SECONDS"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if path := os.Getenv("BRIDGE_CATALOG"); path != "" {
		cfg.CatalogPath = path
	}

	return cfg
}

// sanitizeConfig clamps unusable values back to their defaults.
func sanitizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
