package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/contact-verifier/")
	v.AddConfigPath("$HOME/.contact-verifier")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("CONTACT_VERIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Verifier defaults
	v.SetDefault("verifier.helo_domain", "verifier.local")
	v.SetDefault("verifier.mail_from", "verify@verifier.local")
	v.SetDefault("verifier.request_timeout", "45s")
	v.SetDefault("verifier.workers", 4)

	// Resolver defaults
	v.SetDefault("resolver.lookup_timeout", "5s")
	v.SetDefault("resolver.fallback_to_a", false)
	v.SetDefault("resolver.catch_all_check", true)
	v.SetDefault("resolver.blocked_domains", []string{})

	// Prober defaults
	v.SetDefault("prober.connect_timeout", "5s")
	v.SetDefault("prober.command_timeout", "10s")
	v.SetDefault("prober.port", "25")
	v.SetDefault("prober.max_mx_hosts", 2)

	// Scheduler defaults
	v.SetDefault("scheduler.per_domain_concurrency", 2)
	v.SetDefault("scheduler.max_retries", 2)
	v.SetDefault("scheduler.initial_backoff", "2s")
	v.SetDefault("scheduler.max_backoff", "30s")
	v.SetDefault("scheduler.breaker_threshold", 5)
	v.SetDefault("scheduler.breaker_cooldown", "10m")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.domain_ttl", "12h")
	v.SetDefault("cache.probe_ttl", "168h")
	v.SetDefault("cache.unknown_ttl", "15m")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/verifier_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/contact_verifier")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")

	// Scoring defaults
	v.SetDefault("scoring.accept_threshold", 0.85)
	v.SetDefault("scoring.review_threshold", 0.40)
	v.SetDefault("scoring.catch_all_cap", 0.70)
	v.SetDefault("scoring.accepted_score", 0.96)
	v.SetDefault("scoring.rejected_score", 0.02)
	v.SetDefault("scoring.unknown_base", 0.15)
	v.SetDefault("scoring.prior_weight", 0.30)
	v.SetDefault("scoring.agreement_weight", 0.25)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_address", ":9090")
}

// Validate rejects invalid configuration at startup, before any request
// is processed.
func (c *Config) Validate() error {
	if c.GetString("verifier.helo_domain") == "" {
		return fmt.Errorf("verifier.helo_domain must not be empty")
	}
	if c.GetString("verifier.mail_from") == "" {
		return fmt.Errorf("verifier.mail_from must not be empty")
	}
	if c.GetInt("verifier.workers") < 1 {
		return fmt.Errorf("verifier.workers must be at least 1")
	}
	for _, key := range []string{
		"verifier.request_timeout",
		"resolver.lookup_timeout",
		"prober.connect_timeout",
		"prober.command_timeout",
		"scheduler.initial_backoff",
		"scheduler.max_backoff",
		"scheduler.breaker_cooldown",
		"cache.domain_ttl",
		"cache.probe_ttl",
		"cache.unknown_ttl",
		"cache.cleanup_frequency",
	} {
		d, err := c.GetDuration(key)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", key, d)
		}
	}
	if c.GetFloat64("scoring.review_threshold") >= c.GetFloat64("scoring.accept_threshold") {
		return fmt.Errorf("scoring.review_threshold must be below scoring.accept_threshold")
	}
	return nil
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
