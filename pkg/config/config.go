package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the engine configuration.
type Config struct {
	Database  string          `yaml:"database"`  // SQLite database path
	Timezone  string          `yaml:"timezone"`  // Operating time zone for calendar-day dedup (default: UTC)
	Engine    EngineConfig    `yaml:"engine"`    // Escalation engine settings
	Transport TransportConfig `yaml:"transport"` // Outbound delivery settings
	Metrics   MetricsConfig   `yaml:"metrics"`   // Metrics endpoint (scheduled mode)
	Verbose   bool            `yaml:"-"`         // set via CLI flag
}

// EngineConfig contains escalation engine settings.
type EngineConfig struct {
	OverdueAfterDays  int `yaml:"overdue_after_days"`  // Age threshold for an asset to count as overdue (default: 30)
	EscalateAfterDays int `yaml:"escalate_after_days"` // Days at level 1 before escalating to level 2 (default: 7)
	ChunkSize         int `yaml:"chunk_size"`          // Items fetched from the source per page (default: 1000)
	EvalConcurrency   int `yaml:"eval_concurrency"`    // Parallel item evaluations within a chunk (default: 8)
}

// TransportConfig contains outbound delivery settings.
type TransportConfig struct {
	SendTimeout    time.Duration `yaml:"send_timeout"`    // Per-attempt timeout (default: 30s)
	MaxRetries     int           `yaml:"max_retries"`     // Retries for transient failures (default: 3)
	Concurrency    int           `yaml:"concurrency"`     // Parallel per-recipient dispatches (default: 4)
	RatePerSecond  float64       `yaml:"rate_per_second"` // Outbound send rate limit (default: 5)
	Email          EmailConfig   `yaml:"email"`           // SMTP transport
	WebhookURL     string        `yaml:"webhook_url"`     // Optional JSON webhook transport
	DefaultChannel string        `yaml:"default_channel"` // Transport used for sends (default: email)
}

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string `yaml:"host"`     // SMTP server host
	Port     int    `yaml:"port"`     // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string `yaml:"username"` // SMTP username (optional)
	Password string `yaml:"password"` // SMTP password (optional)
	From     string `yaml:"from"`     // From address
}

// MetricsConfig contains metrics server settings for scheduled mode.
type MetricsConfig struct {
	Address string `yaml:"address"` // Listen address, empty disables the endpoint
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Database == "" {
		c.Database = "staleguard.db"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Engine.OverdueAfterDays == 0 {
		c.Engine.OverdueAfterDays = 30
	}
	if c.Engine.EscalateAfterDays == 0 {
		c.Engine.EscalateAfterDays = 7
	}
	if c.Engine.ChunkSize == 0 {
		c.Engine.ChunkSize = 1000
	}
	if c.Engine.EvalConcurrency == 0 {
		c.Engine.EvalConcurrency = 8
	}
	if c.Transport.SendTimeout == 0 {
		c.Transport.SendTimeout = 30 * time.Second
	}
	if c.Transport.MaxRetries == 0 {
		c.Transport.MaxRetries = 3
	}
	if c.Transport.Concurrency == 0 {
		c.Transport.Concurrency = 4
	}
	if c.Transport.RatePerSecond == 0 {
		c.Transport.RatePerSecond = 5
	}
	if c.Transport.DefaultChannel == "" {
		c.Transport.DefaultChannel = "email"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Engine.OverdueAfterDays < 1 {
		return fmt.Errorf("engine.overdue_after_days must be at least 1")
	}
	if c.Engine.EscalateAfterDays < 1 {
		return fmt.Errorf("engine.escalate_after_days must be at least 1")
	}
	if c.Engine.ChunkSize < 1 {
		return fmt.Errorf("engine.chunk_size must be at least 1")
	}
	if c.Transport.SendTimeout < time.Second {
		return fmt.Errorf("transport.send_timeout must be at least 1s")
	}
	switch c.Transport.DefaultChannel {
	case "email":
		if c.Transport.Email.Host == "" {
			return fmt.Errorf("transport.email.host is required for the email channel")
		}
		if c.Transport.Email.From == "" {
			return fmt.Errorf("transport.email.from is required for the email channel")
		}
	case "webhook":
		if c.Transport.WebhookURL == "" {
			return fmt.Errorf("transport.webhook_url is required for the webhook channel")
		}
	default:
		return fmt.Errorf("unknown transport channel: %s", c.Transport.DefaultChannel)
	}
	return nil
}

// Location returns the configured operating time zone.
// Validate guarantees the name loads; UTC is the fallback for zero configs.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
