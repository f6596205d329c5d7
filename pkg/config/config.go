// Package config loads the router configuration from a YAML file and
// environment variables. Environment variables win over the file, and
// defaults fill whatever neither of them set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ROUTER_"

// Config is the root configuration for the router process.
type Config struct {
	Router  RouterConfig  `yaml:"router" envPrefix:"IPC_"`
	Discord DiscordConfig `yaml:"discord" envPrefix:"DISCORD_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Health  HealthConfig  `yaml:"health" envPrefix:"HEALTH_"`
}

// RouterConfig configures the IPC endpoint workflow executions connect to.
type RouterConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
	Path string `yaml:"path" env:"PATH"`

	// APIKey, when set, must be presented by IPC clients and dashboard callers.
	APIKey string `yaml:"api_key" env:"API_KEY"`

	// RequestsPerSecond and Burst rate-limit request frames per IPC client.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`

	// RequestTimeout bounds a single request/response exchange, except
	// confirmations which carry their own timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// DiscordConfig tunes the platform connections.
type DiscordConfig struct {
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout" env:"CONFIRM_TIMEOUT"`
	DownloadTimeout time.Duration `yaml:"download_timeout" env:"DOWNLOAD_TIMEOUT"`
	// MaxAttachmentBytes caps a single downloaded or decoded attachment.
	MaxAttachmentBytes int64 `yaml:"max_attachment_bytes" env:"MAX_ATTACHMENT_BYTES"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// HealthConfig configures the periodic status reporter.
type HealthConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			Host:              "127.0.0.1",
			Port:              18790,
			Path:              "/ipc",
			RequestsPerSecond: 50,
			Burst:             100,
			RequestTimeout:    30 * time.Second,
		},
		Discord: DiscordConfig{
			ConfirmTimeout:     60 * time.Second,
			DownloadTimeout:    20 * time.Second,
			MaxAttachmentBytes: 25 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Health: HealthConfig{
			Enabled:  true,
			Schedule: "*/5 * * * *",
		},
	}
}

// Load reads path (if non-empty), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.Router.Port <= 0 || c.Router.Port > 65535 {
		errs = append(errs, fmt.Errorf("router.port %d out of range", c.Router.Port))
	}
	if !strings.HasPrefix(c.Router.Path, "/") {
		errs = append(errs, fmt.Errorf("router.path %q must start with /", c.Router.Path))
	}
	if c.Router.RequestsPerSecond <= 0 || c.Router.Burst <= 0 {
		errs = append(errs, errors.New("router rate limit must be positive"))
	}
	if c.Discord.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("discord.confirm_timeout must be positive"))
	}
	if c.Health.Enabled && !gronx.New().IsValid(c.Health.Schedule) {
		errs = append(errs, fmt.Errorf("health.schedule %q is not a valid cron expression", c.Health.Schedule))
	}

	return errors.Join(errs...)
}

// Addr returns the host:port the IPC server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Router.Host, c.Router.Port)
}
