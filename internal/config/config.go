package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ThrottleConfig struct {
	// Threshold is the failed-attempt count at which further attempts are
	// short-circuited with 429 until the window expires.
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

type UploadConfig struct {
	// Defaults applied when an event is created without explicit ceilings.
	DefaultMaxFileSizeBytes  int64 `yaml:"default_max_file_size_bytes"`
	DefaultMaxTotalSizeBytes int64 `yaml:"default_max_total_size_bytes"`
}

type Config struct {
	Listen   string `yaml:"listen" env:"LISTEN"`
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	// DataDir is the root of all event namespaces on disk.
	DataDir  string `yaml:"data_dir" env:"DATA_DIR"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	AllowedDomains     []string `yaml:"allowed_domains" env:"ALLOWED_DOMAINS"`
	SupportSubdomain   bool     `yaml:"support_subdomain" env:"SUPPORT_SUBDOMAIN"`
	AllowEventCreation bool     `yaml:"allow_event_creation" env:"ALLOW_EVENT_CREATION"`

	// RateLimitEnabled mirrors the edge proxy toggle. The proxy does the
	// coarse per-IP throttling; the core only records the assumption.
	RateLimitEnabled bool `yaml:"rate_limit_enabled" env:"RATE_LIMIT_ENABLED"`

	Throttle ThrottleConfig `yaml:"throttle"`
	Upload   UploadConfig   `yaml:"upload"`
}

func Load(fileName string) (*Config, error) {
	cfg := &Config{
		Listen:             ":8080",
		DataDir:            "data",
		LogLevel:           LogLevelInfo,
		AllowEventCreation: true,
		Throttle: ThrottleConfig{
			Threshold: 12,
			Window:    15 * time.Minute,
		},
		Upload: UploadConfig{
			DefaultMaxFileSizeBytes:  100 << 20,
			DefaultMaxTotalSizeBytes: 1 << 30,
		},
	}

	// The file is optional: an env-only deployment runs without one.
	if fileName != "" {
		data, err := os.ReadFile(fileName)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}

		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot unmarshal config: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot parse environment: %w", err)
	}

	return cfg, nil
}

func MustLoad(fileName string) *Config {
	cfg, err := Load(fileName)
	if err != nil {
		panic(err)
	}

	return cfg
}
