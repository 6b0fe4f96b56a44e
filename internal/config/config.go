// Package config loads ~/.wpprelay/config.toml with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config represents the global config file. Every field can be overridden by
// the WPPRELAY_* variable named in its env tag.
type Config struct {
	DefaultInstance string         `toml:"default_instance" env:"WPPRELAY_DEFAULT_INSTANCE"`
	HTTP            HTTPConfig     `toml:"http"`
	Store           StoreConfig    `toml:"store"`
	Delivery        DeliveryConfig `toml:"delivery"`
	Log             LogConfig      `toml:"log"`
}

type HTTPConfig struct {
	Addr           string   `toml:"addr" env:"WPPRELAY_HTTP_ADDR"`
	MaxBodyBytes   int64    `toml:"max_body_bytes" env:"WPPRELAY_HTTP_MAX_BODY_BYTES"`
	AllowedOrigins []string `toml:"allowed_origins" env:"WPPRELAY_HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

// StoreConfig selects the backend. An empty DSN with the sqlite driver means
// the instance's own database file.
type StoreConfig struct {
	Driver         string        `toml:"driver" env:"WPPRELAY_STORE_DRIVER"`
	DSN            string        `toml:"dsn" env:"WPPRELAY_STORE_DSN"`
	RetryAttempts  int           `toml:"retry_attempts" env:"WPPRELAY_STORE_RETRY_ATTEMPTS"`
	RetryBaseDelay time.Duration `toml:"retry_base_delay" env:"WPPRELAY_STORE_RETRY_BASE_DELAY"`
}

type DeliveryConfig struct {
	Keepalive    time.Duration `toml:"keepalive" env:"WPPRELAY_DELIVERY_KEEPALIVE"`
	QueueSize    int           `toml:"queue_size" env:"WPPRELAY_DELIVERY_QUEUE_SIZE"`
	WriteTimeout time.Duration `toml:"write_timeout" env:"WPPRELAY_DELIVERY_WRITE_TIMEOUT"`
}

type LogConfig struct {
	Level string `toml:"level" env:"WPPRELAY_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultInstance: "main",
		HTTP: HTTPConfig{
			Addr:           ":8000",
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"localhost:3000"},
		},
		Store: StoreConfig{
			Driver:         "sqlite",
			RetryAttempts:  3,
			RetryBaseDelay: 200 * time.Millisecond,
		},
		Delivery: DeliveryConfig{
			Keepalive:    25 * time.Second,
			QueueSize:    64,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults, then applies
// environment overrides. A missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// (still with environment overrides).
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := env.Parse(cfg); err != nil {
			return nil, fmt.Errorf("config env: %w", err)
		}
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if (c.Store.Driver == "postgres" || c.Store.Driver == "postgresql") && c.Store.DSN == "" {
		return errors.New("config: store.dsn is required for postgres")
	}
	if c.Delivery.QueueSize < 0 {
		return fmt.Errorf("config: delivery.queue_size must not be negative, got %d", c.Delivery.QueueSize)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
