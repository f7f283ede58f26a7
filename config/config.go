// Package config loads runtime configuration for the control plane via
// spf13/viper, grounded on the pack's viper-based config.Load pattern
// (adred-codev-ws_poc/go-server-3/internal/config), generalized to this
// service's options (spec §6.3): heartbeat/connection timeouts, the
// idempotency cache's TTL/capacity/method gating, and the drain
// deadline bound.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every option spec §6.3 names as "recognized" plus the
// transport listen address.
type Config struct {
	Host                 string            `mapstructure:"host"`
	Port                 int               `mapstructure:"port"`
	HeartbeatIntervalMs  int               `mapstructure:"heartbeat_interval_ms"`
	ConnectionTimeoutMs  int               `mapstructure:"connection_timeout_ms"`
	DrainDeadlineSeconds int               `mapstructure:"drain_deadline_seconds"`
	Idempotency          IdempotencyConfig `mapstructure:"idempotency"`
	Eventbus             EventbusConfig    `mapstructure:"eventbus"`
}

// IdempotencyConfig controls the idempotency cache and its middleware
// gating (spec §4.3).
type IdempotencyConfig struct {
	TTLMs        int64    `mapstructure:"ttl_ms"`
	MaxRecords   int      `mapstructure:"max_records"`
	Methods      []string `mapstructure:"methods"`
	ExcludePaths []string `mapstructure:"exclude_paths"`
}

// EventbusConfig controls the optional cross-instance message bus
// (internal/adapter/eventbus). An empty AMQPURI disables it.
type EventbusConfig struct {
	AMQPURI string `mapstructure:"amqp_uri"`
}

// HeartbeatInterval returns the configured heartbeat interval as a
// time.Duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// ConnectionTimeout returns the configured connection timeout.
func (c Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

// IdempotencyTTL returns the configured idempotency record TTL.
func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Idempotency.TTLMs) * time.Millisecond
}

// Load reads configuration from environment variables (prefix FLYWHEEL)
// and an optional config file named flywheel.{yaml,json,toml,...} on the
// current directory or ./config.
func Load() (Config, error) {
	v := newViper()

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyBounds(&cfg)
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("heartbeat_interval_ms", 30000)
	v.SetDefault("connection_timeout_ms", 90000)
	v.SetDefault("drain_deadline_seconds", 30)

	v.SetDefault("idempotency.ttl_ms", int64(86400000))
	v.SetDefault("idempotency.max_records", 10000)
	v.SetDefault("idempotency.methods", []string{"POST", "PUT", "PATCH"})
	v.SetDefault("idempotency.exclude_paths", []string{})

	v.SetDefault("eventbus.amqp_uri", "")

	v.SetConfigName("flywheel")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("FLYWHEEL")
	v.AutomaticEnv()

	return v
}

// applyBounds clamps fields to the ranges spec §4.4/§6.3 require,
// falling back to defaults for anything out of range rather than
// failing startup over a bad override.
func applyBounds(cfg *Config) {
	if cfg.HeartbeatIntervalMs <= 0 {
		cfg.HeartbeatIntervalMs = 30000
	}
	if cfg.ConnectionTimeoutMs <= 0 {
		cfg.ConnectionTimeoutMs = 90000
	}
	if cfg.DrainDeadlineSeconds < 1 || cfg.DrainDeadlineSeconds > 300 {
		cfg.DrainDeadlineSeconds = 30
	}
	if cfg.Idempotency.TTLMs <= 0 {
		cfg.Idempotency.TTLMs = 86400000
	}
	if cfg.Idempotency.MaxRecords <= 0 {
		cfg.Idempotency.MaxRecords = 10000
	}
	if len(cfg.Idempotency.Methods) == 0 {
		cfg.Idempotency.Methods = []string{"POST", "PUT", "PATCH"}
	}
}
