// Package config loads rc2sync configuration from a file, the environment
// and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/connection"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/session"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/retry"
)

// Config is the complete rc2sync configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (RC2_*, e.g. RC2_SERVER_HOST)
//  2. Configuration file (YAML, TOML or JSON)
//  3. Default values
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	State   StateConfig   `mapstructure:"state"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

// ServerConfig addresses the rc2 app server.
type ServerConfig struct {
	Name           string `mapstructure:"name"`
	Host           string `mapstructure:"host" validate:"required,hostname_rfc1123|ip"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Secure         bool   `mapstructure:"secure"`
	URLPrefix      string `mapstructure:"url_prefix"`
	User           string `mapstructure:"user"`
	Build          int    `mapstructure:"build" validate:"gte=0"`
	ClientPlatform string `mapstructure:"client_platform" validate:"required"`
}

type AuthConfig struct {
	// Token is the bearer token from a previous login.
	Token string `mapstructure:"token"`
}

type CacheConfig struct {
	// Dir is the platform cache directory joined with BundleID unless set.
	Dir              string `mapstructure:"dir" validate:"required"`
	BundleID         string `mapstructure:"bundle_id" validate:"required"`
	Concurrency      int    `mapstructure:"concurrency" validate:"min=1,max=64"`
	ImageMemoryBytes int64  `mapstructure:"image_memory_bytes" validate:"min=0"`
}

type SessionConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gt=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
	Output string `mapstructure:"output" validate:"required"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

type StateConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1"`
	InitialWait time.Duration `mapstructure:"initial_wait" validate:"gt=0"`
	MaxWait     time.Duration `mapstructure:"max_wait" validate:"gtefield=InitialWait"`
}

// envKeys are bound explicitly so environment variables apply even when the
// key is absent from the config file.
var envKeys = []string{
	"server.name", "server.host", "server.port", "server.secure", "server.url_prefix",
	"server.user", "server.build", "server.client_platform",
	"auth.token",
	"cache.dir", "cache.bundle_id", "cache.concurrency", "cache.image_memory_bytes",
	"session.heartbeat_interval", "session.write_timeout", "session.read_timeout",
	"session.handshake_timeout", "session.request_timeout",
	"logging.level", "logging.format", "logging.output",
	"metrics.enabled", "metrics.addr",
	"state.path",
	"retry.max_attempts", "retry.initial_wait", "retry.max_wait",
}

// Load reads configPath (or the default location when empty), applies
// environment overrides and defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("RC2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the config file. A missing default file is not an error.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// ConfigDir is $XDG_CONFIG_HOME/rc2sync, falling back to ~/.config/rc2sync.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rc2sync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rc2sync")
}

// Host returns the server as a connection.Host.
func (c *Config) Host() connection.Host {
	return connection.Host{
		Name:      c.Server.Name,
		Host:      c.Server.Host,
		Port:      c.Server.Port,
		Secure:    c.Server.Secure,
		URLPrefix: c.Server.URLPrefix,
		User:      c.Server.User,
	}
}

func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format, OutputPath: c.Logging.Output}
}

func (c *Config) RetryConfig() retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = c.Retry.MaxAttempts
	rc.InitialWait = c.Retry.InitialWait
	rc.MaxWait = c.Retry.MaxWait
	return rc
}

func (c *Config) TransportSettings() session.TransportSettings {
	return session.TransportSettings{
		HandshakeTimeout: c.Session.HandshakeTimeout,
		WriteTimeout:     c.Session.WriteTimeout,
		ReadTimeout:      c.Session.ReadTimeout,
	}
}
