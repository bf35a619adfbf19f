package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/connection"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/imagecache"
)

// DefaultBundleID names the per-application cache directory.
const DefaultBundleID = "io.rc2.client"

// ApplyDefaults fills zero values. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyCacheDefaults(&cfg.Cache)
	applySessionDefaults(&cfg.Session)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyRetryDefaults(&cfg.Retry)

	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(cfg.Cache.Dir, "state.db")
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = connection.DefaultPort
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Host
	}
	if cfg.ClientPlatform == "" {
		cfg.ClientPlatform = "go"
	}
	if cfg.Build == 0 {
		cfg.Build = 1
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.BundleID == "" {
		cfg.BundleID = DefaultBundleID
	}
	if cfg.Dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		cfg.Dir = filepath.Join(base, cfg.BundleID)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.ImageMemoryBytes == 0 {
		cfg.ImageMemoryBytes = imagecache.DefaultMemoryBudget
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 90 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Level = strings.ToLower(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "console"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9464"
	}
}

func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialWait == 0 {
		cfg.InitialWait = 200 * time.Millisecond
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 5 * time.Second
	}
}
