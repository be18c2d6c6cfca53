package config

import (
	"strings"
	"time"

	"github.com/marmos91/transferd/pkg/store"
)

// ApplyDefaults fills in zero-valued fields of cfg with transferd's
// compiled-in defaults. Explicit values (from file or environment) are
// always preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyUploadDefaults(&cfg.Upload)
	applyDownloadDefaults(&cfg.Download)
	applyReaperDefaults(&cfg.Reaper)
	cfg.Database.ApplyDefaults()
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyUploadDefaults: 200MB per upload, 30s announce-to-stream gap,
// 86400s (24h) default lifespan.
func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "/var/lib/transferd/uploads"
	}
	if cfg.LimitBytes == 0 {
		cfg.LimitBytes = 200 * 1024 * 1024
	}
	if cfg.MaxCombinedBytes == 0 {
		cfg.MaxCombinedBytes = 5 * 1024 * 1024 * 1024
	}
	if cfg.TimeoutSecs == 0 {
		cfg.TimeoutSecs = 30
	}
	if cfg.LifespanSecsDefault == 0 {
		cfg.LifespanSecsDefault = 86400
	}
}

func applyDownloadDefaults(cfg *DownloadConfig) {
	if cfg.TimeoutSecs == 0 {
		cfg.TimeoutSecs = 60
	}
	// LimitDefault stays nil (unlimited) unless explicitly configured.
}

func applyReaperDefaults(cfg *ReaperConfig) {
	if cfg.SweepIntervalSecs == 0 {
		cfg.SweepIntervalSecs = 60
	}
}

// GetDefaultConfig returns a Config with every default applied. Load
// starts from it before applying file and environment values; tests use
// it directly.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
