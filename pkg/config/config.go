// Package config loads transferd's static configuration: TRANSFERD_*
// environment variable, then YAML file, then default. The --config CLI
// flag only names the YAML file; no flag sets an individual key.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/transferd/pkg/store"
)

// Config is transferd's full static configuration: everything the
// server needs before it can accept its first request. Dynamic state
// (uploads, secrets, status) lives in the Metadata Store, not here.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Database configures the metadata store backend (SQLite or Postgres).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Server configures the HTTP listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Upload controls the announce/stream side of the lifecycle.
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// Download controls the init/body/confirm side of the lifecycle.
	Download DownloadConfig `mapstructure:"download" yaml:"download"`

	// Reaper controls the background sweep interval.
	Reaper ReaperConfig `mapstructure:"reaper" yaml:"reaper"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output encoding: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the HTTP listener that serves the
// JSON/octet-stream API surface.
type ServerConfig struct {
	// Host is the listen address.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds reading the request, including the body.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds how long a keep-alive connection may sit idle.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server start.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// UploadConfig holds the announce/stream side knobs.
type UploadConfig struct {
	// Dir is the filesystem directory uploaded blobs are stored under,
	// named <UPLOAD_DIR>/<uuid-hex> with no subdirectories.
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// LimitBytes is the maximum size of a single upload (upload_limit_bytes).
	LimitBytes int64 `mapstructure:"limit_bytes" validate:"required,gt=0" yaml:"limit_bytes"`

	// MaxCombinedBytes is the global storage cap the Accountant enforces
	// (max_combined_upload_bytes).
	MaxCombinedBytes int64 `mapstructure:"max_combined_bytes" validate:"required,gt=0" yaml:"max_combined_bytes"`

	// TimeoutSecs bounds the announce-to-stream gap (upload_timeout_secs).
	TimeoutSecs int64 `mapstructure:"timeout_secs" validate:"required,gt=0" yaml:"timeout_secs"`

	// LifespanSecsDefault is the default expiration lifetime applied when
	// announce omits a lifespan (upload_lifespan_secs_default).
	LifespanSecsDefault int64 `mapstructure:"lifespan_secs_default" validate:"required,gt=0" yaml:"lifespan_secs_default"`
}

// DownloadConfig holds the init/body/confirm side knobs.
type DownloadConfig struct {
	// TimeoutSecs bounds the life of a PendingDownload handshake row
	// (download_timeout_secs).
	TimeoutSecs int64 `mapstructure:"timeout_secs" validate:"required,gt=0" yaml:"timeout_secs"`

	// LimitDefault is the optional system-wide default per-upload download
	// cap (download_limit_default). Nil means unlimited by default.
	LimitDefault *int `mapstructure:"limit_default" yaml:"limit_default,omitempty"`
}

// ReaperConfig controls the background sweeper.
type ReaperConfig struct {
	// SweepIntervalSecs is the tick period (expired_cleanup_interval_secs).
	SweepIntervalSecs int64 `mapstructure:"sweep_interval_secs" validate:"required,gt=0" yaml:"sweep_interval_secs"`
}

var validate = validator.New()

// Load loads configuration from file, environment, and defaults.
//
// Precedence (highest to lowest): environment variables prefixed
// TRANSFERD_ (plus the bare LOG and CONFIG_DIR variables), the YAML
// file, and the compiled-in defaults. A TRANSFERD_ variable is read only
// for a key the YAML file sets: keys absent from the file, and every key
// when no file is found, are not read from TRANSFERD_ variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := GetDefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed. Used by tests that want a reproducible on-disk config.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TRANSFERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(GetConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// applyEnvOverrides applies the two bare (unprefixed) environment
// variables: LOG sets the logging level, CONFIG_DIR is consumed by
// GetConfigDir/GetDefaultConfigPath rather than here.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("LOG"); level != "" {
		cfg.Logging.Level = strings.ToUpper(level)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// GetConfigDir returns the configuration directory: CONFIG_DIR if set,
// else $XDG_CONFIG_HOME/transferd, else ~/.config/transferd.
func GetConfigDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "transferd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "transferd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
