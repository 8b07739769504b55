// Package config provides configuration management for vef using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 10
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultPollInterval     = 2 * time.Second
	defaultTimeoutFactor    = 5.0
	defaultGopLength        = 60
	defaultKeyintMin        = 30
	defaultVmafModelVersion = "vmaf_v0.6.1"
	defaultVmafThreads      = 4
	defaultVmafSubsample    = 1
	defaultMaxAttempts      = 5
	defaultMinBitrateKbps   = 200
	defaultMaxBitrateKbps   = 80000
	defaultIncreaseFactor   = 1.25
	defaultDecreaseFactor   = 0.85
	defaultMinrateFactor    = 0.7
	defaultMaxrateFactor    = 1.15
	defaultBufsizeFactor    = 2.0
	defaultSceneThreshold   = 0.4
	defaultCleanupCron      = "0 0 3 * * *"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Encoding  EncodingConfig  `mapstructure:"encoding"`
	Vmaf      VmafConfig      `mapstructure:"vmaf"`
	Abr       AbrConfig       `mapstructure:"abr"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds workspace path configuration.
type StorageConfig struct {
	// Workspace is the base directory for transient files (remote input
	// downloads, scene segments).
	Workspace string `mapstructure:"workspace"`
	// DownloadsDir is the subdirectory of Workspace used for remote inputs.
	DownloadsDir string `mapstructure:"downloads_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SchedulerConfig holds the job scheduler loop configuration.
type SchedulerConfig struct {
	// PollInterval is the sleep between scheduler iterations when idle or
	// while another job is running.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// FFmpegConfig holds external binary configuration.
type FFmpegConfig struct {
	// Bin is the ffmpeg binary path or name (resolved via PATH).
	Bin string `mapstructure:"bin"`
	// Probe is the ffprobe binary path or name.
	Probe string `mapstructure:"probe"`
	// TimeoutFactor bounds each encode invocation at
	// max(mediaDuration*TimeoutFactor, 30s).
	TimeoutFactor float64 `mapstructure:"timeout_factor"`
}

// EncodingConfig holds GOP/keyframe defaults applied to every encode.
type EncodingConfig struct {
	GopLength   int `mapstructure:"gop_length"`
	KeyintMin   int `mapstructure:"keyint_min"`
	ScThreshold int `mapstructure:"sc_threshold"`
}

// VmafConfig holds quality evaluation and bitrate tuning configuration.
type VmafConfig struct {
	ModelVersion   string  `mapstructure:"model_version"`
	Threads        int     `mapstructure:"threads"`
	Subsample      int     `mapstructure:"subsample"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	MinBitrateKbps int     `mapstructure:"min_bitrate_kbps"`
	MaxBitrateKbps int     `mapstructure:"max_bitrate_kbps"`
	IncreaseFactor float64 `mapstructure:"increase_factor"`
	DecreaseFactor float64 `mapstructure:"decrease_factor"`
}

// AbrConfig holds average-bitrate derivation factors.
type AbrConfig struct {
	MinrateFactor float64 `mapstructure:"minrate_factor"`
	MaxrateFactor float64 `mapstructure:"maxrate_factor"`
	BufsizeFactor float64 `mapstructure:"bufsize_factor"`
}

// CleanupConfig holds orphaned temp-file cleanup configuration.
type CleanupConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Cron is a 6-field cron expression for periodic cleanup runs.
	Cron string `mapstructure:"cron"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with VEF_, using underscores for nesting.
// Example: VEF_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vef")
		v.AddConfigPath("$HOME/.vef")
	}

	v.SetEnvPrefix("VEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vef.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.workspace", "/tmp/vef")
	v.SetDefault("storage.downloads_dir", "downloads")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Scheduler defaults
	v.SetDefault("scheduler.poll_interval", defaultPollInterval)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.bin", "ffmpeg")
	v.SetDefault("ffmpeg.probe", "ffprobe")
	v.SetDefault("ffmpeg.timeout_factor", defaultTimeoutFactor)

	// Encoding defaults
	v.SetDefault("encoding.gop_length", defaultGopLength)
	v.SetDefault("encoding.keyint_min", defaultKeyintMin)
	v.SetDefault("encoding.sc_threshold", 0)

	// VMAF defaults
	v.SetDefault("vmaf.model_version", defaultVmafModelVersion)
	v.SetDefault("vmaf.threads", defaultVmafThreads)
	v.SetDefault("vmaf.subsample", defaultVmafSubsample)
	v.SetDefault("vmaf.max_attempts", defaultMaxAttempts)
	v.SetDefault("vmaf.min_bitrate_kbps", defaultMinBitrateKbps)
	v.SetDefault("vmaf.max_bitrate_kbps", defaultMaxBitrateKbps)
	v.SetDefault("vmaf.increase_factor", defaultIncreaseFactor)
	v.SetDefault("vmaf.decrease_factor", defaultDecreaseFactor)

	// ABR defaults
	v.SetDefault("abr.minrate_factor", defaultMinrateFactor)
	v.SetDefault("abr.maxrate_factor", defaultMaxrateFactor)
	v.SetDefault("abr.bufsize_factor", defaultBufsizeFactor)

	// Cleanup defaults
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.cron", defaultCleanupCron)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.Workspace == "" {
		return fmt.Errorf("storage.workspace is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive")
	}
	if c.FFmpeg.TimeoutFactor <= 0 {
		return fmt.Errorf("ffmpeg.timeout_factor must be positive")
	}

	if c.Vmaf.MinBitrateKbps < 1 {
		return fmt.Errorf("vmaf.min_bitrate_kbps must be at least 1")
	}
	if c.Vmaf.MaxBitrateKbps <= c.Vmaf.MinBitrateKbps {
		return fmt.Errorf("vmaf.max_bitrate_kbps must exceed vmaf.min_bitrate_kbps")
	}
	if c.Vmaf.IncreaseFactor <= 1 {
		return fmt.Errorf("vmaf.increase_factor must be greater than 1")
	}
	if c.Vmaf.DecreaseFactor <= 0 || c.Vmaf.DecreaseFactor >= 1 {
		return fmt.Errorf("vmaf.decrease_factor must be between 0 and 1")
	}
	if c.Vmaf.MaxAttempts < 1 {
		return fmt.Errorf("vmaf.max_attempts must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DownloadsPath returns the full path to the remote input download directory.
func (c *StorageConfig) DownloadsPath() string {
	return filepath.Join(c.Workspace, c.DownloadsDir)
}
