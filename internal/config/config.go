// Package config provides configuration management for autoclip using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/jmylchreest/autoclip/pkg/bytesize"
	"github.com/jmylchreest/autoclip/pkg/duration"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. AUTOCLIP_SERVER_PORT=8080.
const EnvPrefix = "AUTOCLIP"

// Default configuration values.
const (
	defaultServerPort         = 8080
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxOpenConns       = 10
	defaultMaxIdleConns       = 5
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultMaxOutputSize      = "48MB"
	defaultMinFreeSpace       = "512MB"
	defaultProgressStep       = 5
	defaultCancelPollInterval = 500 * time.Millisecond
	defaultJobEstimate        = 60 * time.Second
	defaultOutputRetention    = time.Hour
	defaultHistoryRetention   = 30 * 24 * time.Hour
	defaultOrphanAge          = time.Hour
	defaultHousekeepingCron   = "0 */15 * * * *"
	defaultFFmpegPreset       = "veryfast"
	defaultRedisChannel       = "autoclip:events"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Limits       LimitsConfig       `mapstructure:"limits"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Profiles     []ProfileConfig    `mapstructure:"profiles"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the job history database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration. Relative directories are
// resolved against BaseDir.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	TempDir   string `mapstructure:"temp_dir"`
	OutputDir string `mapstructure:"output_dir"`
	StatsFile string `mapstructure:"stats_file"`
	// OutputRetention is how long delivered clips are kept. Zero removes
	// them as soon as they have been handed to the notifier, which only
	// suits synchronous sinks, so it is rejected while redis notify is on.
	OutputRetention  time.Duration `mapstructure:"output_retention"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `mapstructure:"level"`  // debug, info, warn, error
	Format     string   `mapstructure:"format"` // json, text
	AddSource  bool     `mapstructure:"add_source"`
	TimeFormat string   `mapstructure:"time_format"`
	Redact     []string `mapstructure:"redact"` // extra values masked in log output
}

// ToolsConfig locates the external programs the pipeline drives.
type ToolsConfig struct {
	YtDlpPath      string   `mapstructure:"ytdlp_path"`  // empty = auto-detect
	FFmpegPath     string   `mapstructure:"ffmpeg_path"` // empty = auto-detect
	FFmpegPreset   string   `mapstructure:"ffmpeg_preset"`
	YtDlpExtraArgs []string `mapstructure:"ytdlp_extra_args"`
}

// LimitsConfig bounds what a single job may consume.
type LimitsConfig struct {
	// MaxOutputSize is the estimated size ceiling applied at intake.
	// Supports human-readable values like "48MB" or raw byte counts.
	MaxOutputSize bytesize.Size `mapstructure:"max_output_size"`
	// MinFreeSpace is checked on the temp volume before a job starts.
	MinFreeSpace bytesize.Size `mapstructure:"min_free_space"`
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	MaxPending int `mapstructure:"max_pending"` // 0 = unlimited
}

// PipelineConfig holds runner tuning.
type PipelineConfig struct {
	ProgressStep       int           `mapstructure:"progress_step"`
	CancelPollInterval time.Duration `mapstructure:"cancel_poll_interval"`
}

// WorkerConfig holds worker loop configuration.
type WorkerConfig struct {
	JobTimeout         time.Duration `mapstructure:"job_timeout"` // 0 = no limit
	DefaultJobEstimate time.Duration `mapstructure:"default_job_estimate"`
}

// HousekeepingConfig holds the periodic cleanup schedule.
type HousekeepingConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Cron      string        `mapstructure:"cron"` // 6-field cron expression
	OrphanAge time.Duration `mapstructure:"orphan_age"`
}

// NotifyConfig holds notification sink configuration.
type NotifyConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the Redis stream used to hand events to a front-end.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// ProfileConfig overrides one entry of the output profile catalog.
type ProfileConfig struct {
	Name               string `mapstructure:"name"`
	Width              int    `mapstructure:"width"`
	Height             int    `mapstructure:"height"`
	VideoBitrateKbps   int    `mapstructure:"video_bitrate_kbps"`
	AudioBitrateKbps   int    `mapstructure:"audio_bitrate_kbps"`
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	DownloadFormat     string `mapstructure:"download_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
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
		v.AddConfigPath("/etc/autoclip")
		v.AddConfigPath("$HOME/.autoclip")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return Unmarshal(v)
}

// Unmarshal decodes and validates the settings held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DecodeHook returns the mapstructure hooks needed for bytesize.Size and
// time.Duration fields. Durations accept day and week units ("30d").
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		stringToDurationHook,
		mapstructure.StringToSliceHookFunc(","),
	)
}

func stringToDurationHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	return duration.Parse(data.(string))
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "autoclip.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.output_dir", "output")
	v.SetDefault("storage.stats_file", "stats.json")
	v.SetDefault("storage.output_retention", defaultOutputRetention)
	v.SetDefault("storage.history_retention", defaultHistoryRetention)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.redact", []string{})

	v.SetDefault("tools.ytdlp_path", "")
	v.SetDefault("tools.ffmpeg_path", "")
	v.SetDefault("tools.ffmpeg_preset", defaultFFmpegPreset)
	v.SetDefault("tools.ytdlp_extra_args", []string{})

	v.SetDefault("limits.max_output_size", defaultMaxOutputSize)
	v.SetDefault("limits.min_free_space", defaultMinFreeSpace)

	v.SetDefault("queue.max_pending", 0)

	v.SetDefault("pipeline.progress_step", defaultProgressStep)
	v.SetDefault("pipeline.cancel_poll_interval", defaultCancelPollInterval)

	v.SetDefault("worker.job_timeout", 0)
	v.SetDefault("worker.default_job_estimate", defaultJobEstimate)

	v.SetDefault("housekeeping.enabled", true)
	v.SetDefault("housekeeping.cron", defaultHousekeepingCron)
	v.SetDefault("housekeeping.orphan_age", defaultOrphanAge)

	v.SetDefault("notify.redis.enabled", false)
	v.SetDefault("notify.redis.addr", "localhost:6379")
	v.SetDefault("notify.redis.password", "")
	v.SetDefault("notify.redis.db", 0)
	v.SetDefault("notify.redis.channel", defaultRedisChannel)
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

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.StatsFile == "" {
		return fmt.Errorf("storage.stats_file is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Limits.MaxOutputSize <= 0 {
		return fmt.Errorf("limits.max_output_size must be positive")
	}
	if c.Limits.MinFreeSpace < 0 {
		return fmt.Errorf("limits.min_free_space must not be negative")
	}
	if c.Queue.MaxPending < 0 {
		return fmt.Errorf("queue.max_pending must not be negative")
	}

	if c.Pipeline.ProgressStep < 1 || c.Pipeline.ProgressStep > 100 {
		return fmt.Errorf("pipeline.progress_step must be between 1 and 100")
	}
	if c.Pipeline.CancelPollInterval <= 0 {
		return fmt.Errorf("pipeline.cancel_poll_interval must be positive")
	}
	if c.Worker.JobTimeout < 0 {
		return fmt.Errorf("worker.job_timeout must not be negative")
	}

	if c.Housekeeping.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Housekeeping.Cron); err != nil {
			return fmt.Errorf("housekeeping.cron is invalid: %w", err)
		}
	}

	if c.Notify.Redis.Enabled && c.Notify.Redis.Addr == "" {
		return fmt.Errorf("notify.redis.addr is required when redis notifications are enabled")
	}
	if c.Notify.Redis.Enabled && c.Storage.OutputRetention <= 0 {
		return fmt.Errorf("storage.output_retention must be positive when redis notifications are enabled")
	}

	seen := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return fmt.Errorf("profiles[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("profiles[%d]: duplicate profile %q", i, p.Name)
		}
		seen[name] = true
		if p.VideoBitrateKbps <= 0 || p.AudioBitrateKbps <= 0 {
			return fmt.Errorf("profiles[%d]: bitrates must be positive", i)
		}
		if p.MaxDurationSeconds <= 0 {
			return fmt.Errorf("profiles[%d]: max_duration_seconds must be positive", i)
		}
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("profiles[%d]: width and height must be positive", i)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TempPath returns the directory that holds per-job workspaces.
func (c *StorageConfig) TempPath() string {
	return c.resolve(c.TempDir)
}

// OutputPath returns the directory finished clips are moved to.
func (c *StorageConfig) OutputPath() string {
	return c.resolve(c.OutputDir)
}

// StatsPath returns the full path of the statistics file.
func (c *StorageConfig) StatsPath() string {
	return c.resolve(c.StatsFile)
}

func (c *StorageConfig) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}
