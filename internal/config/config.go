package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Trigger strategy names accepted by compaction.trigger_strategy
const (
	TriggerNumCommits                 = "num_commits"
	TriggerNumCommitsAfterLastRequest = "num_commits_after_last_request"
	TriggerTimeElapsed                = "time_elapsed"
	TriggerNumOrTime                  = "num_or_time"
	TriggerNumAndTime                 = "num_and_time"
)

// Instant store backends accepted by table.instant_store.backend
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config represents the complete configuration for a table process
type Config struct {
	Table      TableConfig      `yaml:"table"`
	Write      WriteConfig      `yaml:"write"`
	Compaction CompactionConfig `yaml:"compaction"`
	Retry      RetryConfig      `yaml:"retry"`
	Health     HealthConfig     `yaml:"health"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TableConfig locates the table and its instant store
type TableConfig struct {
	BasePath     string             `yaml:"base_path"`
	Name         string             `yaml:"name"`
	InstantStore InstantStoreConfig `yaml:"instant_store"`
}

// InstantStoreConfig selects where instant artifacts are persisted
type InstantStoreConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

// WriteConfig holds write client configuration
type WriteConfig struct {
	BucketsPerPartition int `yaml:"buckets_per_partition"`
	MaxRecordKeySize    int `yaml:"max_record_key_size"`
	MaxValueSize        int `yaml:"max_value_size"`
}

// CompactionConfig holds the compaction policy and executor settings
type CompactionConfig struct {
	Inline            bool          `yaml:"inline"`
	ScheduleInline    bool          `yaml:"schedule_inline"`
	TriggerStrategy   string        `yaml:"trigger_strategy"`
	MaxDeltaCommits   int           `yaml:"max_delta_commits"`
	MaxDeltaSeconds   int           `yaml:"max_delta_seconds"`
	TargetIOBytes     int64         `yaml:"target_io_bytes"`
	Parallelism       int           `yaml:"parallelism"`
	Interval          time.Duration `yaml:"interval"`
	ThrottleOpsPerSec float64       `yaml:"throttle_ops_per_sec"`
}

// RetryConfig controls retries of transient instant store failures
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

// HealthConfig holds health check thresholds
type HealthConfig struct {
	MaxDiskUsage       float64       `yaml:"max_disk_usage"`
	StaleInflightAfter time.Duration `yaml:"stale_inflight_after"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a file, then applies TABLECORE_* environment overrides.
// An empty path yields defaults plus environment overrides.
func LoadConfig(filePath string) (*Config, error) {
	var cfg Config
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvironmentOverrides(&cfg)

	// Set defaults if not specified
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides maps TABLECORE_<SECTION>_<KEY> variables onto cfg
func applyEnvironmentOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("TABLECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	setString("table.base_path", &cfg.Table.BasePath)
	setString("table.name", &cfg.Table.Name)
	setString("table.instant_store.backend", &cfg.Table.InstantStore.Backend)
	setString("table.instant_store.dsn", &cfg.Table.InstantStore.DSN)

	setInt("write.buckets_per_partition", &cfg.Write.BucketsPerPartition)

	setBool("compaction.inline", &cfg.Compaction.Inline)
	setBool("compaction.schedule_inline", &cfg.Compaction.ScheduleInline)
	setString("compaction.trigger_strategy", &cfg.Compaction.TriggerStrategy)
	setInt("compaction.max_delta_commits", &cfg.Compaction.MaxDeltaCommits)
	setInt("compaction.max_delta_seconds", &cfg.Compaction.MaxDeltaSeconds)
	setDuration("compaction.interval", &cfg.Compaction.Interval)
	if v.IsSet("compaction.target_io_bytes") {
		cfg.Compaction.TargetIOBytes = v.GetInt64("compaction.target_io_bytes")
	}

	setInt("retry.max_retries", &cfg.Retry.MaxRetries)

	setBool("metrics.enabled", &cfg.Metrics.Enabled)
	setInt("metrics.port", &cfg.Metrics.Port)

	setString("logging.level", &cfg.Logging.Level)
	setString("logging.format", &cfg.Logging.Format)
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Table.Name == "" {
		cfg.Table.Name = "default"
	}
	if cfg.Table.InstantStore.Backend == "" {
		cfg.Table.InstantStore.Backend = BackendFile
	}

	if cfg.Write.BucketsPerPartition == 0 {
		cfg.Write.BucketsPerPartition = 4
	}
	if cfg.Write.MaxRecordKeySize == 0 {
		cfg.Write.MaxRecordKeySize = 1024
	}
	if cfg.Write.MaxValueSize == 0 {
		cfg.Write.MaxValueSize = 1 << 20 // 1MB
	}

	if cfg.Compaction.TriggerStrategy == "" {
		cfg.Compaction.TriggerStrategy = TriggerNumCommits
	}
	if cfg.Compaction.MaxDeltaCommits == 0 {
		cfg.Compaction.MaxDeltaCommits = 5
	}
	if cfg.Compaction.MaxDeltaSeconds == 0 {
		cfg.Compaction.MaxDeltaSeconds = 3600
	}
	if cfg.Compaction.Parallelism == 0 {
		cfg.Compaction.Parallelism = 4
	}
	if cfg.Compaction.Interval == 0 {
		cfg.Compaction.Interval = 30 * time.Second
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 5
	}
	if cfg.Retry.InitialInterval == 0 {
		cfg.Retry.InitialInterval = 50 * time.Millisecond
	}
	if cfg.Retry.MaxElapsed == 0 {
		cfg.Retry.MaxElapsed = 10 * time.Second
	}

	if cfg.Health.MaxDiskUsage == 0 {
		cfg.Health.MaxDiskUsage = 0.9
	}
	if cfg.Health.StaleInflightAfter == 0 {
		cfg.Health.StaleInflightAfter = 30 * time.Minute
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Table.InstantStore.Backend {
	case BackendFile, BackendSQLite:
	case BackendPostgres:
		if c.Table.InstantStore.DSN == "" {
			return fmt.Errorf("table.instant_store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("table.instant_store.backend must be one of file, sqlite, postgres")
	}
	switch c.Compaction.TriggerStrategy {
	case TriggerNumCommits, TriggerNumCommitsAfterLastRequest, TriggerTimeElapsed, TriggerNumOrTime, TriggerNumAndTime:
	default:
		return fmt.Errorf("compaction.trigger_strategy %q is not supported", c.Compaction.TriggerStrategy)
	}
	if c.Compaction.MaxDeltaCommits < 1 {
		return fmt.Errorf("compaction.max_delta_commits must be positive")
	}
	if c.Compaction.MaxDeltaSeconds < 0 {
		return fmt.Errorf("compaction.max_delta_seconds must not be negative")
	}
	if c.Compaction.TargetIOBytes < 0 {
		return fmt.Errorf("compaction.target_io_bytes must not be negative")
	}
	if c.Write.BucketsPerPartition < 1 {
		return fmt.Errorf("write.buckets_per_partition must be positive")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	if c.Health.MaxDiskUsage < 0 || c.Health.MaxDiskUsage > 1 {
		return fmt.Errorf("health.max_disk_usage must be between 0 and 1")
	}
	return nil
}

