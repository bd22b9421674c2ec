package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "table:\n  base_path: /tmp/t1\n"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/t1", cfg.Table.BasePath)
	assert.Equal(t, BackendFile, cfg.Table.InstantStore.Backend)
	assert.Equal(t, TriggerNumCommits, cfg.Compaction.TriggerStrategy)
	assert.Equal(t, 5, cfg.Compaction.MaxDeltaCommits)
	assert.Equal(t, 30*time.Second, cfg.Compaction.Interval)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Compaction.Inline)
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
table:
  base_path: /data/orders
  instant_store:
    backend: sqlite
compaction:
  inline: true
  trigger_strategy: num_and_time
  max_delta_commits: 3
  max_delta_seconds: 10
  interval: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Table.InstantStore.Backend)
	assert.True(t, cfg.Compaction.Inline)
	assert.Equal(t, TriggerNumAndTime, cfg.Compaction.TriggerStrategy)
	assert.Equal(t, 3, cfg.Compaction.MaxDeltaCommits)
	assert.Equal(t, 10, cfg.Compaction.MaxDeltaSeconds)
	assert.Equal(t, 5*time.Second, cfg.Compaction.Interval)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TABLECORE_TABLE_BASE_PATH", "/env/path")
	t.Setenv("TABLECORE_COMPACTION_TRIGGER_STRATEGY", "time_elapsed")
	t.Setenv("TABLECORE_COMPACTION_INLINE", "true")
	t.Setenv("TABLECORE_COMPACTION_MAX_DELTA_COMMITS", "7")
	t.Setenv("TABLECORE_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, "table:\n  base_path: /file/path\n"))
	require.NoError(t, err)

	assert.Equal(t, "/env/path", cfg.Table.BasePath)
	assert.Equal(t, TriggerTimeElapsed, cfg.Compaction.TriggerStrategy)
	assert.True(t, cfg.Compaction.Inline)
	assert.Equal(t, 7, cfg.Compaction.MaxDeltaCommits)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Table.Name)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown strategy", func(c *Config) { c.Compaction.TriggerStrategy = "log_size" }, true},
		{"unknown backend", func(c *Config) { c.Table.InstantStore.Backend = "hbase" }, true},
		{"postgres without dsn", func(c *Config) { c.Table.InstantStore.Backend = BackendPostgres }, true},
		{"postgres with dsn", func(c *Config) {
			c.Table.InstantStore.Backend = BackendPostgres
			c.Table.InstantStore.DSN = "postgres://localhost/tables"
		}, false},
		{"negative target io", func(c *Config) { c.Compaction.TargetIOBytes = -1 }, true},
		{"disk usage out of range", func(c *Config) { c.Health.MaxDiskUsage = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "compaction:\n  trigger_strategy: whenever\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
