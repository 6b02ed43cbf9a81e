package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigFileEnv, writeConfigFile(t, ""))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, 100.0, cfg.Security.RateLimit.RPS)
	assert.Equal(t, 50, cfg.Security.RateLimit.Burst)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 3*time.Second, cfg.Wizard.RecordPollInterval)
	assert.Equal(t, 2*time.Second, cfg.Wizard.DocumentPollInterval)
	assert.Equal(t, 2*time.Second, cfg.Wizard.AutoSaveDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Wizard.AutoAdvanceDelay)

	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 3306, cfg.Store.MySQL.Port)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv(ConfigFileEnv, writeConfigFile(t, ""))
	t.Setenv("DIVEOPS_SERVER_PORT", "9090")
	t.Setenv("DIVEOPS_WIZARD_AUTOSAVE_DELAY", "500ms")
	t.Setenv("DIVEOPS_STORE_DRIVER", "mysql")
	t.Setenv("DIVEOPS_STORE_MYSQL_HOST", "db.internal")
	t.Setenv("DIVEOPS_SECURITY_RATE_LIMIT_RPS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Wizard.AutoSaveDelay)
	assert.Equal(t, StoreDriverMySQL, cfg.Store.Driver)
	assert.Equal(t, "db.internal", cfg.Store.MySQL.Host)
	assert.Equal(t, 5.0, cfg.Security.RateLimit.RPS)
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 7070
wizard:
  record_poll_interval: 10s
  auto_advance_delay: 250ms
store:
  driver: mysql
  mysql:
    host: file-db
    database: ops
logging:
  level: debug
`)
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("DIVEOPS_LOGGING_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Wizard.RecordPollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Wizard.AutoAdvanceDelay)
	// untouched keys keep their defaults
	assert.Equal(t, 2*time.Second, cfg.Wizard.DocumentPollInterval)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, "file-db", cfg.Store.MySQL.Host)
	assert.Equal(t, "ops", cfg.Store.MySQL.Database)
	assert.Equal(t, 3306, cfg.Store.MySQL.Port)
	// env wins over file
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := loadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := loadFromFile(writeConfigFile(t, "server: [unterminated"))
		assert.Error(t, err)
	})

	t.Run("load surfaces file errors", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, writeConfigFile(t, "server: [unterminated"))
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config from file")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = 0 },
			wantErr: "read timeout",
		},
		{
			name:    "non-positive record poll",
			mutate:  func(c *Config) { c.Wizard.RecordPollInterval = 0 },
			wantErr: "poll intervals",
		},
		{
			name:    "negative autosave delay",
			mutate:  func(c *Config) { c.Wizard.AutoSaveDelay = -time.Second },
			wantErr: "autosave delay",
		},
		{
			name:    "zero auto-advance delay",
			mutate:  func(c *Config) { c.Wizard.AutoAdvanceDelay = 0 },
			wantErr: "auto-advance",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "unknown store driver",
		},
		{
			name: "mysql without database",
			mutate: func(c *Config) {
				c.Store.Driver = StoreDriverMySQL
				c.Store.MySQL.Database = ""
			},
			wantErr: "database name",
		},
		{
			name:    "sample ratio above one",
			mutate:  func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
			wantErr: "sample ratio",
		},
		{
			name: "rate limit disabled ignores rps",
			mutate: func(c *Config) {
				c.Security.RateLimit.Enabled = false
				c.Security.RateLimit.RPS = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "logs/diveops.log", cfg.Logging.FilePath)
}

func TestMergeConfigsRespectsExplicitEnv(t *testing.T) {
	env := *Default()
	file := Config{
		Server: ServerConfig{Port: 1234},
		Store:  StoreConfig{Driver: StoreDriverMySQL},
	}

	t.Setenv("DIVEOPS_SERVER_PORT", "8080")

	merged := mergeConfigs(file, env)
	assert.Equal(t, 8080, merged.Server.Port, "explicit env var wins")
	assert.Equal(t, StoreDriverMySQL, merged.Store.Driver, "file wins over default")
	assert.Equal(t, 15*time.Second, merged.Server.ReadTimeout, "zero file value keeps default")
}
