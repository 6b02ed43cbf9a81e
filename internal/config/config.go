package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Wizard    WizardConfig    `yaml:"wizard" envconfig:"WIZARD"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/diveops.log"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// WizardConfig holds the session timing knobs.
type WizardConfig struct {
	RecordPollInterval   time.Duration `yaml:"record_poll_interval" envconfig:"RECORD_POLL_INTERVAL" default:"3s"`
	DocumentPollInterval time.Duration `yaml:"document_poll_interval" envconfig:"DOCUMENT_POLL_INTERVAL" default:"2s"`
	AutoSaveDelay        time.Duration `yaml:"autosave_delay" envconfig:"AUTOSAVE_DELAY" default:"2s"`
	AutoAdvanceDelay     time.Duration `yaml:"auto_advance_delay" envconfig:"AUTO_ADVANCE_DELAY" default:"1500ms"`
	MaxSessions          int           `yaml:"max_sessions" envconfig:"MAX_SESSIONS" default:"100"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	Driver string      `yaml:"driver" envconfig:"DRIVER" default:"memory"`
	MySQL  MySQLConfig `yaml:"mysql" envconfig:"MYSQL"`
}

// MySQLConfig holds connection settings for the mysql driver.
type MySQLConfig struct {
	Host           string        `yaml:"host" envconfig:"HOST" default:"127.0.0.1"`
	Port           int           `yaml:"port" envconfig:"PORT" default:"3306"`
	User           string        `yaml:"user" envconfig:"USER" default:"root"`
	Password       string        `yaml:"password" envconfig:"PASSWORD"`
	Database       string        `yaml:"database" envconfig:"DATABASE" default:"diveops"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT" default:"30s"`
	MaxOpenConns   int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"10"`
}

// TelemetryConfig configures the OpenTelemetry exporters.
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" default:"prometheus"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0"`
}

// Load loads configuration from environment variables and an optional YAML
// file. Explicitly set environment variables win over file values, which win
// over defaults.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs overlays non-zero file values onto envConfig for every key
// whose environment variable is not set.
func mergeConfigs(fileConfig, envConfig Config) Config {
	f, e := fileConfig, &envConfig

	overlay(&e.Server.Port, f.Server.Port, "SERVER_PORT")
	overlay(&e.Server.ReadTimeout, f.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	overlay(&e.Server.WriteTimeout, f.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	overlay(&e.Server.IdleTimeout, f.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT")
	overlay(&e.Server.MaxHeaderBytes, f.Server.MaxHeaderBytes, "SERVER_MAX_HEADER_BYTES")
	overlay(&e.Server.ShutdownTimeout, f.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	overlay(&e.Server.RequestTimeout, f.Server.RequestTimeout, "SERVER_REQUEST_TIMEOUT")

	overlay(&e.Security.RateLimit.RPS, f.Security.RateLimit.RPS, "SECURITY_RATE_LIMIT_RPS")
	overlay(&e.Security.RateLimit.Burst, f.Security.RateLimit.Burst, "SECURITY_RATE_LIMIT_BURST")

	overlay(&e.Logging.Level, f.Logging.Level, "LOGGING_LEVEL")
	overlay(&e.Logging.Format, f.Logging.Format, "LOGGING_FORMAT")
	overlay(&e.Logging.Output, f.Logging.Output, "LOGGING_OUTPUT")
	overlay(&e.Logging.FilePath, f.Logging.FilePath, "LOGGING_FILE_PATH")

	overlay(&e.WebSocket.ReadBufferSize, f.WebSocket.ReadBufferSize, "WEBSOCKET_READ_BUFFER_SIZE")
	overlay(&e.WebSocket.WriteBufferSize, f.WebSocket.WriteBufferSize, "WEBSOCKET_WRITE_BUFFER_SIZE")
	overlay(&e.WebSocket.PingPeriod, f.WebSocket.PingPeriod, "WEBSOCKET_PING_PERIOD")
	overlay(&e.WebSocket.PongWait, f.WebSocket.PongWait, "WEBSOCKET_PONG_WAIT")

	overlay(&e.Wizard.RecordPollInterval, f.Wizard.RecordPollInterval, "WIZARD_RECORD_POLL_INTERVAL")
	overlay(&e.Wizard.DocumentPollInterval, f.Wizard.DocumentPollInterval, "WIZARD_DOCUMENT_POLL_INTERVAL")
	overlay(&e.Wizard.AutoSaveDelay, f.Wizard.AutoSaveDelay, "WIZARD_AUTOSAVE_DELAY")
	overlay(&e.Wizard.AutoAdvanceDelay, f.Wizard.AutoAdvanceDelay, "WIZARD_AUTO_ADVANCE_DELAY")
	overlay(&e.Wizard.MaxSessions, f.Wizard.MaxSessions, "WIZARD_MAX_SESSIONS")

	overlay(&e.Store.Driver, f.Store.Driver, "STORE_DRIVER")
	overlay(&e.Store.MySQL.Host, f.Store.MySQL.Host, "STORE_MYSQL_HOST")
	overlay(&e.Store.MySQL.Port, f.Store.MySQL.Port, "STORE_MYSQL_PORT")
	overlay(&e.Store.MySQL.User, f.Store.MySQL.User, "STORE_MYSQL_USER")
	overlay(&e.Store.MySQL.Password, f.Store.MySQL.Password, "STORE_MYSQL_PASSWORD")
	overlay(&e.Store.MySQL.Database, f.Store.MySQL.Database, "STORE_MYSQL_DATABASE")
	overlay(&e.Store.MySQL.ConnectTimeout, f.Store.MySQL.ConnectTimeout, "STORE_MYSQL_CONNECT_TIMEOUT")
	overlay(&e.Store.MySQL.MaxOpenConns, f.Store.MySQL.MaxOpenConns, "STORE_MYSQL_MAX_OPEN_CONNS")

	overlay(&e.Telemetry.Environment, f.Telemetry.Environment, "TELEMETRY_ENVIRONMENT")
	overlay(&e.Telemetry.TraceExporter, f.Telemetry.TraceExporter, "TELEMETRY_TRACE_EXPORTER")
	overlay(&e.Telemetry.MetricExporter, f.Telemetry.MetricExporter, "TELEMETRY_METRIC_EXPORTER")
	overlay(&e.Telemetry.SampleRatio, f.Telemetry.SampleRatio, "TELEMETRY_SAMPLE_RATIO")

	return envConfig
}

func overlay[T comparable](dst *T, fileValue T, key string) {
	if _, set := os.LookupEnv(EnvPrefix + "_" + key); set {
		return
	}
	var zero T
	if fileValue != zero {
		*dst = fileValue
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive when enabled")
	}

	if c.Wizard.RecordPollInterval <= 0 || c.Wizard.DocumentPollInterval <= 0 {
		return fmt.Errorf("wizard poll intervals must be positive")
	}
	if c.Wizard.AutoSaveDelay <= 0 {
		return fmt.Errorf("wizard autosave delay must be positive")
	}
	if c.Wizard.AutoAdvanceDelay <= 0 {
		return fmt.Errorf("wizard auto-advance delay must be positive")
	}
	if c.Wizard.MaxSessions <= 0 {
		return fmt.Errorf("wizard max sessions must be positive")
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverMySQL:
		if c.Store.MySQL.Port <= 0 || c.Store.MySQL.Port > 65535 {
			return fmt.Errorf("invalid mysql port: %d", c.Store.MySQL.Port)
		}
		if c.Store.MySQL.Database == "" {
			return fmt.Errorf("mysql database name is required")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0,1]")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/diveops.log"
	}

	return nil
}

// getConfigFilePath returns the config file to overlay, or "" when none exists
func getConfigFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/diveops.log",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      WebSocketPingPeriod,
			PongWait:        WebSocketPongWait,
		},
		Wizard: WizardConfig{
			RecordPollInterval:   DefaultRecordPollInterval,
			DocumentPollInterval: DefaultDocumentPollInterval,
			AutoSaveDelay:        DefaultAutoSaveDelay,
			AutoAdvanceDelay:     DefaultAutoAdvanceDelay,
			MaxSessions:          DefaultMaxSessions,
		},
		Store: StoreConfig{
			Driver: StoreDriverMemory,
			MySQL: MySQLConfig{
				Host:           "127.0.0.1",
				Port:           3306,
				User:           "root",
				Database:       "diveops",
				ConnectTimeout: 30 * time.Second,
				MaxOpenConns:   10,
			},
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
