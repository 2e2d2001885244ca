package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete daemon configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Authority AuthorityConfig `yaml:"authority" envconfig:"AUTHORITY"`
	Updates   UpdatesConfig   `yaml:"updates" envconfig:"UPDATES"`
	Quota     QuotaConfig     `yaml:"quota" envconfig:"QUOTA"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains the local HTTP server configuration. The server only
// ever binds loopback; the renderer process is its single consumer.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"38420"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// AuthorityConfig points at the remote license authority (the product
// website's API) and bounds how the daemon talks to it.
type AuthorityConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://memorymonster.co/api"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"10s"`
	RatePerSecond  float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND" default:"2"`
	RateBurst      int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"5"`
	GracePeriod    time.Duration `yaml:"grace_period" envconfig:"GRACE_PERIOD" default:"6h"`
	RiskThreshold  float64       `yaml:"risk_threshold" envconfig:"RISK_THRESHOLD" default:"0.5"`
}

// UpdatesConfig drives the silent update check and reminder cadence.
type UpdatesConfig struct {
	RepoURL          string        `yaml:"repo_url" envconfig:"REPO_URL" default:"https://github.com/memorymonster/memory-monster-app"`
	CheckInterval    time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" default:"6h"`
	StartupDelay     time.Duration `yaml:"startup_delay" envconfig:"STARTUP_DELAY" default:"60s"`
	ReengageInterval time.Duration `yaml:"reengage_interval" envconfig:"REENGAGE_INTERVAL" default:"24h"`
	RequestTimeout   time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"15s"`
}

// QuotaConfig contains the free-tier scan allowance settings.
type QuotaConfig struct {
	DailyAllowance int           `yaml:"daily_allowance" envconfig:"DAILY_ALLOWANCE" default:"3"`
	ResetInterval  time.Duration `yaml:"reset_interval" envconfig:"RESET_INTERVAL" default:"24h"`
}

// WebSocketConfig contains WebSocket push configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from environment variables and config file.
// Environment variables (MM_ prefix) take precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("MM", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
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

// mergeConfigs merges file config with env config. An explicitly set
// environment variable wins; otherwise a value from the file overrides the
// built-in default.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if fileConfig.Server.Port != 0 && os.Getenv("MM_SERVER_PORT") == "" {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if fileConfig.Logging.Level != "" && os.Getenv("MM_LOGGING_LEVEL") == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Paths.DataDir != "" && os.Getenv("MM_PATHS_DATA_DIR") == "" {
		envConfig.Paths.DataDir = fileConfig.Paths.DataDir
	}
	if fileConfig.Authority.BaseURL != "" && os.Getenv("MM_AUTHORITY_BASE_URL") == "" {
		envConfig.Authority.BaseURL = fileConfig.Authority.BaseURL
	}
	if fileConfig.Updates.RepoURL != "" && os.Getenv("MM_UPDATES_REPO_URL") == "" {
		envConfig.Updates.RepoURL = fileConfig.Updates.RepoURL
	}
	if fileConfig.Quota.DailyAllowance != 0 && os.Getenv("MM_QUOTA_DAILY_ALLOWANCE") == "" {
		envConfig.Quota.DailyAllowance = fileConfig.Quota.DailyAllowance
	}

	return envConfig
}

// resolvePaths fills in the data and log directories from the centralized
// paths system when they were not configured explicitly.
func (c *Config) resolvePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = paths.DataDir
	}
	if c.Paths.LogsDir == "" {
		c.Paths.LogsDir = paths.LogsDir
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = paths.LogFile
	}

	return nil
}

// validate performs sanity checks on the configuration
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Quota.DailyAllowance < 0 {
		return fmt.Errorf("daily allowance must not be negative: %d", c.Quota.DailyAllowance)
	}
	if c.Authority.RiskThreshold < 0 || c.Authority.RiskThreshold > 1 {
		return fmt.Errorf("risk threshold must be in [0,1]: %f", c.Authority.RiskThreshold)
	}
	if c.Authority.GracePeriod <= 0 {
		return fmt.Errorf("grace period must be positive: %s", c.Authority.GracePeriod)
	}
	return nil
}

// getConfigFilePath returns the config file location
func getConfigFilePath() string {
	if path := os.Getenv("MM_CONFIG_FILE"); path != "" {
		return path
	}
	paths, err := GetPaths()
	if err != nil {
		return "config.yaml"
	}
	return paths.ConfigFile
}
