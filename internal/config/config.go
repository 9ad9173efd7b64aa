package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	JWT        JWTConfig        `yaml:"jwt"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Security   SecurityConfig   `yaml:"security"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// DatabaseConfig represents SQLite configuration
type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	MaxOpen         int           `yaml:"max_open"`
	MaxIdle         int           `yaml:"max_idle"`
	Timeout         time.Duration `yaml:"timeout"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	SecretKey       string        `yaml:"secret_key"`
	Duration        time.Duration `yaml:"duration"`
	RefreshDuration time.Duration `yaml:"refresh_duration"`
}

// GatewayConfig represents MT5 gateway configuration
type GatewayConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// SecurityConfig represents credential encryption configuration
type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// AlertingConfig represents alerting configuration
type AlertingConfig struct {
	EvaluateInterval string        `yaml:"evaluate_interval"` // cron spec
	MarginLevelFloor float64       `yaml:"margin_level_floor"`
	RetryCount       int           `yaml:"retry_count"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	Timeout          time.Duration `yaml:"timeout"`
	Email            EmailConfig   `yaml:"email"`
	Slack            SlackConfig   `yaml:"slack"`
	Webhook          WebhookConfig `yaml:"webhook"`
}

// EmailConfig represents SMTP alert channel configuration
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// SlackConfig represents Slack alert channel configuration
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// WebhookConfig represents generic webhook alert channel configuration
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file. Values of the form ${VAR}
// are expanded from the environment before parsing.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/tradeinsight.db"
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "migrations"
	}
	if c.JWT.Duration == 0 {
		c.JWT.Duration = 15 * time.Minute
	}
	if c.JWT.RefreshDuration == 0 {
		c.JWT.RefreshDuration = 7 * 24 * time.Hour
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 10 * time.Second
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = 3
	}
	if c.Gateway.RetryBaseDelay == 0 {
		c.Gateway.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.Gateway.RequestsPerSecond == 0 {
		c.Gateway.RequestsPerSecond = 10
	}
	if c.Alerting.EvaluateInterval == "" {
		c.Alerting.EvaluateInterval = "@every 30s"
	}
	if c.Alerting.MarginLevelFloor == 0 {
		c.Alerting.MarginLevelFloor = 150
	}
	if c.Alerting.RetryCount == 0 {
		c.Alerting.RetryCount = 3
	}
	if c.Alerting.RetryInterval == 0 {
		c.Alerting.RetryInterval = 30 * time.Second
	}
	if c.Alerting.Timeout == 0 {
		c.Alerting.Timeout = 10 * time.Second
	}
	if c.Monitoring.PrometheusPath == "" {
		c.Monitoring.PrometheusPath = "/metrics"
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 300
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key is required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("security.encryption_key is required")
	}
	return nil
}
