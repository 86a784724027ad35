package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Imprest  ImprestConfig  `mapstructure:"imprest"`
	Receipts ReceiptsConfig `mapstructure:"receipts"`
	Lark     LarkConfig     `mapstructure:"lark"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	MaxUploadMemory int64         `mapstructure:"max_upload_memory"`
}

// DatabaseConfig holds database configuration.
// An empty path selects the in-memory store.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ImprestConfig holds workflow policy settings
type ImprestConfig struct {
	AccountingWindow time.Duration `mapstructure:"accounting_window"`
}

// ReceiptsConfig holds receipt upload settings; an empty dir disables uploads
type ReceiptsConfig struct {
	Dir         string `mapstructure:"dir"`
	URLPrefix   string `mapstructure:"url_prefix"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

// LarkConfig holds Lark API configuration; notifications are only sent when both credentials are set
type LarkConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// AMQPConfig holds event publishing configuration; an empty URL disables publishing
type AMQPConfig struct {
	URL            string        `mapstructure:"url"`
	Exchange       string        `mapstructure:"exchange"`
	ExchangeKind   string        `mapstructure:"exchange_kind"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// NotifyConfig lists who is told about each stage
type NotifyConfig struct {
	HODs        map[string][]string `mapstructure:"hods"`
	Accountants []string            `mapstructure:"accountants"`
	Admins      []string            `mapstructure:"admins"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	OverdueScanInterval time.Duration `mapstructure:"overdue_scan_interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads an optional .env file, the YAML file at configPath (skipped when empty)
// and IMPREST_* environment variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("IMPREST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.max_upload_memory", 8<<20)

	v.SetDefault("database.path", "data/imprest.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "imprest")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("imprest.accounting_window", 14*24*time.Hour)

	v.SetDefault("receipts.dir", "data/receipts")
	v.SetDefault("receipts.url_prefix", "/api/v1/receipts")
	v.SetDefault("receipts.max_file_size", 10<<20)

	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.receive_id_type", "user_id")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "imprest.events")
	v.SetDefault("amqp.exchange_kind", "topic")
	v.SetDefault("amqp.publish_timeout", 5*time.Second)

	v.SetDefault("worker.overdue_scan_interval", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars maps credentials to the conventional unprefixed variables as well
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"auth.jwt_secret": {"IMPREST_AUTH_JWT_SECRET", "JWT_SECRET"},
		"lark.app_id":     {"IMPREST_LARK_APP_ID", "LARK_APP_ID"},
		"lark.app_secret": {"IMPREST_LARK_APP_SECRET", "LARK_APP_SECRET"},
		"amqp.url":        {"IMPREST_AMQP_URL", "AMQP_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst cannot be negative")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret is required and must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	if c.Imprest.AccountingWindow <= 0 {
		return fmt.Errorf("imprest.accounting_window must be positive")
	}

	if c.Receipts.Dir != "" {
		if c.Receipts.MaxFileSize <= 0 {
			return fmt.Errorf("receipts.max_file_size must be positive")
		}
		if !strings.HasPrefix(c.Receipts.URLPrefix, "/") {
			return fmt.Errorf("receipts.url_prefix must be an absolute path")
		}
	}

	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return fmt.Errorf("amqp.exchange is required when amqp.url is set")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}

	return nil
}
