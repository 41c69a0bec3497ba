package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. SMARTWORKING_AUTH_JWT_SECRET
const EnvPrefix = "SMARTWORKING"

// Config is the complete runtime configuration
type Config struct {
	Server      ServerConfig    `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Auth        AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Email       EmailConfig     `mapstructure:"email" yaml:"email"`
	FrontendURL string          `mapstructure:"frontend_url" yaml:"frontend_url"`
	Notify      NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Lifecycle   LifecycleConfig `mapstructure:"lifecycle" yaml:"lifecycle"`
	Logging     LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Tracing     TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Metrics     MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	TLS             TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
}

type DatabaseConfig struct {
	Type            string        `mapstructure:"type" yaml:"type"`
	Path            string        `mapstructure:"path" yaml:"path"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer" yaml:"issuer"`
	Audience  string        `mapstructure:"audience" yaml:"audience"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// EmailConfig selects and configures the outgoing mail transport.
// Sender "log" writes a line per email instead of sending it.
type EmailConfig struct {
	Sender    string        `mapstructure:"sender" yaml:"sender"`
	Host      string        `mapstructure:"host" yaml:"host"`
	Port      int           `mapstructure:"port" yaml:"port"`
	Username  string        `mapstructure:"username" yaml:"username"`
	Password  string        `mapstructure:"password" yaml:"password"`
	From      string        `mapstructure:"from" yaml:"from"`
	FromName  string        `mapstructure:"from_name" yaml:"from_name"`
	TLSPolicy string        `mapstructure:"tls_policy" yaml:"tls_policy"`
	CAFile    string        `mapstructure:"ca_file" yaml:"ca_file"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type NotifyConfig struct {
	Queue          string        `mapstructure:"queue" yaml:"queue"`
	Buffer         int           `mapstructure:"buffer" yaml:"buffer"`
	Workers        int           `mapstructure:"workers" yaml:"workers"`
	SendTimeout    time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Redis          RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Key      string `mapstructure:"key" yaml:"key"`
}

type LifecycleConfig struct {
	// ActionTokenTTL of 0 keeps email links valid until the request is decided
	ActionTokenTTL time.Duration `mapstructure:"action_token_ttl" yaml:"action_token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "certs/server.crt")
	v.SetDefault("server.tls.key_file", "certs/server.key")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "smartworking.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "smartworking")
	v.SetDefault("auth.audience", "smartworking-app")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)

	v.SetDefault("email.sender", "log")
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.from_name", "Smart Working App")
	v.SetDefault("email.tls_policy", "mandatory")
	v.SetDefault("email.ca_file", "")
	v.SetDefault("email.timeout", 30*time.Second)

	v.SetDefault("frontend_url", "http://localhost:5173")

	v.SetDefault("notify.queue", "memory")
	v.SetDefault("notify.buffer", 256)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.send_timeout", 30*time.Second)
	v.SetDefault("notify.max_retries", 3)
	v.SetDefault("notify.initial_backoff", time.Second)
	v.SetDefault("notify.max_backoff", 30*time.Second)
	v.SetDefault("notify.redis.addr", "localhost:6379")
	v.SetDefault("notify.redis.password", "")
	v.SetDefault("notify.redis.db", 0)
	v.SetDefault("notify.redis.key", "smartworking:notifications")

	v.SetDefault("lifecycle.action_token_ttl", 7*24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("metrics.enabled", true)
}

// Load reads defaults, then the YAML file (explicit path, or smartworking.yaml
// in the working directory or /etc/smartworking), then SMARTWORKING_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("smartworking")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/smartworking")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	if len(cfg.Server.CORSOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.Server.CORSOrigins = []string{cfg.FrontendURL}
	}
	return &cfg, nil
}

// Validate checks the settings needed to serve traffic
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	switch c.Database.Type {
	case "sqlite", "memory":
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.type %q is not supported", c.Database.Type))
	}
	switch c.Email.Sender {
	case "log":
	case "smtp":
		if c.Email.Host == "" || c.Email.From == "" {
			errs = append(errs, errors.New("email.host and email.from are required for smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("email.sender %q is not supported", c.Email.Sender))
	}
	switch c.Notify.Queue {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("notify.queue %q is not supported", c.Notify.Queue))
	}
	if c.Notify.Workers < 1 {
		errs = append(errs, errors.New("notify.workers must be positive"))
	}
	if c.Notify.Buffer < 1 {
		errs = append(errs, errors.New("notify.buffer must be positive"))
	}
	if c.Lifecycle.ActionTokenTTL < 0 {
		errs = append(errs, errors.New("lifecycle.action_token_ttl must not be negative"))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls.cert_file and server.tls.key_file are required when TLS is enabled"))
	}
	return errors.Join(errs...)
}

const redacted = "********"

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Email.Password = mask(c.Email.Password)
	c.Notify.Redis.Password = mask(c.Notify.Redis.Password)
	c.Database.DSN = mask(c.Database.DSN)
	c.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return c
}

// YAML renders the configuration with secrets masked
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
