package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const AppEnvDev = "dev"

type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	GRPC    GRPCConfig
	MySQL   MySQLConfig
	Journal JournalConfig
	Redis   RedisConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("ROWSTORE_HTTP_ADDR must not be empty")
	}
	if c.JournalEnabled() {
		if c.Journal.Workers < 1 {
			return errors.New("ROWSTORE_JOURNAL_WORKERS must be at least 1")
		}
		if c.Journal.QueueSize < 1 {
			return errors.New("ROWSTORE_JOURNAL_QUEUE_SIZE must be at least 1")
		}
	}
	return nil
}

// JournalEnabled reports whether row changes should be written to MySQL.
func (c *Config) JournalEnabled() bool {
	return strings.TrimSpace(c.MySQL.DSN) != ""
}

func (c *Config) IdempotencyEnabled() bool {
	return c.Redis.URL != "" || c.Redis.Address != ""
}

type AppConfig struct {
	Env             string        `envconfig:"ROWSTORE_APP_ENV" default:"dev"`
	LogLevel        string        `envconfig:"ROWSTORE_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"ROWSTORE_LOG_FORMAT"`
	LogWarnStack    bool          `envconfig:"ROWSTORE_LOG_WARN_STACK" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"ROWSTORE_SHUTDOWN_TIMEOUT" default:"5s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

// LogFormatOrDefault returns the configured log format, falling back to
// console output in dev and JSON elsewhere.
func (a AppConfig) LogFormatOrDefault() string {
	if format := strings.TrimSpace(a.LogFormat); format != "" {
		return format
	}
	if a.IsDev() {
		return "console"
	}
	return "json"
}

type HTTPConfig struct {
	Addr        string   `envconfig:"ROWSTORE_HTTP_ADDR" default:":8080"`
	CORSOrigins []string `envconfig:"ROWSTORE_CORS_ORIGINS"`
}

type GRPCConfig struct {
	// Addr may be empty to disable the gRPC listener.
	Addr string `envconfig:"ROWSTORE_GRPC_ADDR" default:":50051"`
}

type MySQLConfig struct {
	DSN             string        `envconfig:"ROWSTORE_MYSQL_DSN"`
	MaxOpenConns    int           `envconfig:"ROWSTORE_MYSQL_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `envconfig:"ROWSTORE_MYSQL_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"ROWSTORE_MYSQL_CONN_MAX_LIFETIME" default:"5m"`
}

type JournalConfig struct {
	Workers   int `envconfig:"ROWSTORE_JOURNAL_WORKERS" default:"4"`
	QueueSize int `envconfig:"ROWSTORE_JOURNAL_QUEUE_SIZE" default:"1024"`
}

type RedisConfig struct {
	URL            string        `envconfig:"ROWSTORE_REDIS_URL"`
	Address        string        `envconfig:"ROWSTORE_REDIS_ADDR"`
	Password       string        `envconfig:"ROWSTORE_REDIS_PASSWORD"`
	DB             int           `envconfig:"ROWSTORE_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"ROWSTORE_REDIS_POOL_SIZE" default:"10"`
	DialTimeout    time.Duration `envconfig:"ROWSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"ROWSTORE_IDEMPOTENCY_TTL" default:"24h"`
}
