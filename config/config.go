// Package config loads the service configuration from TILL_* environment
// variables. Every group has defaults that run a local SQLite instance with
// Redis and Kafka disabled.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "TILL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if c.Ledger.MaxAttempts <= 0 {
		return fmt.Errorf("ledger max attempts must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	if c.App.IsProd() && c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required in %s", AppEnvProd)
	}
	return nil
}

type AppConfig struct {
	Env       string `envconfig:"ENV" default:"dev"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool  { return strings.EqualFold(a.Env, AppEnvDev) }
func (a AppConfig) IsProd() bool { return strings.EqualFold(a.Env, AppEnvProd) }

type DBConfig struct {
	Driver          string        `envconfig:"DRIVER" default:"sqlite3"`
	DSN             string        `envconfig:"DSN" default:"till.db"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"1h"`
}

type LedgerConfig struct {
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	AttemptTimeout time.Duration `envconfig:"ATTEMPT_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
}

type SchedulerConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Interval time.Duration `envconfig:"INTERVAL" default:"1h"`
}

// RedisConfig enables the report cache when URL is set.
type RedisConfig struct {
	URL       string        `envconfig:"URL"`
	ReportTTL time.Duration `envconfig:"REPORT_TTL" default:"1m"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.URL) != "" }

// KafkaConfig enables entry event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers        []string      `envconfig:"BROKERS"`
	Topic          string        `envconfig:"TOPIC" default:"till.ledger.entries"`
	BatchTimeout   time.Duration `envconfig:"BATCH_TIMEOUT" default:"5ms"`
	PublishTimeout time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"5s"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type JWTConfig struct {
	Secret string        `envconfig:"SECRET"`
	Issuer string        `envconfig:"ISSUER" default:"till"`
	TTL    time.Duration `envconfig:"TTL" default:"12h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}
