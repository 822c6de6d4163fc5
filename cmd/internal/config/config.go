// Package config loads daemon settings from a YAML file, OUTBOX_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/velmie/sqloutbox"
)

// EnvPrefix prefixes environment overrides: relay.batch_size becomes OUTBOX_RELAY_BATCH_SIZE.
const EnvPrefix = "OUTBOX"

// Supported drivers.
const (
	DriverMySQL     = "mysql"
	DriverPostgres  = "postgres"
	DriverPgx       = "pgx"
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite3"
)

// Config is the full daemon configuration.
type Config struct {
	Driver      string         `mapstructure:"driver"`
	DSN         string         `mapstructure:"dsn"`
	Table       string         `mapstructure:"table"`
	Order       string         `mapstructure:"order"`
	EnsureTable bool           `mapstructure:"ensure_table"`
	Relay       RelayConfig    `mapstructure:"relay"`
	Admin       AdminConfig    `mapstructure:"admin"`
	RabbitMQ    RabbitMQConfig `mapstructure:"rabbitmq"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Log         LogConfig      `mapstructure:"log"`
}

// RelayConfig mirrors the relay options.
type RelayConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Workers         int           `mapstructure:"workers"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
	PendingInterval time.Duration `mapstructure:"pending_interval"`
}

// AdminConfig configures the admin HTTP server. An empty Addr disables it.
type AdminConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// RabbitMQConfig configures the broker handler. An empty URL logs messages instead.
type RabbitMQConfig struct {
	URL          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeKind string `mapstructure:"exchange_kind"`
	RoutingKey   string `mapstructure:"routing_key"`
	Confirms     bool   `mapstructure:"confirms"`
}

// MetricsConfig configures periodic metric export. A zero interval disables it.
type MetricsConfig struct {
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", DriverPostgres)
	v.SetDefault("dsn", "")
	v.SetDefault("table", "outbox")
	v.SetDefault("order", outbox.OrderOldestFirst.String())
	v.SetDefault("ensure_table", false)
	v.SetDefault("relay.batch_size", outbox.DefaultBatchSize)
	v.SetDefault("relay.poll_interval", outbox.DefaultPollInterval)
	v.SetDefault("relay.workers", 1)
	v.SetDefault("relay.handler_timeout", time.Duration(0))
	v.SetDefault("relay.pending_interval", 15*time.Second)
	v.SetDefault("admin.addr", ":8080")
	v.SetDefault("admin.cors_origins", []string{})
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "")
	v.SetDefault("rabbitmq.exchange_kind", "topic")
	v.SetDefault("rabbitmq.routing_key", "")
	v.SetDefault("rabbitmq.confirms", true)
	v.SetDefault("metrics.export_interval", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads file (optional, any format viper understands) and applies
// OUTBOX_* environment overrides on top of the defaults.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv exports variables from the given .env files. Missing files are skipped;
// variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	return nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres, DriverPgx, DriverSQLServer, DriverSQLite:
	default:
		return fmt.Errorf("config: unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("config: dsn is required")
	}
	if _, err := outbox.ParseOrder(c.Order); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Relay.BatchSize <= 0 {
		return errors.New("config: relay.batch_size must be positive")
	}
	if c.Relay.Workers <= 0 {
		return errors.New("config: relay.workers must be positive")
	}
	if c.Relay.PollInterval < 0 || c.Relay.HandlerTimeout < 0 || c.Relay.PendingInterval < 0 {
		return errors.New("config: relay intervals must be non-negative")
	}
	if c.Metrics.ExportInterval < 0 {
		return errors.New("config: metrics.export_interval must be non-negative")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unsupported log.format %q", c.Log.Format)
	}

	return nil
}

// DequeueOrder returns the parsed order.
func (c Config) DequeueOrder() outbox.Order {
	order, _ := outbox.ParseOrder(c.Order)

	return order
}
