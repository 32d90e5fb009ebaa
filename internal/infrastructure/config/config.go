package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Security    SecurityConfig    `mapstructure:"security"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Workers     WorkersConfig     `mapstructure:"workers"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig carries the process secrets. Both keys are mandatory and
// must be at least 32 bytes; startup fails closed otherwise.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ProvidersConfig configures the per-country banking provider endpoints
type ProvidersConfig struct {
	BaseURLs       map[string]string `mapstructure:"base_urls"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// BreakerConfig configures the provider circuit breakers
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// WorkersConfig configures the queue bridge and the processing pool
type WorkersConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockAcquireBudget time.Duration `mapstructure:"lock_acquire_budget"`
	BridgeInterval    time.Duration `mapstructure:"bridge_interval"`
	BridgeBatchSize   int           `mapstructure:"bridge_batch_size"`
	OrphanSweepEvery  time.Duration `mapstructure:"orphan_sweep_every"`
	OrphanSweepAfter  time.Duration `mapstructure:"orphan_sweep_after"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	QueueName         string        `mapstructure:"queue_name"`
	StalePendingAfter time.Duration `mapstructure:"stale_pending_after"`
}

// MaintenanceConfig configures the scheduled maintenance jobs
type MaintenanceConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	PartitionSchedule     string `mapstructure:"partition_schedule"`
	WebhookTTLSchedule    string `mapstructure:"webhook_ttl_schedule"`
	DLQRetrySchedule      string `mapstructure:"dlq_retry_schedule"`
	WebhookRetentionDays  int    `mapstructure:"webhook_retention_days"`
	PartitionMonthsAhead  int    `mapstructure:"partition_months_ahead"`
	PartitionRowThreshold int64  `mapstructure:"partition_row_threshold"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Load reads configuration from configs/config.yaml and the environment
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "credit_core")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("providers.request_timeout", 10*time.Second)

	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.recovery_timeout", 60*time.Second)

	viper.SetDefault("workers.concurrency", 10)
	viper.SetDefault("workers.task_timeout", 5*time.Minute)
	viper.SetDefault("workers.max_retries", 3)
	viper.SetDefault("workers.lock_ttl", 5*time.Minute)
	viper.SetDefault("workers.lock_acquire_budget", 2*time.Second)
	viper.SetDefault("workers.bridge_interval", 60*time.Second)
	viper.SetDefault("workers.bridge_batch_size", 100)
	viper.SetDefault("workers.orphan_sweep_every", 5*time.Minute)
	viper.SetDefault("workers.orphan_sweep_after", 10*time.Minute)
	viper.SetDefault("workers.shutdown_grace", 30*time.Second)
	viper.SetDefault("workers.queue_name", "credit_core:tasks")
	// Zero disables stale-PENDING auto-cancellation
	viper.SetDefault("workers.stale_pending_after", time.Duration(0))

	viper.SetDefault("maintenance.enabled", true)
	viper.SetDefault("maintenance.partition_schedule", "0 2 * * *")
	viper.SetDefault("maintenance.webhook_ttl_schedule", "30 2 * * *")
	viper.SetDefault("maintenance.dlq_retry_schedule", "0 * * * *")
	viper.SetDefault("maintenance.webhook_retention_days", 30)
	viper.SetDefault("maintenance.partition_months_ahead", 3)
	viper.SetDefault("maintenance.partition_row_threshold", 1_000_000)

	viper.SetDefault("tracing.enabled", true)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
}

func validate(cfg *Config) error {
	if len(cfg.Security.EncryptionKey) < 32 {
		return fmt.Errorf("security.encryption_key is required and must be at least 32 bytes")
	}
	if len(cfg.Security.WebhookSecret) < 32 {
		return fmt.Errorf("security.webhook_secret is required and must be at least 32 bytes")
	}
	if cfg.Workers.Concurrency <= 0 {
		return fmt.Errorf("workers.concurrency must be positive")
	}
	if cfg.Workers.BridgeBatchSize <= 0 {
		return fmt.Errorf("workers.bridge_batch_size must be positive")
	}
	return nil
}
