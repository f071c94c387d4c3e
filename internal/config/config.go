package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully-resolved runtime configuration, loaded from
// config/config.yaml and overridden by environment variables for secrets.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	TE        TEConfig        `mapstructure:"te"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// ServerConfig configures the HTTP entry points.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug/release/test
}

// DatabaseConfig configures the PostgreSQL connection pool.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// TEConfig holds Ticket Evolution API connectivity and credentials.
type TEConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
	Secret  string `mapstructure:"secret"`
	Timeout int    `mapstructure:"timeout"` // seconds
	Proxy   string `mapstructure:"proxy"`
}

// PollerConfig holds the hourly poller's batching/retry knobs.
type PollerConfig struct {
	BatchSize         int `mapstructure:"batch_size"`
	MaxRetries        int `mapstructure:"max_retries"`
	StaleLockMinutes  int `mapstructure:"stale_lock_minutes"`
}

// ScheduleConfig holds the in-process cron expressions for C9's triggers.
type ScheduleConfig struct {
	HourlyCron string `mapstructure:"hourly_cron"`
	DailyCron  string `mapstructure:"daily_cron"`
}

// RetentionConfig holds the hourly-row pruning horizon.
type RetentionConfig struct {
	HourlyRetentionDaysAfterEnd int `mapstructure:"hourly_retention_days_after_end"`
}

const (
	defaultTEBaseURL        = "https://api.sandbox.ticketevolution.com/v9"
	defaultBatchSize        = 10
	defaultMaxRetries       = 3
	defaultStaleLockMinutes = 15
	defaultRetentionDays    = 7
	// Six fields (seconds-first) to match the scheduler's cron.WithSeconds.
	defaultHourlyCron = "0 0 * * * *"
	defaultDailyCron  = "0 15 0 * * *"
)

// LoadConfig reads config/config.yaml, applies defaults for anything
// unset, then lets environment variables (and an optional .env file)
// override credentials and the database DSN.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // optional; ignored if absent

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyBounds(&cfg)
	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Hour)
	viper.SetDefault("te.base_url", defaultTEBaseURL)
	viper.SetDefault("te.timeout", 10)
	viper.SetDefault("poller.batch_size", defaultBatchSize)
	viper.SetDefault("poller.max_retries", defaultMaxRetries)
	viper.SetDefault("poller.stale_lock_minutes", defaultStaleLockMinutes)
	viper.SetDefault("schedule.hourly_cron", defaultHourlyCron)
	viper.SetDefault("schedule.daily_cron", defaultDailyCron)
	viper.SetDefault("retention.hourly_retention_days_after_end", defaultRetentionDays)
}

// applyBounds enforces the fallback-to-default rule for fields whose
// spec requires a non-negative value.
func applyBounds(cfg *Config) {
	if cfg.Retention.HourlyRetentionDaysAfterEnd < 0 {
		cfg.Retention.HourlyRetentionDaysAfterEnd = defaultRetentionDays
	}
	if cfg.Poller.BatchSize <= 0 {
		cfg.Poller.BatchSize = defaultBatchSize
	}
	if cfg.Poller.MaxRetries <= 0 {
		cfg.Poller.MaxRetries = defaultMaxRetries
	}
	if cfg.Poller.StaleLockMinutes <= 0 {
		cfg.Poller.StaleLockMinutes = defaultStaleLockMinutes
	}
	if cfg.TE.BaseURL == "" {
		cfg.TE.BaseURL = defaultTEBaseURL
	}
}

// overrideFromEnv lets deployment-time secrets win over whatever is
// checked into config.yaml. TE credentials and the database DSN are
// never expected to live in the yaml file at all.
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("TE_API_BASE_URL"); v != "" {
		cfg.TE.BaseURL = v
	}
	if v := os.Getenv("TE_API_TOKEN"); v != "" {
		cfg.TE.Token = v
	}
	if v := os.Getenv("TE_API_SECRET"); v != "" {
		cfg.TE.Secret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}
