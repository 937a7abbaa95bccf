package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Rooms        RoomsConfig
	Quota        QuotaConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"INTERVIEWD_APP_ENV" required:"true"`
	Port         string `envconfig:"INTERVIEWD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"INTERVIEWD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"INTERVIEWD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"INTERVIEWD_DB_DSN"`
	Driver string `envconfig:"INTERVIEWD_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"INTERVIEWD_DB_HOST"`
	Port     int    `envconfig:"INTERVIEWD_DB_PORT" default:"5432"`
	User     string `envconfig:"INTERVIEWD_DB_USER"`
	Password string `envconfig:"INTERVIEWD_DB_PASSWORD"`
	Name     string `envconfig:"INTERVIEWD_DB_NAME"`
	SSLMode  string `envconfig:"INTERVIEWD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INTERVIEWD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INTERVIEWD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INTERVIEWD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INTERVIEWD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host/user/name are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"INTERVIEWD_REDIS_URL" required:"true"`
	Password     string        `envconfig:"INTERVIEWD_REDIS_PASSWORD"`
	DB           int           `envconfig:"INTERVIEWD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INTERVIEWD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INTERVIEWD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INTERVIEWD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INTERVIEWD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INTERVIEWD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"INTERVIEWD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"INTERVIEWD_JWT_ISSUER" default:"interviewd"`
	ExpirationMinutes int    `envconfig:"INTERVIEWD_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RoomsConfig points at the media control plane that provisions interview
// rooms, dispatches the voice agent, and runs recording egress.
type RoomsConfig struct {
	BaseURL        string        `envconfig:"INTERVIEWD_ROOMS_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"INTERVIEWD_ROOMS_API_KEY" required:"true"`
	APISecret      string        `envconfig:"INTERVIEWD_ROOMS_API_SECRET" required:"true"`
	AgentName      string        `envconfig:"INTERVIEWD_ROOMS_AGENT_NAME" default:"interviewer"`
	RequestTimeout time.Duration `envconfig:"INTERVIEWD_ROOMS_REQUEST_TIMEOUT" default:"10s"`
	TokenTTL       time.Duration `envconfig:"INTERVIEWD_ROOMS_TOKEN_TTL" default:"2h"`
	WebhookSecret  string        `envconfig:"INTERVIEWD_ROOMS_WEBHOOK_SECRET"`
}

type QuotaConfig struct {
	// MinBillableSeconds is the billing floor applied to any session with
	// nonzero elapsed time. True no-shows bill nothing.
	MinBillableSeconds int64         `envconfig:"INTERVIEWD_QUOTA_MIN_BILLABLE_SECONDS" default:"60"`
	LinkTTL            time.Duration `envconfig:"INTERVIEWD_QUOTA_LINK_TTL" default:"168h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"INTERVIEWD_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"INTERVIEWD_CRON_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"INTERVIEWD_FEATURE_AUTO_MIGRATE" default:"false"`
}
