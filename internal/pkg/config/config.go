package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/AlbumFox/internal/pkg/env"
	"github.com/go-playground/validator/v10"
)

// Config is built once at startup and handed to every component that needs
// it.
type Config struct {
	AppHost string `validate:"required"`
	AppPort string `validate:"required,numeric"`

	Stripe  StripeConfig
	Auth    AuthConfig
	DB      DBConfig
	Cache   CacheConfig
	Metrics MetricsConfig

	SyncRateLimit    int           `validate:"min=1"`
	SyncRateWindow   time.Duration `validate:"min=1s"`
	SnapshotCacheTTL time.Duration `validate:"min=0"`
	RequestTimeout   time.Duration `validate:"min=1s"`
}

type StripeConfig struct {
	SecretKey      string `validate:"required"`
	WebhookSecret  string `validate:"required,startswith=whsec_"`
	ProPriceID     string `validate:"required"`
	PremiumPriceID string `validate:"required,nefield=ProPriceID"`
}

type AuthConfig struct {
	JWTSecret string `validate:"required,min=16"`
	JWTIssuer string
}

type DBConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
}

// DSN returns the MySQL data source name.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// MigrateURL returns the golang-migrate database URL.
func (c DBConfig) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type CacheConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
	DB       int `validate:"min=0,max=15"`
}

// Addr returns host:port of the cache server.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type MetricsConfig struct {
	User     string `validate:"required"`
	// Password may be empty, the metrics and monitor routes are then not
	// installed.
	Password string
}

var validate = validator.New()

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppHost: env.GetEnv("APP_HOST", "localhost"),
		AppPort: env.GetEnv("APP_PORT", "4000"),
		Stripe: StripeConfig{
			SecretKey:      strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:  strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
			ProPriceID:     strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PRO", "")),
			PremiumPriceID: strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PREMIUM", "")),
		},
		Auth: AuthConfig{
			JWTSecret: env.GetEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: env.GetEnv("AUTH_JWT_ISSUER", ""),
		},
		DB: loadDB(),
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       env.GetEnvInt("CACHE_DB", 0),
		},
		Metrics: MetricsConfig{
			User:     env.GetEnv("METRICS_USER", "admin"),
			Password: env.GetEnv("METRICS_PASSWORD", ""),
		},
		SyncRateLimit:    env.GetEnvInt("BILLING_SYNC_RATE_LIMIT", 5),
		SyncRateWindow:   env.GetEnvDuration("BILLING_SYNC_RATE_WINDOW", time.Minute),
		SnapshotCacheTTL: env.GetEnvDuration("BILLING_SNAPSHOT_CACHE_TTL", 5*time.Minute),
		RequestTimeout:   env.GetEnvDuration("BILLING_REQUEST_TIMEOUT", 15*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDB reads only the database settings. The migration tool uses it so it
// does not need processor credentials.
func LoadDB() (DBConfig, error) {
	db := loadDB()
	if err := validate.Struct(db); err != nil {
		return db, fmt.Errorf("invalid database configuration: %w", err)
	}
	return db, nil
}

func loadDB() DBConfig {
	return DBConfig{
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", "3306"),
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", ""),
	}
}

// Validate checks the struct tags and reports every failing field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
