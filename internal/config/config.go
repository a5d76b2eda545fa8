package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Merchant identity stamped into every MMQR payload.
	MerchantName         string `env:"MERCHANT_NAME" envDefault:"MyanJobs"`
	MerchantCity         string `env:"MERCHANT_CITY" envDefault:"Yangon"`
	MerchantCountryCode  string `env:"MERCHANT_COUNTRY_CODE" envDefault:"MM"`
	MerchantCategoryCode string `env:"MERCHANT_CATEGORY_CODE" envDefault:"7361"`
	DefaultCurrency      string `env:"DEFAULT_CURRENCY" envDefault:"MMK"`

	ProviderTimeoutS   int `env:"PROVIDER_TIMEOUT_S" envDefault:"10"`
	QRExpiryMinutes    int `env:"QR_EXPIRY_MINUTES" envDefault:"15"`
	ReconcileMaxAgeS   int `env:"RECONCILE_MAX_AGE_S" envDefault:"300"`
	ReconcileBatchSize int `env:"RECONCILE_BATCH_SIZE" envDefault:"100"`

	SandboxEnabled       bool   `env:"SANDBOX_ENABLED" envDefault:"false"`
	SandboxBaseURL       string `env:"SANDBOX_BASE_URL" envDefault:"http://mock-provider:8081"`
	SandboxWebhookSecret string `env:"SANDBOX_WEBHOOK_SECRET"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutS) * time.Second
}

func (c *Config) ReconcileMaxAge() time.Duration {
	return time.Duration(c.ReconcileMaxAgeS) * time.Second
}

func (c *Config) QRExpiry() time.Duration {
	return time.Duration(c.QRExpiryMinutes) * time.Minute
}
