// Package config содержит логику чтения конфигурации сервиса предзаказов.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса предзаказов.
type Config struct {
	RunAddress          string        `env:"RUN_ADDRESS"`
	DatabaseURI         string        `env:"DATABASE_URI"`
	ProviderAddress     string        `env:"PROVIDER_ADDRESS"`
	ProviderAPIKey      string        `env:"PROVIDER_API_KEY"`
	ProviderChecksumKey string        `env:"PROVIDER_CHECKSUM_KEY"`
	AuthSecret          string        `env:"AUTH_SECRET"`
	LifecycleInterval   time.Duration `env:"LIFECYCLE_INTERVAL"`
	PaymentPollInterval time.Duration `env:"PAYMENT_POLL_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envProviderAddress := cfg.ProviderAddress
	envLifecycleInterval := cfg.LifecycleInterval
	envPaymentPollInterval := cfg.PaymentPollInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ProviderAddress, "p", "", "payment provider address")
	flag.DurationVar(&cfg.LifecycleInterval, "l", 60*time.Second, "campaign lifecycle recheck interval")
	flag.DurationVar(&cfg.PaymentPollInterval, "i", 5*time.Second, "pending payment poll interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envProviderAddress != "" {
		cfg.ProviderAddress = envProviderAddress
	}
	if envLifecycleInterval > 0 {
		cfg.LifecycleInterval = envLifecycleInterval
	}
	if envPaymentPollInterval > 0 {
		cfg.PaymentPollInterval = envPaymentPollInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.LifecycleInterval <= 0 {
		cfg.LifecycleInterval = 60 * time.Second
	}
	if cfg.PaymentPollInterval <= 0 {
		cfg.PaymentPollInterval = 5 * time.Second
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "preorder-secret"
	}

	return cfg, nil
}
