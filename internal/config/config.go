// Package config содержит логику чтения конфигурации сервиса стейкинг-пула.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса стейкинг-пула.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	SettlementAddress string `env:"SETTLEMENT_ADDRESS"`
	TreasuryAccount   string `env:"TREASURY_ACCOUNT"`
	AuthSecret        string `env:"AUTH_SECRET"`
	AdminKey          string `env:"ADMIN_KEY"`
	NotifierKey       string `env:"NOTIFIER_KEY"`
	SweepCron         string `env:"SWEEP_CRON"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSettlementAddress := cfg.SettlementAddress
	envTreasuryAccount := cfg.TreasuryAccount
	envAuthSecret := cfg.AuthSecret
	envAdminKey := cfg.AdminKey
	envNotifierKey := cfg.NotifierKey
	envSweepCron := cfg.SweepCron

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SettlementAddress, "s", "", "settlement system address")
	flag.StringVar(&cfg.TreasuryAccount, "t", "", "treasury settlement account")
	flag.StringVar(&cfg.AuthSecret, "secret", "", "secret key for auth cookies")
	flag.StringVar(&cfg.AdminKey, "admin-key", "", "API key for admin endpoints")
	flag.StringVar(&cfg.NotifierKey, "notifier-key", "", "API key for notifier endpoints")
	flag.StringVar(&cfg.SweepCron, "sweep-cron", "0 0 * * * *", "cron spec for auto-compound sweep")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSettlementAddress != "" {
		cfg.SettlementAddress = envSettlementAddress
	}
	if envTreasuryAccount != "" {
		cfg.TreasuryAccount = envTreasuryAccount
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envAdminKey != "" {
		cfg.AdminKey = envAdminKey
	}
	if envNotifierKey != "" {
		cfg.NotifierKey = envNotifierKey
	}
	if envSweepCron != "" {
		cfg.SweepCron = envSweepCron
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SweepCron == "" {
		cfg.SweepCron = "0 0 * * * *"
	}

	return cfg, nil
}
