package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=restoran port=5432 sslmode=disable"

type Config struct {
	AppEnv         string
	HTTPPort       string
	DatabaseDSN    string
	JWTSecret      string
	CORSOrigins    string
	LogLevel       string
	AMQPURL        string // empty: events are only logged
	EventsExchange string

	// Flat tax rate; menu prices include it.
	TaxRate decimal.Decimal

	// Cash close variance thresholds, percent of expected.
	VarianceWarnPct     decimal.Decimal
	VarianceCriticalPct decimal.Decimal

	// Warnings collected while loading, logged by the caller once a logger exists.
	Warnings []string
}

// Load reads the environment, after a best-effort .env load.
func Load() (*Config, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, ".env file not found, using process environment")
	}

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:    getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AMQPURL:        getEnv("AMQP_URL", ""),
		EventsExchange: getEnv("EVENTS_EXCHANGE", "restaurant_events"),
	}

	var err error
	if cfg.TaxRate, err = getDecimal("TAX_RATE", "0.19"); err != nil {
		return nil, err
	}
	if cfg.VarianceWarnPct, err = getDecimal("CASH_VARIANCE_WARN_PCT", "1"); err != nil {
		return nil, err
	}
	if cfg.VarianceCriticalPct, err = getDecimal("CASH_VARIANCE_CRITICAL_PCT", "5"); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("TAX_RATE must not be negative")
	}
	if cfg.VarianceCriticalPct.LessThan(cfg.VarianceWarnPct) {
		return nil, fmt.Errorf("CASH_VARIANCE_CRITICAL_PCT must be >= CASH_VARIANCE_WARN_PCT")
	}

	if cfg.DatabaseDSN == defaultDSN {
		warnings = append(warnings, "DATABASE_DSN uses the default value, set your own Postgres DSN for production")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		warnings = append(warnings, "CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}
	if cfg.AMQPURL == "" {
		warnings = append(warnings, "AMQP_URL not set, domain events will only be logged")
	}
	cfg.Warnings = warnings

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// CORSOriginList splits the comma separated CORS_ALLOWED_ORIGINS value.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDecimal(key, def string) (decimal.Decimal, error) {
	raw := getEnv(key, def)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return d, nil
}
