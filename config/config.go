// Package config loads runtime configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env      string
	Port     string
	DBPath   string
	LogLevel string

	Redis Redis

	PaymentPolicyFile    string
	NumberingMaxAttempts int
	ReconcileTolerance   decimal.Decimal
}

// Redis is optional. An empty Addr keeps numbering on the local store.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

func (r Redis) Enabled() bool { return r.Addr != "" }

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:               getEnv("APP_ENV", "production"),
		Port:              getEnv("APP_PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "lodge.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		PaymentPolicyFile: os.Getenv("PAYMENT_POLICY_FILE"),
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
	}

	var err error
	if cfg.Redis.DB, err = atoiEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.NumberingMaxAttempts, err = atoiEnv("NUMBERING_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.NumberingMaxAttempts < 1 {
		return nil, fmt.Errorf("NUMBERING_MAX_ATTEMPTS must be at least 1, got %d", cfg.NumberingMaxAttempts)
	}

	tol := getEnv("RECONCILE_TOLERANCE", "1")
	if cfg.ReconcileTolerance, err = decimal.NewFromString(tol); err != nil {
		return nil, fmt.Errorf("RECONCILE_TOLERANCE %q: %w", tol, err)
	}
	if cfg.ReconcileTolerance.IsNegative() {
		return nil, fmt.Errorf("RECONCILE_TOLERANCE cannot be negative")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func atoiEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}
