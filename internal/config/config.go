// Package config loads service configuration in three layers: compiled
// defaults, an optional YAML file named by CONFIG_FILE, then environment
// overrides. Environment variables only replace values that are actually
// set, so the file layer survives a sparse environment.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env          string `env:"APP_ENV" yaml:"env"`
	Port         string `env:"PORT" yaml:"port" validate:"required"`
	LogLevel     string `env:"LOG_LEVEL" yaml:"logLevel"`
	AllowOrigins string `env:"ALLOW_ORIGINS" yaml:"allowOrigins"`
	DatabaseURL  string `env:"DATABASE_URL" yaml:"databaseURL"`
	Migrate      bool   `env:"DB_MIGRATE" yaml:"migrate"`
	RedisURL     string `env:"REDIS_URL" yaml:"redisURL"`

	Auth     Auth     `envPrefix:"AUTH_" yaml:"auth"`
	Rate     Rate     `envPrefix:"RATE_" yaml:"rate"`
	Webhooks Webhooks `envPrefix:"WEBHOOK_" yaml:"webhooks"`
	Feed     Feed     `envPrefix:"FEED_" yaml:"feed"`
	Solver   Solver   `envPrefix:"SOLVER_" yaml:"solver"`
}

type Auth struct {
	Mode        string `env:"MODE" yaml:"mode" validate:"oneof=dev hmac jwks"`
	HMACSecret  string `env:"HMAC_SECRET" yaml:"hmacSecret"`
	JWKSURL     string `env:"JWKS_URL" yaml:"jwksURL" validate:"omitempty,url"`
	TenantClaim string `env:"TENANT_CLAIM" yaml:"tenantClaim"`
	RoleClaim   string `env:"ROLE_CLAIM" yaml:"roleClaim"`
}

// Rate caps optimization calls per tenant.
type Rate struct {
	RPS   float64 `env:"RPS" yaml:"rps" validate:"gt=0"`
	Burst int     `env:"BURST" yaml:"burst" validate:"gte=1"`
}

type Webhooks struct {
	MaxAttempts int `env:"MAX_ATTEMPTS" yaml:"maxAttempts" validate:"gte=1"`
	IntervalSec int `env:"INTERVAL_SEC" yaml:"intervalSec" validate:"gte=1"`
}

type Feed struct {
	Enabled     bool `env:"ENABLED" yaml:"enabled"`
	IntervalSec int  `env:"INTERVAL_SEC" yaml:"intervalSec" validate:"gte=1"`
}

type Solver struct {
	Backend       string  `env:"BACKEND" yaml:"backend" validate:"oneof=bnb anneal"`
	TimeBudgetSec float64 `env:"TIME_BUDGET_SEC" yaml:"timeBudgetSec" validate:"gt=0,lte=15"`
	Workers       int     `env:"WORKERS" yaml:"workers" validate:"gte=1,lte=4"`
}

// Default is the configuration the service runs with when nothing else is
// provided: in-memory store, dev auth, feed on.
func Default() Config {
	return Config{
		Env:          "production",
		Port:         "8080",
		LogLevel:     "info",
		AllowOrigins: "*",
		Migrate:      true,
		Auth: Auth{
			Mode:        "dev",
			TenantClaim: "tenant",
			RoleClaim:   "role",
		},
		Rate:     Rate{RPS: 2, Burst: 5},
		Webhooks: Webhooks{MaxAttempts: 10, IntervalSec: 1},
		Feed:     Feed{Enabled: true, IntervalSec: 5},
		Solver:   Solver{Backend: "bnb", TimeBudgetSec: 12, Workers: 4},
	}
}

// Load resolves the effective configuration from all three layers.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Auth.Mode == "hmac" && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("invalid configuration: hmac auth needs AUTH_HMAC_SECRET")
	}
	if cfg.Auth.Mode == "jwks" && cfg.Auth.JWKSURL == "" {
		return fmt.Errorf("invalid configuration: jwks auth needs AUTH_JWKS_URL")
	}
	return nil
}
