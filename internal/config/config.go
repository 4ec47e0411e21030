// Package config loads server configuration from CROWDPAY_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmynk/crowdpay/internal/escrow"
)

// Prefix is prepended to every variable name.
const Prefix = "CROWDPAY_"

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the server configuration.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	Store       string `env:"STORE" envDefault:"sqlite"`
	DBPath      string `env:"DB_PATH" envDefault:"./data/crowdpay.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	PayoutPolicy      string `env:"PAYOUT_POLICY" envDefault:"target"`
	RejectOverfunding bool   `env:"REJECT_OVERFUNDING"`

	Redis          RedisConfig   `envPrefix:"REDIS_"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	S3 S3Config `envPrefix:"S3_"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// RedisConfig selects the shared idempotency key store. Without an address
// keys are kept in process memory.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"`
	TLS      bool   `env:"TLS"`
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// S3Config selects the settlement archive bucket. Without a bucket settled
// groups are not archived.
type S3Config struct {
	Bucket         string `env:"BUCKET"`
	Region         string `env:"REGION" envDefault:"us-east-1"`
	Endpoint       string `env:"ENDPOINT"`
	AccessKey      string `env:"ACCESS_KEY"`
	SecretKey      string `env:"SECRET_KEY"`
	ForcePathStyle bool   `env:"FORCE_PATH_STYLE"`
}

// Enabled reports whether archiving is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load reads .env if present (silently ignored if missing), then parses
// the environment and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadS3 reads only the archive settings. Tools that read the archive
// back use it without needing a full server configuration.
func LoadS3() (S3Config, error) {
	_ = godotenv.Load()

	var cfg S3Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix + "S3_"}); err != nil {
		return S3Config{}, fmt.Errorf("parse env: %w", err)
	}
	if !cfg.Enabled() {
		return S3Config{}, fmt.Errorf("%sS3_BUCKET is required", Prefix)
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return S3Config{}, fmt.Errorf("%sS3_ACCESS_KEY and %sS3_SECRET_KEY must be set together", Prefix, Prefix)
	}
	return cfg, nil
}

// Validate checks field combinations that parsing alone cannot.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, fmt.Errorf("%sDB_PATH is required for the sqlite store", Prefix))
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, fmt.Errorf("%sPOSTGRES_DSN is required for the postgres store", Prefix))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("%sSTORE must be sqlite, postgres or memory, got %q", Prefix, c.Store))
	}

	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%sJWT_SECRET is required", Prefix))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("%sTOKEN_TTL must be positive", Prefix))
	}
	if _, err := escrow.ParsePayoutPolicy(c.PayoutPolicy); err != nil {
		errs = append(errs, fmt.Errorf("%sPAYOUT_POLICY: %w", Prefix, err))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, fmt.Errorf("%sIDEMPOTENCY_TTL must be positive", Prefix))
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		errs = append(errs, fmt.Errorf("%sS3_ACCESS_KEY and %sS3_SECRET_KEY must be set together", Prefix, Prefix))
	}

	return errors.Join(errs...)
}

// Policy returns the escrow policy the configuration selects.
func (c *Config) Policy() escrow.Policy {
	payout, _ := escrow.ParsePayoutPolicy(c.PayoutPolicy)
	return escrow.Policy{Payout: payout, RejectOverfunding: c.RejectOverfunding}
}
