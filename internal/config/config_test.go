package config

import (
	"strings"
	"testing"
	"time"

	"github.com/mmynk/crowdpay/internal/escrow"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CROWDPAY_JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != ":8080" || cfg.Store != StoreSQLite || cfg.TokenTTL != 24*time.Hour {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Redis.Enabled() || cfg.S3.Enabled() {
		t.Error("optional backends enabled by default")
	}
	if cfg.Policy() != escrow.DefaultPolicy() {
		t.Errorf("policy = %+v, want default", cfg.Policy())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CROWDPAY_JWT_SECRET", "secret")
	t.Setenv("CROWDPAY_STORE", "postgres")
	t.Setenv("CROWDPAY_POSTGRES_DSN", "postgres://localhost/crowdpay")
	t.Setenv("CROWDPAY_PAYOUT_POLICY", "collected")
	t.Setenv("CROWDPAY_REJECT_OVERFUNDING", "true")
	t.Setenv("CROWDPAY_REDIS_ADDR", "localhost:6379")
	t.Setenv("CROWDPAY_REDIS_DB", "2")
	t.Setenv("CROWDPAY_S3_BUCKET", "archive")
	t.Setenv("CROWDPAY_IDEMPOTENCY_TTL", "90m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := escrow.Policy{Payout: escrow.PayoutCollected, RejectOverfunding: true}
	if cfg.Policy() != want {
		t.Errorf("policy = %+v, want %+v", cfg.Policy(), want)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if !cfg.S3.Enabled() || cfg.S3.Region != "us-east-1" {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.IdempotencyTTL != 90*time.Minute {
		t.Errorf("idempotency ttl = %s", cfg.IdempotencyTTL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:          StoreMemory,
			JWTSecret:      "secret",
			TokenTTL:       time.Hour,
			PayoutPolicy:   "target",
			IdempotencyTTL: time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "mongo" }, wantErr: "STORE"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store = StorePostgres }, wantErr: "POSTGRES_DSN"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store = StoreSQLite }, wantErr: "DB_PATH"},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET"},
		{name: "bad payout policy", mutate: func(c *Config) { c.PayoutPolicy = "all" }, wantErr: "PAYOUT_POLICY"},
		{name: "half s3 credentials", mutate: func(c *Config) { c.S3.AccessKey = "AKIA" }, wantErr: "S3_SECRET_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
