package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":         "a",
		"JWT_REFRESH_SECRET": "b",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Errorf("unexpected token ttls: %+v", cfg.JWT)
	}
	if cfg.Lockout.MaxAttempts != 5 || cfg.Lockout.Duration != 2*time.Hour {
		t.Errorf("unexpected lockout: %+v", cfg.Lockout)
	}
	if cfg.RateLimit.Window != 15*time.Minute || cfg.RateLimit.Max != 5 {
		t.Errorf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.StoreDriver != DriverMongo || cfg.RateLimitStore != DriverMemory || cfg.Port != "8080" {
		t.Errorf("unexpected drivers: %s %s %s", cfg.StoreDriver, cfg.RateLimitStore, cfg.Port)
	}
}

func TestLoad_MissingSecretsFail(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err == nil {
		t.Fatalf("expected missing secrets to fail")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]map[string]string{
		"same secrets": {"JWT_SECRET": "x", "JWT_REFRESH_SECRET": "x"},
		"bad driver":   {"JWT_SECRET": "a", "JWT_REFRESH_SECRET": "b", "STORE_DRIVER": "sqlite"},
		"memory in production": {
			"JWT_SECRET": "a", "JWT_REFRESH_SECRET": "b", "ENV": "production", "STORE_DRIVER": "memory",
		},
		"half bootstrap": {
			"JWT_SECRET": "a", "JWT_REFRESH_SECRET": "b", "BOOTSTRAP_ADMIN_EMAIL": "root@example.com",
		},
	}
	for name, env := range cases {
		_, err := load(context.Background(), envconfig.MapLookuper(env))
		if err == nil || !strings.HasPrefix(err.Error(), "config:") {
			t.Errorf("%s: expected config error, got %v", name, err)
		}
	}
}

func TestLoad_ProductionKeepsMemoryRateLimits(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":         "a",
		"JWT_REFRESH_SECRET": "b",
		"ENV":                "production",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() || cfg.RateLimitStore != DriverMemory {
		t.Errorf("expected production with memory rate limits, got %s %s", cfg.Env, cfg.RateLimitStore)
	}
}
